package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
)

type QuizCheckQuery struct {
	DocumentID string `json:"document_id"`
	Section    int    `json:"section"`  // 0-based section index
	Question   int    `json:"question"` // 0-based question index within the section
	Answer     string `json:"answer"`
}

func QuizCheckTool() *mcp.Tool {
	inputschema, err := jsonschema.For[QuizCheckQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "quiz-check",
		Description: "Check an answer to a multiple-choice question of a generated course. Comparison ignores case and surrounding whitespace. The expected answer is returned.",
		InputSchema: inputschema,
	}
}

func QuizCheckToolHandler(ctx context.Context, req *mcp.CallToolRequest, query QuizCheckQuery, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *operations.QuizResult, error) {
	log.Debug("quiz-check tool called for %s section %d question %d", query.DocumentID, query.Section, query.Question)

	res, err := operations.CheckCourseAnswer(ctx, store, query.DocumentID, query.Section, query.Question, query.Answer)
	if err != nil {
		return nil, nil, err
	}
	return nil, &res, nil
}
