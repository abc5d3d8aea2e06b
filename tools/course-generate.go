package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/llm"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/render"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

type CourseGenerateQuery struct {
	DocumentID string `json:"document_id"`          // ID returned by pdf-extract-text
	StudyAids  bool   `json:"study_aids,omitempty"` // add quiz questions, glossary and flashcards
	Regenerate bool   `json:"regenerate,omitempty"` // ignore a stored course
	Markdown   bool   `json:"markdown,omitempty"`   // also return the course as Markdown
}

type CourseGenerateResponse struct {
	DocumentID   string           `json:"document_id"`
	Sections     []models.Section `json:"sections"`
	Model        string           `json:"model,omitempty"`
	StudyAids    bool             `json:"study_aids"`
	Markdown     string           `json:"markdown,omitempty"`
	Raw          string           `json:"raw,omitempty"` // model output that could not be parsed
	ResourcePath string           `json:"resource_path,omitempty"`
}

func CourseGenerateTool() *mcp.Tool {
	inputschema, err := jsonschema.For[CourseGenerateQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "course-generate",
		Description: "Generate a structured French course (Introduction, Notion 1..n, Conclusion) from a document extracted with pdf-extract-text. Each section has a summary and the tables or images it relates to. With study_aids, sections also get multiple-choice questions, a glossary and flashcards. The course is stored and reused unless regenerate is set.",
		InputSchema: inputschema,
	}
}

func CourseGenerateToolHandler(ctx context.Context, req *mcp.CallToolRequest, query CourseGenerateQuery, deps *operations.Deps, log logger.Logger) (*mcp.CallToolResult, *CourseGenerateResponse, error) {
	log.Info("course-generate tool called for %s", query.DocumentID)

	if query.DocumentID == "" {
		return nil, nil, errors.New("document_id is required")
	}

	course, err := operations.GenerateCourse(ctx, deps, query.DocumentID, operations.CourseOptions{
		StudyAids:  query.StudyAids,
		Regenerate: query.Regenerate,
	})
	if errors.Is(err, llm.ErrUnparseableCourse) && course != nil {
		log.Warn("Course for %s could not be parsed: %v", query.DocumentID, err)
		result := &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: "The model answer could not be parsed as a course. The raw answer is returned unchanged."},
			},
		}
		return result, &CourseGenerateResponse{DocumentID: query.DocumentID, Model: course.Model, Raw: course.Raw}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	response := &CourseGenerateResponse{
		DocumentID:   course.DocumentID,
		Sections:     course.Sections,
		Model:        course.Model,
		StudyAids:    course.StudyAids,
		ResourcePath: fmt.Sprintf("%s://%s/course", storage.ResourceScheme, course.DocumentID),
	}
	if query.Markdown {
		response.Markdown = render.Markdown(course, "")
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Course for %s has %d sections.", course.DocumentID, len(course.Sections)),
			},
		},
	}
	return result, response, nil
}
