package tools

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

type DocumentListQuery struct{}

type DocumentListResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

type DocumentSummary struct {
	DocumentID string            `json:"document_id"`
	Source     models.SourceInfo `json:"source"`
	PageCount  int               `json:"page_count"`
	OCRPages   int               `json:"ocr_pages"`
	SizeBytes  int64             `json:"size_bytes"`
	HasCourse  bool              `json:"has_course"`
	CreatedAt  string            `json:"created_at"` // RFC 3339
}

func DocumentListTool() *mcp.Tool {
	inputschema, err := jsonschema.For[DocumentListQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "document-list",
		Description: "List the extracted documents, newest first, with their page counts and whether a course has been generated.",
		InputSchema: inputschema,
	}
}

func DocumentListToolHandler(ctx context.Context, req *mcp.CallToolRequest, query DocumentListQuery, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *DocumentListResponse, error) {
	log.Debug("document-list tool called")

	docs, err := store.ListDocuments(ctx)
	if err != nil {
		return nil, nil, err
	}
	summaries := make([]DocumentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = DocumentSummary{
			DocumentID: d.DocumentID,
			Source:     d.Source,
			PageCount:  d.PageCount,
			OCRPages:   d.OCRPages,
			SizeBytes:  d.SizeBytes,
			HasCourse:  d.HasCourse,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, &DocumentListResponse{Documents: summaries, Count: len(summaries)}, nil
}
