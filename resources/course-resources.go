package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/storage"
)

// CourseResourceHandler handles resource requests for extracted documents and
// their courses
type CourseResourceHandler struct {
	store storage.Store
}

// NewCourseResourceHandler creates a new resource handler
func NewCourseResourceHandler(store storage.Store) *CourseResourceHandler {
	return &CourseResourceHandler{store: store}
}

// ResourceURI is a parsed course:// URI.
type ResourceURI struct {
	DocumentID string
	Type       string // "" for the document summary
	Index      int    // -1 when absent
}

// ParseURI parses course://doc_id/resource_type/optional_index.
func ParseURI(uri string) (ResourceURI, error) {
	prefix := storage.ResourceScheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return ResourceURI{}, fmt.Errorf("invalid URI scheme, expected %s", prefix)
	}

	parts := strings.Split(strings.TrimPrefix(uri, prefix), "/")
	if parts[0] == "" {
		return ResourceURI{}, fmt.Errorf("invalid URI, missing document ID")
	}
	if len(parts) > 3 {
		return ResourceURI{}, fmt.Errorf("invalid URI, too many path segments: %s", uri)
	}

	parsed := ResourceURI{DocumentID: parts[0], Index: -1}
	if len(parts) > 1 {
		parsed.Type = parts[1]
	}
	if len(parts) > 2 {
		index, err := strconv.Atoi(parts[2])
		if err != nil || index < 0 {
			return ResourceURI{}, fmt.Errorf("invalid index: %s", parts[2])
		}
		parsed.Index = index
		if parsed.Type != "pages" && parsed.Type != "tables" {
			return ResourceURI{}, fmt.Errorf("resource type %s does not take an index", parsed.Type)
		}
	}
	return parsed, nil
}

// ListResources returns the summary resource of every stored document
func (h *CourseResourceHandler) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	docs, err := h.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	resources := make([]*mcp.Resource, 0, len(docs))
	for _, doc := range docs {
		name := doc.Source.Title
		if name == "" {
			name = doc.Source.Filename
		}
		if name == "" {
			name = doc.DocumentID
		}
		resources = append(resources, &mcp.Resource{
			URI:         fmt.Sprintf("%s://%s", storage.ResourceScheme, doc.DocumentID),
			Name:        name,
			Description: fmt.Sprintf("Extracted PDF document (%d pages)", doc.PageCount),
			MIMEType:    "application/json",
		})
	}
	return resources, nil
}

// ReadResource reads a specific resource by URI
func (h *CourseResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var content any
	docID := parsed.DocumentID

	switch parsed.Type {
	case "":
		content, err = h.getDocumentSummary(ctx, docID)
	case "pages":
		if parsed.Index >= 0 {
			content, err = h.store.GetPage(ctx, docID, parsed.Index)
		} else {
			content, err = h.store.GetPages(ctx, docID)
		}
	case "tables":
		if parsed.Index >= 0 {
			content, err = h.store.GetTable(ctx, docID, parsed.Index)
		} else {
			content, err = h.store.GetTables(ctx, docID)
		}
	case "images":
		content, err = h.store.GetImages(ctx, docID)
	case "formulas":
		content, err = h.store.GetFormulas(ctx, docID)
	case "course":
		content, err = h.store.GetCourse(ctx, docID)
	default:
		return nil, fmt.Errorf("unknown resource type: %s", parsed.Type)
	}
	if err != nil {
		return nil, err
	}

	text, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(text),
			},
		},
	}, nil
}

func (h *CourseResourceHandler) getDocumentSummary(ctx context.Context, docID string) (map[string]any, error) {
	doc, err := h.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"document_id":         docID,
		"source":              doc.Info.Source,
		"page_count":          doc.Info.PageCount,
		"ocr_pages":           doc.Info.OCRPages,
		"size_bytes":          doc.Info.SizeBytes,
		"table_count":         len(doc.Tables),
		"image_count":         len(doc.Images),
		"formula_count":       len(doc.Formulas),
		"has_course":          doc.Info.HasCourse,
		"warnings":            doc.Warnings,
		"created_at":          doc.Info.CreatedAt,
		"available_resources": storage.ResourcePaths(docID, doc, doc.Info.HasCourse),
	}, nil
}
