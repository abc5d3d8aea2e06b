package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

type PDFExtractTextQuery struct {
	ZoteroID string `json:"zotero_id,omitempty"` // Zotero attachment key
	URL      string `json:"url,omitempty"`
	RawData  []byte `json:"raw_data,omitempty"` // base64 in JSON
	Filename string `json:"filename,omitempty"`
	// Source is "google-drive" or "onedrive" for cloud files.
	Source  string `json:"source,omitempty"`
	OCR     *bool  `json:"ocr,omitempty"`    // OCR blank pages (server default when unset)
	Layout  *bool  `json:"layout,omitempty"` // layout-aware reading order
	Refresh bool   `json:"refresh,omitempty"`
}

type PDFExtractTextResponse struct {
	DocumentID    string            `json:"document_id"`
	PageCount     int               `json:"page_count"`
	OCRPages      int               `json:"ocr_pages"`
	Cached        bool              `json:"cached"`
	Pages         []models.PageText `json:"pages"`
	TableCount    int               `json:"table_count"`
	ImageCount    int               `json:"image_count"`
	FormulaCount  int               `json:"formula_count"`
	Warnings      []string          `json:"warnings,omitempty"`
	ResourcePaths []string          `json:"resource_paths"`
}

func PDFExtractTextTool() *mcp.Tool {
	inputschema, err := jsonschema.For[PDFExtractTextQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "pdf-extract-text",
		Description: "Extract the text of a PDF page by page. Uses the embedded text layer and falls back to OCR for scanned pages. Consecutive lines of a paragraph are merged. Tables, images and formulas are extracted alongside. Provide exactly one of zotero_id, url or raw_data. Results are stored and exposed as course:// resources.",
		InputSchema: inputschema,
	}
}

// PDFExtractTextToolHandler extracts a document. defaults supplies the OCR and
// layout settings used when the query leaves them unset.
func PDFExtractTextToolHandler(ctx context.Context, req *mcp.CallToolRequest, query PDFExtractTextQuery, deps *operations.Deps, defaults extract.Options, log logger.Logger) (*mcp.CallToolResult, *PDFExtractTextResponse, error) {
	log.Info("pdf-extract-text tool called")

	src, err := sourceFromQuery(query)
	if err != nil {
		return nil, nil, err
	}

	opts := defaults
	if query.OCR != nil {
		opts.OCRFallback = *query.OCR
	}
	if query.Layout != nil {
		opts.LayoutAware = *query.Layout
	}

	doc, cached, err := operations.GetOrExtractDocument(ctx, deps, operations.ExtractRequest{
		Source:  src,
		Data:    query.RawData,
		Options: opts,
		Refresh: query.Refresh,
	})
	if err != nil {
		log.Error("Failed to extract document: %v", err)
		return nil, nil, err
	}

	hasCourse, err := courseExists(ctx, deps.Store, doc)
	if err != nil {
		return nil, nil, err
	}

	response := &PDFExtractTextResponse{
		DocumentID:    doc.Info.DocumentID,
		PageCount:     doc.Info.PageCount,
		OCRPages:      doc.Info.OCRPages,
		Cached:        cached,
		Pages:         doc.Pages,
		TableCount:    len(doc.Tables),
		ImageCount:    len(doc.Images),
		FormulaCount:  len(doc.Formulas),
		Warnings:      doc.Warnings,
		ResourcePaths: storage.ResourcePaths(doc.Info.DocumentID, doc, hasCourse),
	}

	status := "Extracted"
	if cached {
		status = "Loaded stored"
	}
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("%s document %s: %d pages (%d via OCR), %d tables, %d images, %d formulas.",
					status, doc.Info.DocumentID, doc.Info.PageCount, doc.Info.OCRPages,
					len(doc.Tables), len(doc.Images), len(doc.Formulas)),
			},
		},
	}
	return result, response, nil
}

// sourceFromQuery picks the document source. Raw data wins over a Zotero key,
// which wins over a URL.
func sourceFromQuery(query PDFExtractTextQuery) (models.SourceInfo, error) {
	switch {
	case len(query.RawData) > 0:
		return models.SourceInfo{Kind: models.SourceUpload, Filename: query.Filename}, nil
	case query.ZoteroID != "":
		return models.SourceInfo{Kind: models.SourceZotero, ZoteroID: query.ZoteroID}, nil
	case query.URL != "":
		return models.SourceInfo{Kind: models.SourceURL, URL: query.URL, Filename: query.Filename}, nil
	case query.Source != "":
		kind := models.SourceKind(query.Source)
		switch kind {
		case models.SourceGoogleDrive, models.SourceOneDrive:
			return models.SourceInfo{Kind: kind, Filename: query.Filename}, nil
		}
		return models.SourceInfo{}, fmt.Errorf("unknown source %q", query.Source)
	}
	return models.SourceInfo{}, documents.ErrNoData
}

// courseExists reports whether a course is stored for doc. A re-extracted
// document keeps its course but does not report it in Info.
func courseExists(ctx context.Context, store storage.Store, doc *models.ExtractedDocument) (bool, error) {
	if doc.Info.HasCourse {
		return true, nil
	}
	_, err := store.GetCourse(ctx, doc.Info.DocumentID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
