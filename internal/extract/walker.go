package extract

import (
	"context"
	"fmt"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/paragraph"
)

// FailurePolicy decides what a page failure does to the whole document.
type FailurePolicy string

const (
	// RecoverPages logs the failure, leaves the page text empty with a
	// warning and moves on to the next page.
	RecoverPages FailurePolicy = "recover"
	// AbortOnPageError stops at the first failing page.
	AbortOnPageError FailurePolicy = "abort"
)

// Result holds one entry per page, in document order.
type Result struct {
	Pages []Page `json:"pages"`
}

// Texts returns the normalized page texts in page order.
func (r *Result) Texts() []string {
	texts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		texts[i] = p.Text
	}
	return texts
}

// RawTexts returns the page texts before paragraph merging.
func (r *Result) RawTexts() []string {
	texts := make([]string, len(r.Pages))
	for i, p := range r.Pages {
		texts[i] = p.Raw
	}
	return texts
}

// OCRPages counts the pages whose text came from OCR.
func (r *Result) OCRPages() int {
	n := 0
	for _, p := range r.Pages {
		if p.Method == MethodOCR {
			n++
		}
	}
	return n
}

// Warnings returns the per-page warnings, keyed by page index.
func (r *Result) Warnings() map[int]string {
	out := make(map[int]string)
	for _, p := range r.Pages {
		if p.Warning != "" {
			out[p.Index] = p.Warning
		}
	}
	return out
}

// Walker extracts every page of a document, one page at a time.
type Walker struct {
	opener Opener
	pages  *PageExtractor
	policy FailurePolicy
	log    logger.Logger
}

func NewWalker(opener Opener, pages *PageExtractor, policy FailurePolicy, log logger.Logger) *Walker {
	if policy == "" {
		policy = RecoverPages
	}
	return &Walker{opener: opener, pages: pages, policy: policy, log: log}
}

// ExtractFile opens path and extracts it. A missing or unreadable file
// yields a *DocumentOpenError.
func (w *Walker) ExtractFile(ctx context.Context, path string, opts Options) (*Result, error) {
	doc, err := w.opener.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			w.log.Warn("Failed to close %s: %v", path, cerr)
		}
	}()

	return w.Extract(ctx, doc, opts)
}

// Extract runs the page extractor and the paragraph merger over every page
// of doc in index order. A document with no pages gives an empty result.
// Cancellation is checked between pages.
func (w *Walker) Extract(ctx context.Context, doc Document, opts Options) (*Result, error) {
	n := doc.NumPages()
	result := &Result{Pages: make([]Page, 0, n)}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := w.pages.Extract(ctx, doc, i, opts)
		if err != nil {
			if w.policy == AbortOnPageError || ctx.Err() != nil {
				return nil, fmt.Errorf("extraction aborted: %w", err)
			}
			w.log.Error("Recovered from failure on page %d: %v", i, err)
			page = Page{Index: i, Method: page.Method, Warning: err.Error()}
		}

		page.Raw = page.Text
		page.Text = paragraph.Merge(page.Text)
		result.Pages = append(result.Pages, page)
	}

	w.log.Info("Extracted %d pages (%d via OCR)", n, result.OCRPages())
	return result, nil
}
