// Package extract turns a PDF into one normalized text string per page.
//
// Each page is read from its native text layer first. A page whose text is
// empty or whitespace-only is rendered to an image and passed to OCR when
// the caller asks for it. The Walker runs every page through the
// PageExtractor and then the paragraph merger, strictly in page order.
package extract

import (
	"fmt"
)

// Document is an opened PDF. Page indexes are 0-based.
type Document interface {
	NumPages() int
	// NativeText returns the embedded text of a page. layoutAware keeps
	// reading order across columns; otherwise text comes in content-stream
	// order.
	NativeText(index int, layoutAware bool) (string, error)
	// RenderPNG rasterizes a page at the given resolution.
	RenderPNG(index int, dpi float64) ([]byte, error)
	Close() error
}

// Opener opens documents from file paths.
type Opener interface {
	Open(path string) (Document, error)
}

// DocumentOpenError reports a path that does not exist or is not a readable
// PDF.
type DocumentOpenError struct {
	Path string
	Err  error
}

func (e *DocumentOpenError) Error() string {
	return fmt.Sprintf("failed to open document %s: %v", e.Path, e.Err)
}

func (e *DocumentOpenError) Unwrap() error { return e.Err }

// PageError wraps a failure on a single page.
type PageError struct {
	Index int
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Index, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
