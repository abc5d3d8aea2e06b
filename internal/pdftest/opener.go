package pdftest

import (
	"errors"
	"sync"

	"github.com/Epistemic-Technology/course-mcp/internal/extract"
)

// TextOpener opens every path as a document whose pages hold Pages as their
// native text. It never renders, so blank pages cannot be OCRed.
type TextOpener struct {
	Pages []string
	// Err makes Open fail with a *extract.DocumentOpenError.
	Err error

	mu    sync.Mutex
	opens int
}

func (o *TextOpener) Open(path string) (extract.Document, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.Err != nil {
		return nil, &extract.DocumentOpenError{Path: path, Err: o.Err}
	}
	return textDocument(o.Pages), nil
}

// Opens reports how many times Open was called.
func (o *TextOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

type textDocument []string

func (d textDocument) NumPages() int { return len(d) }

func (d textDocument) NativeText(index int, layoutAware bool) (string, error) {
	return d[index], nil
}

func (d textDocument) RenderPNG(index int, dpi float64) ([]byte, error) {
	return nil, errors.New("rendering not supported")
}

func (d textDocument) Close() error { return nil }
