package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/ocr"
)

// DefaultDPI is the resolution pages are rendered at before OCR.
const DefaultDPI = 300

// Method records how a page's text was obtained.
type Method string

const (
	MethodTextLayer Method = "text-layer"
	MethodOCR       Method = "ocr"
	MethodNone      Method = "none"
)

// WarningNoOCRData marks a page where OCR ran but recognized nothing.
const WarningNoOCRData = "no OCR data"

type Options struct {
	// OCRFallback runs OCR on pages whose native text is blank.
	OCRFallback bool
	// LayoutAware keeps reading order across columns.
	LayoutAware bool
}

// Page is the text extracted from one page.
type Page struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Method  Method `json:"method"`
	Warning string `json:"warning,omitempty"`
	// Raw is the text before paragraph merging.
	Raw string `json:"-"`
}

// Recognizer runs OCR over an image file.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) ([]ocr.Line, error)
}

// PageExtractor produces the raw, unmerged text of single pages.
type PageExtractor struct {
	ocr     Recognizer
	dpi     float64
	tempDir string
	log     logger.Logger
}

// NewPageExtractor builds an extractor. rec may be nil, in which case OCR
// fallback is reported as unavailable instead of run. An empty tempDir means
// the system temp directory.
func NewPageExtractor(rec Recognizer, dpi float64, tempDir string, log logger.Logger) *PageExtractor {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PageExtractor{ocr: rec, dpi: dpi, tempDir: tempDir, log: log}
}

// Extract returns the raw text of page index.
func (p *PageExtractor) Extract(ctx context.Context, doc Document, index int, opts Options) (Page, error) {
	page := Page{Index: index, Method: MethodTextLayer}

	text, err := doc.NativeText(index, opts.LayoutAware)
	if err != nil {
		return Page{Index: index, Method: MethodNone}, &PageError{Index: index, Err: fmt.Errorf("failed to read text layer: %w", err)}
	}
	if strings.TrimSpace(text) != "" || !opts.OCRFallback {
		page.Text = text
		return page, nil
	}

	if p.ocr == nil {
		p.log.Warn("Page %d has no text layer and OCR is not available", index)
		page.Warning = "no text layer and OCR unavailable"
		return page, nil
	}

	page.Method = MethodOCR
	lines, err := p.recognize(ctx, doc, index)
	if err != nil {
		return page, &PageError{Index: index, Err: err}
	}
	if len(lines) == 0 {
		p.log.Warn("Page %d: %s", index, WarningNoOCRData)
		page.Warning = WarningNoOCRData
		return page, nil
	}

	p.log.Debug("Page %d: OCR recognized %d lines", index, len(lines))
	page.Text = ocr.Text(lines)
	return page, nil
}

func (p *PageExtractor) recognize(ctx context.Context, doc Document, index int) ([]ocr.Line, error) {
	png, err := doc.RenderPNG(index, p.dpi)
	if err != nil {
		return nil, err
	}

	var lines []ocr.Line
	err = withTempImage(p.tempDir, index, png, func(path string) error {
		var rerr error
		lines, rerr = p.ocr.Recognize(ctx, path)
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}
	return lines, nil
}

// withTempImage writes data to a uniquely named file in dir, calls fn with
// its path and removes the file when fn returns, whatever the outcome.
func withTempImage(dir string, index int, data []byte, fn func(path string) error) error {
	f, err := os.CreateTemp(dir, fmt.Sprintf("page-%d-*.png", index+1))
	if err != nil {
		return fmt.Errorf("failed to create temp image: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to write temp image: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to write temp image: %w", cerr)
	}

	return fn(path)
}
