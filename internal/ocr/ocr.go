// Package ocr wraps a Tesseract client as an explicitly owned resource.
//
// An Engine is created once by the server, handed to the extraction
// pipeline, and closed on shutdown. A Tesseract client is not safe for
// concurrent use, so calls to Recognize are serialized.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// ErrClosed is returned by Recognize after Close.
var ErrClosed = errors.New("ocr engine closed")

// Line is one recognized text line. It is consumed into page text and never
// persisted.
type Line struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

type Options struct {
	Languages []string // Tesseract codes, e.g. "fra", "eng"
	DPI       float64  // resolution the images were rendered at
}

type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   Options
}

// New constructs an engine. The caller owns it and must Close it.
func New(opts Options) (*Engine, error) {
	client := gosseract.NewClient()
	if len(opts.Languages) > 0 {
		if err := client.SetLanguage(opts.Languages...); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set OCR languages %v: %w", opts.Languages, err)
		}
	}
	if opts.DPI > 0 {
		if err := client.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(int(opts.DPI))); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set OCR dpi: %w", err)
		}
	}
	return &Engine{client: client, opts: opts}, nil
}

// Recognize runs OCR over the image at path and returns its text lines in
// the order Tesseract emits them. Lines with no text are dropped, so an
// image without recognizable text yields an empty slice and no error.
func (e *Engine) Recognize(ctx context.Context, path string) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil, ErrClosed
	}
	if err := e.client.SetImage(path); err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize %s: %w", path, err)
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, Line{Text: text, Box: b.Box, Confidence: b.Confidence / 100.0})
	}
	return lines, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Text concatenates line texts, each followed by a newline.
func Text(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}
