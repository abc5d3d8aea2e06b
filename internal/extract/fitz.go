package extract

import (
	"errors"
	"fmt"
	"os"
	"sync"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/tsawler/tabula"
)

// FitzOpener opens documents with MuPDF. MuPDF provides the page count, the
// page rasters for OCR and a last-resort text layer. Native text comes from
// the pure-Go parsers: tabula for layout-aware reading order and
// ledongthuc/pdf for raw content-stream order.
type FitzOpener struct{}

func (FitzOpener) Open(path string) (Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DocumentOpenError{Path: path, Err: err}
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, &DocumentOpenError{Path: path, Err: err}
	}
	return &fitzDocument{
		path:   path,
		doc:    doc,
		layout: &layoutCache{load: func() (map[int]string, error) { return tabulaPages(path) }},
	}, nil
}

type fitzDocument struct {
	path string
	doc  *fitz.Document

	layout *layoutCache

	streamOnce sync.Once
	streamFile *os.File
	stream     *pdf.Reader
	streamErr  error
}

func (d *fitzDocument) NumPages() int { return d.doc.NumPage() }

func (d *fitzDocument) NativeText(index int, layoutAware bool) (string, error) {
	if index < 0 || index >= d.NumPages() {
		return "", fmt.Errorf("page index %d out of range (0-%d)", index, d.NumPages()-1)
	}

	var (
		text string
		err  error
	)
	if layoutAware {
		text, err = d.layout.page(index + 1)
	} else {
		text, err = d.streamText(index)
	}
	if err == nil {
		return text, nil
	}

	// MuPDF tolerates content streams the pure-Go parsers reject.
	fallback, ferr := d.doc.Text(index)
	if ferr != nil {
		return "", errors.Join(err, ferr)
	}
	return fallback, nil
}

// layoutCache holds the layout-aware text of every page, keyed by 1-based
// page number. The document is analysed at most once.
type layoutCache struct {
	load func() (map[int]string, error)

	once  sync.Once
	pages map[int]string
	err   error
}

func (c *layoutCache) page(number int) (string, error) {
	c.once.Do(func() {
		c.pages, c.err = c.load()
	})
	if c.err != nil {
		return "", c.err
	}
	return c.pages[number], nil
}

func tabulaPages(path string) (map[int]string, error) {
	doc, _, err := tabula.Open(path).ByColumn().Document()
	if err != nil {
		return nil, err
	}
	pages := make(map[int]string, len(doc.Pages))
	for _, page := range doc.Pages {
		pages[page.Number] = page.ExtractText()
	}
	return pages, nil
}

func (d *fitzDocument) streamText(index int) (string, error) {
	d.streamOnce.Do(func() {
		d.streamFile, d.stream, d.streamErr = pdf.Open(d.path)
	})
	if d.streamErr != nil {
		return "", d.streamErr
	}
	page := d.stream.Page(index + 1)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

func (d *fitzDocument) RenderPNG(index int, dpi float64) ([]byte, error) {
	data, err := d.doc.ImagePNG(index, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d at %v dpi: %w", index, dpi, err)
	}
	return data, nil
}

func (d *fitzDocument) Close() error {
	var errs []error
	if d.streamFile != nil {
		errs = append(errs, d.streamFile.Close())
	}
	errs = append(errs, d.doc.Close())
	return errors.Join(errs...)
}
