// Package assets pulls the non-text parts out of a PDF: tables, embedded
// images and lines that look like LaTeX formulas. Every step is best effort.
// A failure becomes a warning and the remaining steps still run.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/tsawler/tabula"
	"github.com/tsawler/tabula/tables"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/models"
)

type Result struct {
	Tables   []models.Table
	Images   []models.Image
	Formulas []models.Formula
	Warnings []string
}

// Extractor writes asset files under outDir/<documentID>. With an empty
// outDir nothing is written and only the metadata and table contents are
// returned.
type Extractor struct {
	outDir string
	log    logger.Logger
}

func NewExtractor(outDir string, log logger.Logger) *Extractor {
	return &Extractor{outDir: outDir, log: log}
}

// Extract runs table, image and formula extraction. pdfPath and data are the
// same document; rawPages are the per-page texts before paragraph merging.
func (e *Extractor) Extract(ctx context.Context, docID, pdfPath string, data []byte, rawPages []string) *Result {
	res := &Result{Formulas: Formulas(rawPages)}

	dir, err := e.documentDir(docID)
	if err != nil {
		res.warn(e.log, "assets directory unavailable: %v", err)
	}

	if ctx.Err() != nil {
		return res
	}
	tbls, notes, err := Tables(pdfPath)
	for _, note := range notes {
		res.warn(e.log, "table extraction: %s", note)
	}
	if err != nil {
		res.warn(e.log, "table extraction failed: %v", err)
	}
	for i := range tbls {
		if dir == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, tbls[i].FileName), []byte(tbls[i].CSV), 0644); err != nil {
			res.warn(e.log, "failed to save %s: %v", tbls[i].FileName, err)
		}
	}
	res.Tables = tbls

	if ctx.Err() != nil {
		return res
	}
	imgs, err := e.images(data, dir)
	if err != nil {
		res.warn(e.log, "image extraction failed: %v", err)
	}
	res.Images = imgs

	return res
}

func (r *Result) warn(log logger.Logger, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	log.Warn("%s", msg)
	r.Warnings = append(r.Warnings, msg)
}

func (e *Extractor) documentDir(docID string) (string, error) {
	if e.outDir == "" {
		return "", nil
	}
	dir := filepath.Join(e.outDir, docID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Tables detects tables on every page. File names follow
// table_page{page}_{n}.csv with 1-based numbers. The parser's non-fatal
// warnings are returned alongside the tables.
func Tables(pdfPath string) ([]models.Table, []string, error) {
	doc, warnings, err := tabula.Open(pdfPath).Document()
	notes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		notes = append(notes, fmt.Sprint(w))
	}
	if err != nil {
		return nil, notes, fmt.Errorf("failed to analyze document: %w", err)
	}

	detector := tables.NewGeometricDetector()
	var out []models.Table
	for _, page := range doc.Pages {
		found, err := detector.Detect(page)
		if err != nil {
			return out, notes, fmt.Errorf("page %d: %w", page.Number, err)
		}
		n := 0
		for _, t := range found {
			if t == nil || t.RowCount() == 0 {
				continue
			}
			n++
			out = append(out, models.Table{
				Page:     page.Number,
				Index:    n,
				FileName: fmt.Sprintf("table_page%d_%d.csv", page.Number, n),
				CSV:      t.ToCSV(),
				Markdown: t.ToMarkdown(),
				Rows:     t.RowCount(),
				Cols:     t.ColCount(),
			})
		}
	}
	return out, notes, nil
}

// images extracts embedded image streams, named image_page{page}_{n}.{ext}.
func (e *Extractor) images(data []byte, dir string) ([]models.Image, error) {
	perPage, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, nil)
	if err != nil {
		return nil, err
	}

	var out []models.Image
	for _, byObj := range perPage {
		objNrs := make([]int, 0, len(byObj))
		for nr := range byObj {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for i, nr := range objNrs {
			img := byObj[nr]
			ext := strings.TrimPrefix(img.FileType, ".")
			if ext == "" {
				ext = "png"
			}
			meta := models.Image{
				Page:     img.PageNr,
				Index:    i + 1,
				FileName: fmt.Sprintf("image_page%d_%d.%s", img.PageNr, i+1, ext),
				FileType: ext,
				Width:    img.Width,
				Height:   img.Height,
			}

			w := io.Discard
			var f *os.File
			if dir != "" {
				f, err = os.Create(filepath.Join(dir, meta.FileName))
				if err != nil {
					return out, err
				}
				w = f
			}
			meta.Size, err = io.Copy(w, img)
			if f != nil {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
			}
			if err != nil {
				return out, fmt.Errorf("failed to save %s: %w", meta.FileName, err)
			}
			out = append(out, meta)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, nil
}

// Formulas returns every line containing a '$', which is how inline LaTeX
// shows up in a text layer. Pages are 1-based.
func Formulas(rawPages []string) []models.Formula {
	var out []models.Formula
	for i, text := range rawPages {
		for _, line := range strings.Split(text, "\n") {
			if strings.Contains(line, "$") {
				out = append(out, models.Formula{Page: i + 1, Text: strings.TrimSpace(line)})
			}
		}
	}
	return out
}
