package assets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
)

func TestFormulas(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  []string
		pageN []int
	}{
		{
			name:  "no formulas",
			pages: []string{"Plain text\nmore text"},
		},
		{
			name:  "inline formula",
			pages: []string{"Intro\n  On a $E = mc^2$ ici  \nfin"},
			want:  []string{"On a $E = mc^2$ ici"},
			pageN: []int{1},
		},
		{
			name:  "formulas on several pages",
			pages: []string{"$a$", "", "x\n$$\\int f$$"},
			want:  []string{"$a$", "$$\\int f$$"},
			pageN: []int{1, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Formulas(tt.pages)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d formulas, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Text != tt.want[i] || got[i].Page != tt.pageN[i] {
					t.Errorf("formula %d = %+v, want page %d %q", i, got[i], tt.pageN[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractInvalidDocumentWarns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	data := []byte("%PDF-1.4\n%broken")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	e := NewExtractor(out, logger.NewNoOpLogger())
	res := e.Extract(context.Background(), "doc_test", path, data, []string{"$x$"})

	if len(res.Formulas) != 1 {
		t.Errorf("formulas should survive other failures, got %+v", res.Formulas)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected warnings for a broken document")
	}
	for _, w := range res.Warnings {
		if !strings.HasPrefix(w, "table extraction") && !strings.HasPrefix(w, "image extraction") {
			t.Errorf("unexpected warning %q", w)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "doc_test")); err != nil {
		t.Errorf("document directory not created: %v", err)
	}
}

func TestTablesUnreadableDocument(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(broken, []byte("%PDF-1.4\n%broken"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.pdf")},
		{name: "truncated document", path: broken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbls, _, err := Tables(tt.path)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), "failed to analyze document") {
				t.Errorf("unexpected error %v", err)
			}
			if len(tbls) != 0 {
				t.Errorf("expected no tables, got %d", len(tbls))
			}
		})
	}
}

func TestExtractCancelledSkipsDocumentWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor("", logger.NewNoOpLogger())
	res := e.Extract(ctx, "doc_test", "/nonexistent.pdf", nil, []string{"$y$"})
	if len(res.Warnings) != 0 {
		t.Errorf("cancelled extraction should not attempt tables or images: %v", res.Warnings)
	}
	if len(res.Formulas) != 1 {
		t.Errorf("formulas = %+v", res.Formulas)
	}
}

func TestExtractSamples(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping asset extraction on sample PDFs in short mode")
	}
	files, _ := filepath.Glob(filepath.Join("..", "extract", "testdata", "*.pdf"))
	if len(files) == 0 {
		t.Skip("No sample PDFs found")
	}

	e := NewExtractor(t.TempDir(), logger.NewNoOpLogger())
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		res := e.Extract(context.Background(), filepath.Base(path), path, data, nil)
		for _, tbl := range res.Tables {
			if !strings.HasPrefix(tbl.FileName, "table_page") {
				t.Errorf("unexpected table file name %s", tbl.FileName)
			}
		}
		for _, img := range res.Images {
			if !strings.HasPrefix(img.FileName, "image_page") {
				t.Errorf("unexpected image file name %s", img.FileName)
			}
		}
		t.Logf("%s: %d tables, %d images, warnings %v", filepath.Base(path), len(res.Tables), len(res.Images), res.Warnings)
	}
}
