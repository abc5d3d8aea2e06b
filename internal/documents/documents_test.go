package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/pdftest"
	"github.com/Epistemic-Technology/course-mcp/models"
)

const tenMiB = 10 * 1024 * 1024

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		max     int64
		wantErr error
	}{
		{"under limit", 100, 1024, nil},
		{"exactly at limit", 1024, 1024, nil},
		{"one byte over", 1025, 1024, ErrTooLarge},
		{"no limit", 4096, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ReadLimited(bytes.NewReader(make([]byte, tt.size)), tt.max)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && len(data) != tt.size {
				t.Errorf("read %d bytes, want %d", len(data), tt.size)
			}
		})
	}
}

func TestFetchUpload(t *testing.T) {
	f := &Fetcher{MaxBytes: tenMiB, Log: logger.NewNoOpLogger()}

	t.Run("accepted", func(t *testing.T) {
		src := &models.SourceInfo{Filename: "cours.pdf"}
		data, err := f.Fetch(context.Background(), src, []byte("%PDF-1.7"))
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if string(data) != "%PDF-1.7" || src.Kind != models.SourceUpload {
			t.Errorf("unexpected result %q, kind %q", data, src.Kind)
		}
	})

	t.Run("over 10 MiB", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &models.SourceInfo{Kind: models.SourceUpload}, make([]byte, tenMiB+1))
		if !errors.Is(err, ErrTooLarge) {
			t.Fatalf("expected ErrTooLarge, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &models.SourceInfo{Kind: models.SourceUpload}, nil)
		if !errors.Is(err, ErrNoData) {
			t.Fatalf("expected ErrNoData, got %v", err)
		}
	})
}

func TestFetchCloudSourcesNotImplemented(t *testing.T) {
	f := &Fetcher{MaxBytes: tenMiB}
	for _, kind := range []models.SourceKind{models.SourceGoogleDrive, models.SourceOneDrive} {
		t.Run(string(kind), func(t *testing.T) {
			_, err := f.Fetch(context.Background(), &models.SourceInfo{Kind: kind}, nil)
			if !errors.Is(err, ErrSourceNotImplemented) {
				t.Errorf("expected ErrSourceNotImplemented, got %v", err)
			}
		})
	}
}

func TestFetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/cours.pdf":
			fmt.Fprint(w, "%PDF-1.4 body")
		case "/big.pdf":
			w.Write(make([]byte, 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := &Fetcher{MaxBytes: 1024, HTTPClient: srv.Client()}

	t.Run("ok", func(t *testing.T) {
		src := &models.SourceInfo{Kind: models.SourceURL, URL: srv.URL + "/files/cours.pdf?dl=1"}
		data, err := f.Fetch(context.Background(), src, nil)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if string(data) != "%PDF-1.4 body" {
			t.Errorf("data = %q", data)
		}
		if src.Filename != "cours.pdf" {
			t.Errorf("Filename = %q, want cours.pdf", src.Filename)
		}
	})

	t.Run("too large", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &models.SourceInfo{Kind: models.SourceURL, URL: srv.URL + "/big.pdf"}, nil)
		if !errors.Is(err, ErrTooLarge) {
			t.Fatalf("expected ErrTooLarge, got %v", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), &models.SourceInfo{Kind: models.SourceURL, URL: srv.URL + "/missing.pdf"}, nil)
		if err == nil || !strings.Contains(err.Error(), "404") {
			t.Fatalf("expected 404 error, got %v", err)
		}
	})
}

func TestFetchZoteroRequiresCredentials(t *testing.T) {
	f := &Fetcher{MaxBytes: tenMiB}
	_, err := f.Fetch(context.Background(), &models.SourceInfo{Kind: models.SourceZotero, ZoteroID: "ABCD1234"}, nil)
	if err == nil {
		t.Fatal("expected error without Zotero credentials")
	}
}

func TestFetchZotero(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Zotero integration test in short mode")
	}
	apiKey := os.Getenv("ZOTERO_API_KEY")
	libraryID := os.Getenv("ZOTERO_LIBRARY_ID")
	attachment := os.Getenv("ZOTERO_TEST_ATTACHMENT")
	if apiKey == "" || libraryID == "" || attachment == "" {
		t.Skip("ZOTERO_API_KEY, ZOTERO_LIBRARY_ID and ZOTERO_TEST_ATTACHMENT must be set")
	}

	f := &Fetcher{MaxBytes: tenMiB, ZoteroAPIKey: apiKey, ZoteroLibraryID: libraryID, Log: logger.NewNoOpLogger()}
	src := &models.SourceInfo{Kind: models.SourceZotero, ZoteroID: attachment}
	data, err := f.Fetch(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty attachment")
	}
}

func TestValidateRejectsNonPDF(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("This is not a PDF")},
		{"truncated pdf", []byte("%PDF-1.4\n%broken")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Validate(tt.data); !errors.Is(err, ErrNotPDF) {
				t.Errorf("expected ErrNotPDF, got %v", err)
			}
		})
	}
}

func TestValidatePageCount(t *testing.T) {
	for _, pages := range []int{1, 3} {
		n, err := Validate(pdftest.Minimal(pages, "validate"))
		if err != nil {
			t.Fatalf("Validate(%d pages): %v", pages, err)
		}
		if n != pages {
			t.Errorf("page count = %d, want %d", n, pages)
		}
	}
}

func TestValidateSamples(t *testing.T) {
	files, _ := filepath.Glob(filepath.Join("..", "extract", "testdata", "*.pdf"))
	if len(files) == 0 {
		t.Skip("No sample PDFs found")
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		n, err := Validate(data)
		if err != nil {
			t.Errorf("%s: %v", path, err)
		}
		t.Logf("%s: %d pages", filepath.Base(path), n)
	}
}

func TestDocumentID(t *testing.T) {
	a := DocumentID([]byte("%PDF-1.4 one"))
	b := DocumentID([]byte("%PDF-1.4 one"))
	c := DocumentID([]byte("%PDF-1.4 two"))

	if a != b {
		t.Errorf("same content gave %s and %s", a, b)
	}
	if a == c {
		t.Error("different content gave the same id")
	}
	if !strings.HasPrefix(a, "doc_") || len(a) != len("doc_")+16 {
		t.Errorf("unexpected id format %q", a)
	}
}

func TestWriteTemp(t *testing.T) {
	base := t.TempDir()
	path, cleanup, err := WriteTemp(base, "../../etc/cours", []byte("%PDF"))
	if err != nil {
		t.Fatalf("WriteTemp: %v", err)
	}
	if filepath.Base(path) != "cours.pdf" {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}
	if !strings.HasPrefix(path, base) {
		t.Errorf("%s escaped %s", path, base)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("temp file missing: %v", err)
	}

	cleanup()
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("temp dir not removed: %v", err)
	}
}
