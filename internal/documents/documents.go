// Package documents fetches PDF bytes from the supported sources and checks
// them before any extraction work starts.
package documents

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Epistemic-Technology/zotero/zotero"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/models"
)

var (
	ErrTooLarge             = errors.New("document exceeds the upload size limit")
	ErrNotPDF               = errors.New("document is not a valid PDF")
	ErrNoData               = errors.New("no data provided")
	ErrSourceNotImplemented = errors.New("source not implemented, upload the file locally instead")
)

// Fetcher retrieves PDFs. MaxBytes applies to every source.
type Fetcher struct {
	MaxBytes        int64
	HTTPClient      *http.Client
	ZoteroAPIKey    string
	ZoteroLibraryID string
	Log             logger.Logger
}

// Fetch returns the PDF bytes for src. For uploads the bytes are passed in
// data; the other sources are downloaded. Oversized payloads fail with
// ErrTooLarge before anything else happens to them.
func (f *Fetcher) Fetch(ctx context.Context, src *models.SourceInfo, data []byte) ([]byte, error) {
	switch src.Kind {
	case models.SourceUpload, "":
		if len(data) == 0 {
			return nil, ErrNoData
		}
		if err := CheckSize(int64(len(data)), f.MaxBytes); err != nil {
			return nil, err
		}
		src.Kind = models.SourceUpload
		return data, nil
	case models.SourceURL:
		if src.URL == "" {
			return nil, ErrNoData
		}
		return f.fromURL(ctx, src)
	case models.SourceZotero:
		if src.ZoteroID == "" {
			return nil, ErrNoData
		}
		return f.fromZotero(ctx, src)
	case models.SourceGoogleDrive, models.SourceOneDrive:
		return nil, fmt.Errorf("%s: %w", src.Kind, ErrSourceNotImplemented)
	}
	return nil, fmt.Errorf("unknown source kind %q", src.Kind)
}

func (f *Fetcher) fromURL(ctx context.Context, src *models.SourceInfo) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", src.URL, resp.StatusCode)
	}
	if resp.ContentLength > 0 {
		if err := CheckSize(resp.ContentLength, f.MaxBytes); err != nil {
			return nil, err
		}
	}

	data, err := ReadLimited(resp.Body, f.MaxBytes)
	if err != nil {
		return nil, err
	}
	if src.Filename == "" {
		src.Filename = filenameFromURL(src.URL)
	}
	return data, nil
}

func (f *Fetcher) fromZotero(ctx context.Context, src *models.SourceInfo) ([]byte, error) {
	if f.ZoteroAPIKey == "" || f.ZoteroLibraryID == "" {
		return nil, errors.New("ZOTERO_API_KEY and ZOTERO_LIBRARY_ID must be set to fetch Zotero attachments")
	}
	client := zotero.NewClient(f.ZoteroLibraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(f.ZoteroAPIKey))

	data, err := client.File(ctx, src.ZoteroID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Zotero attachment %s: %w", src.ZoteroID, err)
	}
	if err := CheckSize(int64(len(data)), f.MaxBytes); err != nil {
		return nil, err
	}

	// Names are best effort; the file is what matters.
	if item, err := client.Item(ctx, src.ZoteroID, nil); err == nil {
		src.Filename = item.Data.Filename
		src.Title = item.Data.Title
		if item.Data.ParentItem != "" {
			if parent, err := client.Item(ctx, item.Data.ParentItem, nil); err == nil && parent.Data.Title != "" {
				src.Title = parent.Data.Title
			}
		}
	} else if f.Log != nil {
		f.Log.Warn("Failed to fetch Zotero item %s: %v", src.ZoteroID, err)
	}
	return data, nil
}

// CheckSize rejects sizes above max. A non-positive max disables the check.
func CheckSize(size, max int64) error {
	if max > 0 && size > max {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrTooLarge, size, max)
	}
	return nil
}

// ReadLimited reads r fully, failing with ErrTooLarge once more than max
// bytes have been seen.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, max)
	}
	return data, nil
}

// IsPDF checks the %PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

// Validate checks that data parses as a PDF and returns its page count.
func Validate(data []byte) (int, error) {
	if !IsPDF(data) {
		return 0, ErrNotPDF
	}
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	return n, nil
}

// DocumentID derives a stable identifier from the content, so the same PDF
// uploaded twice maps to the same stored document.
func DocumentID(data []byte) string {
	sum := sha256.Sum256(data)
	return "doc_" + hex.EncodeToString(sum[:8])
}

// WriteTemp writes data to a fresh temporary directory under dir and
// returns the file path and a cleanup function removing the directory.
func WriteTemp(dir, name string, data []byte) (string, func(), error) {
	tmpDir, err := os.MkdirTemp(dir, "course-mcp-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	path := filepath.Join(tmpDir, safeName(name))
	if err := os.WriteFile(path, data, 0600); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, cleanup, nil
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "document.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func filenameFromURL(raw string) string {
	raw = strings.SplitN(raw, "?", 2)[0]
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[i+1:]
	}
	return raw
}
