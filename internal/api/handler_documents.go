package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

type documentResponse struct {
	*models.ExtractedDocument
	Cached    bool     `json:"cached"`
	Resources []string `json:"resources"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.deps.Fetcher.MaxBytes

	opts, err := h.extractOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if maxBytes > 0 {
		if r.ContentLength > maxBytes+multipartOverhead {
			writeError(w, http.StatusRequestEntityTooLarge, documents.CheckSize(r.ContentLength, maxBytes))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: limit is %d bytes", documents.ErrTooLarge, maxBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing multipart file field \"file\": %w", err))
		return
	}
	defer file.Close()

	if err := documents.CheckSize(header.Size, maxBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	data, err := documents.ReadLimited(file, maxBytes)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	doc, cached, err := operations.GetOrExtractDocument(r.Context(), h.deps, operations.ExtractRequest{
		Source:  models.SourceInfo{Kind: models.SourceUpload, Filename: header.Filename},
		Data:    data,
		Options: opts,
		Refresh: refresh,
	})
	if err != nil {
		h.log.Error("Upload of %q failed: %v", header.Filename, err)
		writeError(w, statusFor(err), err)
		return
	}

	code := http.StatusCreated
	if cached {
		code = http.StatusOK
	}
	writeJson(w, code, documentResponse{
		ExtractedDocument: doc,
		Cached:            cached,
		Resources:         storage.ResourcePaths(doc.Info.DocumentID, doc, doc.Info.HasCourse),
	})
}

// extractOptions applies the ocr and layout query parameters to the defaults.
func (h *Handler) extractOptions(r *http.Request) (opts extract.Options, err error) {
	opts = h.opts.Extract
	q := r.URL.Query()
	if v := q.Get("ocr"); v != "" {
		if opts.OCRFallback, err = strconv.ParseBool(v); err != nil {
			return opts, fmt.Errorf("invalid ocr parameter %q", v)
		}
	}
	if v := q.Get("layout"); v != "" {
		if opts.LayoutAware, err = strconv.ParseBool(v); err != nil {
			return opts, fmt.Errorf("invalid layout parameter %q", v)
		}
	}
	return opts, nil
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.deps.Store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, docs)
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.deps.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, documentResponse{
		ExtractedDocument: doc,
		Cached:            true,
		Resources:         storage.ResourcePaths(doc.Info.DocumentID, doc, doc.Info.HasCourse),
	})
}

func (h *Handler) handleGetPages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exists, err := h.deps.Store.DocumentExists(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Errorf("document %s: %w", id, storage.ErrNotFound))
		return
	}

	pages, err := h.deps.Store.GetPages(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, pages)
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Store.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
