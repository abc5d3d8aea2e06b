// Package api serves the extraction pipeline and course generation over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/llm"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
)

// multipartOverhead is allowed on top of the file size limit for the form
// boundaries and headers of an upload.
const multipartOverhead = 1 << 20

type Options struct {
	// Extract holds the defaults the ocr and layout query parameters override.
	Extract     extract.Options
	CORSOrigins []string
	// MCP is mounted at /mcp when set.
	MCP     http.Handler
	Version string
}

type Handler struct {
	deps *operations.Deps
	opts Options
	log  logger.Logger
}

func New(deps *operations.Deps, opts Options, log logger.Logger) *Handler {
	return &Handler{deps: deps, opts: opts, log: log}
}

// Router returns the complete HTTP handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "Mcp-Session-Id", "Mcp-Protocol-Version"},
		ExposedHeaders:   []string{requestIDHeader, "Mcp-Session-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", h.Attach)

	if h.opts.MCP != nil {
		r.Handle("/mcp", h.opts.MCP)
	}
	return r
}

func (h *Handler) Attach(r chi.Router) {
	r.Post("/documents", h.handleUpload)
	r.Get("/documents", h.handleListDocuments)
	r.Get("/documents/{id}", h.handleGetDocument)
	r.Get("/documents/{id}/pages", h.handleGetPages)
	r.Delete("/documents/{id}", h.handleDeleteDocument)

	r.Post("/documents/{id}/course", h.handleGenerateCourse)
	r.Get("/documents/{id}/course", h.handleGetCourse)
	r.Get("/documents/{id}/course.html", h.handleGetCourseHTML)

	r.Post("/quiz/check", h.handleQuizCheck)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.opts.Version,
	})
}

func writeJson(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	// Raw carries unparseable model output.
	Raw string `json:"raw,omitempty"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	text := http.StatusText(code)

	if err != nil {
		text = err.Error()
	}

	writeJson(w, code, errorResponse{Error: text})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var openErr *extract.DocumentOpenError
	var maxErr *http.MaxBytesError

	switch {
	case errors.Is(err, documents.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, documents.ErrNotPDF), errors.Is(err, documents.ErrNoData):
		return http.StatusBadRequest
	case errors.As(err, &openErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, documents.ErrSourceNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, operations.ErrNoSuchQuestion):
		return http.StatusNotFound
	case errors.Is(err, llm.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrUnparseableCourse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
