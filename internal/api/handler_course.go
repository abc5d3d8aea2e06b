package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Epistemic-Technology/course-mcp/internal/llm"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/render"
)

const maxJSONBodyBytes = 64 << 10

type courseRequest struct {
	StudyAids  bool `json:"study_aids"`
	Regenerate bool `json:"regenerate"`
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handler) handleGenerateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := chi.URLParam(r, "id")
	course, err := operations.GenerateCourse(r.Context(), h.deps, id, operations.CourseOptions{
		StudyAids:  req.StudyAids,
		Regenerate: req.Regenerate,
	})
	if errors.Is(err, llm.ErrUnparseableCourse) && course != nil {
		h.log.Warn("Course for %s could not be parsed: %v", id, err)
		writeJson(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Raw: course.Raw})
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, course)
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.deps.Store.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, course)
}

func (h *Handler) handleGetCourseHTML(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.deps.Store.GetDocument(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	course, err := h.deps.Store.GetCourse(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	title := doc.Info.Source.Title
	if title == "" {
		title = doc.Info.Source.Filename
	}
	page, err := render.CourseHTML(course, title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, page)
}
