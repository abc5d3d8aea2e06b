package api

import (
	"errors"
	"net/http"

	"github.com/Epistemic-Technology/course-mcp/internal/operations"
)

type quizCheckRequest struct {
	DocumentID string `json:"document_id"`
	Section    int    `json:"section"`
	Question   int    `json:"question"`
	Answer     string `json:"answer"`
}

func (h *Handler) handleQuizCheck(w http.ResponseWriter, r *http.Request) {
	var req quizCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, errors.New("document_id is required"))
		return
	}

	res, err := operations.CheckCourseAnswer(r.Context(), h.deps.Store, req.DocumentID, req.Section, req.Question, req.Answer)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, http.StatusOK, res)
}
