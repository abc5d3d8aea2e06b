package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

// ErrNoSuchQuestion is returned when a section or question index is out of
// range for the stored course.
var ErrNoSuchQuestion = errors.New("no such question")

// QuizResult is the outcome of checking one answer.
type QuizResult struct {
	Correct bool   `json:"correct"`
	Answer  string `json:"answer"`
	Given   string `json:"given"`
}

// CheckAnswer compares answer with the expected answer of q, ignoring case
// and surrounding whitespace.
func CheckAnswer(q models.Question, answer string) QuizResult {
	return QuizResult{
		Correct: strings.EqualFold(strings.TrimSpace(q.Answer), strings.TrimSpace(answer)),
		Answer:  q.Answer,
		Given:   answer,
	}
}

// CheckCourseAnswer checks an answer against question of section in the
// stored course of docID. Both indexes are 0-based.
func CheckCourseAnswer(ctx context.Context, store storage.Store, docID string, section, question int, answer string) (QuizResult, error) {
	course, err := store.GetCourse(ctx, docID)
	if err != nil {
		return QuizResult{}, err
	}
	if section < 0 || section >= len(course.Sections) {
		return QuizResult{}, fmt.Errorf("section %d: %w", section, ErrNoSuchQuestion)
	}
	qcm := course.Sections[section].QCM
	if question < 0 || question >= len(qcm) {
		return QuizResult{}, fmt.Errorf("section %d question %d: %w", section, question, ErrNoSuchQuestion)
	}
	return CheckAnswer(qcm[question], answer), nil
}
