package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Epistemic-Technology/course-mcp/models"
)

// ErrUnparseableCourse is returned when the model output is neither JSON nor
// a Python-style literal that can be read as JSON.
var ErrUnparseableCourse = errors.New("course output could not be parsed")

// ParseSections reads the sections out of a model response. Strict JSON is
// tried first. Failing that, the response is cleaned up (code fences,
// surrounding prose, single quotes, True/False/None, trailing commas) and
// parsed again.
func ParseSections(raw string) ([]models.Section, error) {
	sections, strictErr := decodeSections([]byte(strings.TrimSpace(raw)))
	if strictErr == nil {
		return sections, nil
	}

	cleaned := relaxJSON(sliceOuter(stripFences(raw)))
	sections, err := decodeSections([]byte(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableCourse, errors.Join(strictErr, err))
	}
	return sections, nil
}

// decodeSections accepts a bare array, a {"sections": [...]} object or a
// single section object.
func decodeSections(data []byte) ([]models.Section, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}

	switch data[0] {
	case '[':
		var sections []models.Section
		if err := json.Unmarshal(data, &sections); err != nil {
			return nil, err
		}
		return sections, nil
	case '{':
		var wrapped struct {
			Sections []models.Section `json:"sections"`
			Section  string           `json:"section"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Sections != nil {
			return wrapped.Sections, nil
		}
		if wrapped.Section != "" {
			var one models.Section
			if err := json.Unmarshal(data, &one); err != nil {
				return nil, err
			}
			return []models.Section{one}, nil
		}
		return nil, errors.New("object has no sections")
	}
	return nil, fmt.Errorf("unexpected leading character %q", data[0])
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// Drop the language tag on the opening fence.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// sliceOuter cuts s down to the outermost array or object.
func sliceOuter(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// relaxJSON rewrites a Python literal into JSON. Strings in single quotes
// become double-quoted, the Python constants become their JSON spellings and
// commas directly before a closing bracket are dropped.
func relaxJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			i = copyString(&b, s, i)
		case c == ',':
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
			b.WriteByte(c)
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			switch word := s[i:j]; word {
			case "True":
				b.WriteString("true")
			case "False":
				b.WriteString("false")
			case "None":
				b.WriteString("null")
			default:
				b.WriteString(word)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// copyString writes the string literal starting at s[start] as a JSON string
// and returns the index of its closing quote.
func copyString(b *strings.Builder, s string, start int) int {
	quote := s[start]
	b.WriteByte('"')
	i := start + 1
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i++
		case c == quote:
			b.WriteByte('"')
			return i
		case c == '"':
			b.WriteString(`\"`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return i
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
