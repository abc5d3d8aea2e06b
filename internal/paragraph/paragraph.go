// Package paragraph rebuilds paragraphs from text whose hard line breaks come
// from PDF rendering or OCR rather than from the author.
//
// The rule is lexical: a line that starts with a lowercase letter continues
// the current paragraph, anything else starts a new one. It will wrongly
// merge a capitalised sentence that happens to follow a paragraph and will
// fail to merge a continuation starting with a proper noun.
package paragraph

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Separator joins paragraphs in Merge output.
const Separator = "\n\n"

// Merge joins continuation lines into paragraphs. Blank lines are dropped
// and paragraphs are joined with Separator.
func Merge(text string) string {
	return strings.Join(Paragraphs(text), Separator)
}

// Paragraphs is Merge without the final join.
func Paragraphs(text string) []string {
	var (
		paragraphs []string
		buf        strings.Builder
	)
	flush := func() {
		if buf.Len() > 0 {
			paragraphs = append(paragraphs, buf.String())
			buf.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if buf.Len() > 0 && IsContinuation(line) {
			buf.WriteByte(' ')
			buf.WriteString(line)
			continue
		}
		flush()
		buf.WriteString(line)
	}
	flush()

	return paragraphs
}

// frenchLower lists the accented lowercase letters, besides a-z, that can
// start a continuation line.
const frenchLower = "éèàçâêîôûëïü"

// IsContinuation reports whether line starts with a-z or one of the French
// accented lowercase letters é è à ç â ê î ô û ë ï ü. Other lowercase
// letters (ñ, ã, ą, ß, Greek) start a new paragraph. The first character is
// composed first so that decomposed text from a PDF text layer is judged like
// its precomposed form.
func IsContinuation(line string) bool {
	if n := norm.NFC.NextBoundaryInString(line, true); n > 0 {
		line = norm.NFC.String(line[:n])
	}
	r, _ := utf8.DecodeRuneInString(line)
	if r == utf8.RuneError {
		return false
	}
	return (r >= 'a' && r <= 'z') || strings.ContainsRune(frenchLower, r)
}
