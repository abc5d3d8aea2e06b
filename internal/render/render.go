// Package render turns generated courses into Markdown and HTML.
package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/Epistemic-Technology/course-mcp/models"
)

// Markdown renders a course as a Markdown document. Quiz answers are folded
// into <details> blocks so they stay hidden until opened.
func Markdown(course *models.Course, title string) string {
	if title == "" {
		title = "Cours"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escape(title))

	for _, s := range course.Sections {
		fmt.Fprintf(&b, "## %s\n\n", escape(s.Section))
		if s.Summary != "" {
			b.WriteString(escape(strings.TrimSpace(s.Summary)))
			b.WriteString("\n\n")
		}

		if len(s.RelatedElements) > 0 {
			quoted := make([]string, len(s.RelatedElements))
			for i, e := range s.RelatedElements {
				quoted[i] = "`" + e + "`"
			}
			fmt.Fprintf(&b, "**Éléments liés :** %s\n\n", strings.Join(quoted, ", "))
		}

		if len(s.QCM) > 0 {
			b.WriteString("### QCM\n\n")
			for i, q := range s.QCM {
				fmt.Fprintf(&b, "%d. %s\n", i+1, escape(q.Question))
				for _, c := range q.Choices {
					fmt.Fprintf(&b, "   - %s\n", escape(c))
				}
				fmt.Fprintf(&b, "\n<details><summary>Réponse</summary>%s</details>\n\n", escape(q.Answer))
			}
		}

		if len(s.Glossary) > 0 {
			b.WriteString("### Glossaire\n\n| Terme | Définition |\n| --- | --- |\n")
			for _, g := range s.Glossary {
				fmt.Fprintf(&b, "| %s | %s |\n", tableCell(g.Term), tableCell(g.Definition))
			}
			b.WriteString("\n")
		}

		if len(s.Flashcards) > 0 {
			b.WriteString("### Flashcards\n\n")
			for _, f := range s.Flashcards {
				fmt.Fprintf(&b, "- **%s** : %s\n", escape(f.Front), escape(f.Back))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// escape neutralizes HTML in model output; the page is rendered with raw
// HTML enabled for the answer blocks.
var escape = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace

func tableCell(s string) string {
	s = escape(strings.ReplaceAll(s, "\n", " "))
	return strings.ReplaceAll(s, "|", `\|`)
}

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		treeblood.MathML(),
	),
	goldmark.WithRendererOptions(
		goldhtml.WithUnsafe(),
	),
)

// HTML converts Markdown to an HTML fragment. GFM tables are supported and
// $...$ / $$...$$ formulas are rendered as MathML.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// CourseHTML renders a course as a standalone HTML page.
func CourseHTML(course *models.Course, title string) (string, error) {
	body, err := HTML(Markdown(course, title))
	if err != nil {
		return "", err
	}
	if title == "" {
		title = "Cours"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body), nil
}
