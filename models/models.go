package models

import "time"

type SourceKind string

const (
	SourceUpload      SourceKind = "upload"
	SourceURL         SourceKind = "url"
	SourceZotero      SourceKind = "zotero"
	SourceGoogleDrive SourceKind = "google-drive"
	SourceOneDrive    SourceKind = "onedrive"
)

// SourceInfo records where a PDF came from.
type SourceInfo struct {
	Kind     SourceKind `json:"kind"`
	Title    string     `json:"title,omitempty"`
	Filename string     `json:"filename,omitempty"`
	URL      string     `json:"url,omitempty"`
	ZoteroID string     `json:"zotero_id,omitempty"`
}

// DocumentInfo is the summary row of a stored document.
type DocumentInfo struct {
	DocumentID string     `json:"document_id"`
	Source     SourceInfo `json:"source"`
	PageCount  int        `json:"page_count"`
	OCRPages   int        `json:"ocr_pages"`
	SizeBytes  int64      `json:"size_bytes"`
	HasCourse  bool       `json:"has_course"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PageText is the normalized text of one page.
type PageText struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Method  string `json:"method"`
	Warning string `json:"warning,omitempty"`
}

type Table struct {
	Page     int    `json:"page"`
	Index    int    `json:"index"`
	FileName string `json:"file_name"`
	CSV      string `json:"csv"`
	Markdown string `json:"markdown,omitempty"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
}

type Image struct {
	Page     int    `json:"page"`
	Index    int    `json:"index"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size"`
}

// Formula is a text-layer line that looks like inline LaTeX.
type Formula struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// ExtractedDocument is everything stored for one PDF.
type ExtractedDocument struct {
	Info     DocumentInfo `json:"info"`
	Pages    []PageText   `json:"pages"`
	Tables   []Table      `json:"tables,omitempty"`
	Images   []Image      `json:"images,omitempty"`
	Formulas []Formula    `json:"formulas,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// Texts returns the page texts in page order.
func (d *ExtractedDocument) Texts() []string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return texts
}

type Question struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Answer   string   `json:"answer"`
}

type GlossaryEntry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Section is one part of a generated course: Introduction, Notion n or
// Conclusion.
type Section struct {
	Section         string          `json:"section"`
	Summary         string          `json:"summary"`
	RelatedElements []string        `json:"related_elements"`
	QCM             []Question      `json:"qcm,omitempty"`
	Glossary        []GlossaryEntry `json:"glossary,omitempty"`
	Flashcards      []Flashcard     `json:"flashcards,omitempty"`
}

type Course struct {
	DocumentID string    `json:"document_id"`
	Model      string    `json:"model"`
	Sections   []Section `json:"sections"`
	Raw        string    `json:"raw,omitempty"`
	StudyAids  bool      `json:"study_aids"`
	CreatedAt  time.Time `json:"created_at"`
}
