package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/llm"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/pdftest"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

type fakeDocument struct {
	pages []string
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) NativeText(index int, layoutAware bool) (string, error) {
	return d.pages[index], nil
}

func (d *fakeDocument) RenderPNG(index int, dpi float64) ([]byte, error) {
	return nil, errors.New("no renderer")
}

func (d *fakeDocument) Close() error { return nil }

type fakeOpener struct {
	mu    sync.Mutex
	opens int
	pages []string
	err   error
}

func (o *fakeOpener) Open(path string) (extract.Document, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, &extract.DocumentOpenError{Path: path, Err: o.err}
	}
	return &fakeDocument{pages: o.pages}, nil
}

type fakeGenerator struct {
	calls int
	last  llm.CourseRequest
	raw   string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, req llm.CourseRequest) (*models.Course, error) {
	g.calls++
	g.last = req
	course := &models.Course{DocumentID: req.DocumentID, Model: "fake", Raw: g.raw}
	if g.err != nil {
		return course, g.err
	}
	course.Sections = []models.Section{{Section: "Introduction", Summary: fmt.Sprintf("call %d", g.calls)}}
	return course, nil
}

func newTestDeps(t *testing.T, opener *fakeOpener, gen CourseGenerator) *Deps {
	t.Helper()
	log := logger.NewNoOpLogger()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &Deps{
		Fetcher:   &documents.Fetcher{MaxBytes: 10 << 20, Log: log},
		Walker:    extract.NewWalker(opener, extract.NewPageExtractor(nil, 0, t.TempDir(), log), extract.RecoverPages, log),
		Generator: gen,
		Store:     store,
		TempDir:   t.TempDir(),
		Log:       log,
	}
}

func uploadRequest(data []byte) ExtractRequest {
	return ExtractRequest{
		Source:  models.SourceInfo{Kind: models.SourceUpload, Filename: "cours.pdf"},
		Data:    data,
		Options: extract.Options{OCRFallback: true},
	}
}

func TestGetOrExtractDocument(t *testing.T) {
	ctx := context.Background()
	opener := &fakeOpener{pages: []string{"Premier paragraphe\nqui continue", "   "}}
	deps := newTestDeps(t, opener, nil)
	data := pdftest.Minimal(2, "extract")

	doc, cached, err := GetOrExtractDocument(ctx, deps, uploadRequest(data))
	if err != nil {
		t.Fatalf("GetOrExtractDocument: %v", err)
	}
	if cached {
		t.Error("first extraction reported as cached")
	}
	if doc.Info.DocumentID != documents.DocumentID(data) {
		t.Errorf("document id = %s", doc.Info.DocumentID)
	}
	if doc.Info.PageCount != 2 || doc.Info.SizeBytes != int64(len(data)) {
		t.Errorf("info = %+v", doc.Info)
	}
	if doc.Pages[0].Text != "Premier paragraphe qui continue" {
		t.Errorf("page 0 text = %q", doc.Pages[0].Text)
	}
	if doc.Pages[1].Text != "" || doc.Pages[1].Warning == "" {
		t.Errorf("blank page without OCR should carry a warning, got %+v", doc.Pages[1])
	}
	if len(doc.Warnings) != 1 {
		t.Errorf("warnings = %v", doc.Warnings)
	}

	again, cached, err := GetOrExtractDocument(ctx, deps, uploadRequest(data))
	if err != nil {
		t.Fatalf("second GetOrExtractDocument: %v", err)
	}
	if !cached || opener.opens != 1 {
		t.Errorf("second call should use the stored copy (cached=%v, opens=%d)", cached, opener.opens)
	}
	if again.Pages[0].Text != doc.Pages[0].Text {
		t.Errorf("stored text %q differs from extracted %q", again.Pages[0].Text, doc.Pages[0].Text)
	}

	req := uploadRequest(data)
	req.Refresh = true
	if _, cached, err = GetOrExtractDocument(ctx, deps, req); err != nil || cached {
		t.Fatalf("refresh: cached=%v err=%v", cached, err)
	}
	if opener.opens != 2 {
		t.Errorf("refresh should re-extract, opens = %d", opener.opens)
	}
}

func TestGetOrExtractDocumentErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not a pdf", func(t *testing.T) {
		deps := newTestDeps(t, &fakeOpener{}, nil)
		_, _, err := GetOrExtractDocument(ctx, deps, uploadRequest([]byte("hello")))
		if !errors.Is(err, documents.ErrNotPDF) {
			t.Errorf("expected ErrNotPDF, got %v", err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		deps := newTestDeps(t, &fakeOpener{}, nil)
		deps.Fetcher.MaxBytes = 16
		_, _, err := GetOrExtractDocument(ctx, deps, uploadRequest(pdftest.Minimal(1, "big")))
		if !errors.Is(err, documents.ErrTooLarge) {
			t.Errorf("expected ErrTooLarge, got %v", err)
		}
	})

	t.Run("unopenable", func(t *testing.T) {
		deps := newTestDeps(t, &fakeOpener{err: errors.New("corrupt")}, nil)
		_, _, err := GetOrExtractDocument(ctx, deps, uploadRequest(pdftest.Minimal(1, "corrupt")))
		var openErr *extract.DocumentOpenError
		if !errors.As(err, &openErr) {
			t.Fatalf("expected DocumentOpenError, got %v", err)
		}
		docs, _ := deps.Store.ListDocuments(ctx)
		if len(docs) != 0 {
			t.Error("failed extraction should not store anything")
		}
	})

	t.Run("cloud source", func(t *testing.T) {
		deps := newTestDeps(t, &fakeOpener{}, nil)
		req := ExtractRequest{Source: models.SourceInfo{Kind: models.SourceOneDrive}}
		_, _, err := GetOrExtractDocument(ctx, deps, req)
		if !errors.Is(err, documents.ErrSourceNotImplemented) {
			t.Errorf("expected ErrSourceNotImplemented, got %v", err)
		}
	})
}

func TestGetOrExtractDocumentSlots(t *testing.T) {
	tests := []struct {
		name    string
		held    bool
		wantErr error
		opens   int
	}{
		{name: "free slot", opens: 1},
		{name: "all slots busy", held: true, wantErr: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := &fakeOpener{pages: []string{"Texte"}}
			deps := newTestDeps(t, opener, nil)
			deps.Slots = semaphore.NewWeighted(1)
			if tt.held {
				if !deps.Slots.TryAcquire(1) {
					t.Fatal("slot unavailable")
				}
				defer deps.Slots.Release(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			_, _, err := GetOrExtractDocument(ctx, deps, uploadRequest(pdftest.Minimal(1, tt.name)))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("GetOrExtractDocument: %v", err)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !strings.Contains(err.Error(), "extraction slot") {
					t.Fatalf("expected to wait for a slot until %v, got %v", tt.wantErr, err)
				}
			}
			if opener.opens != tt.opens {
				t.Errorf("document opened %d times, expected %d", opener.opens, tt.opens)
			}
			if !tt.held && !deps.Slots.TryAcquire(1) {
				t.Error("slot not released after extraction")
			}
		})
	}
}

func TestGenerateCourse(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, gen CourseGenerator) (*Deps, string) {
		deps := newTestDeps(t, &fakeOpener{pages: []string{"Énergie cinétique", "Travail"}}, gen)
		doc, _, err := GetOrExtractDocument(ctx, deps, uploadRequest(pdftest.Minimal(2, t.Name())))
		if err != nil {
			t.Fatal(err)
		}
		return deps, doc.Info.DocumentID
	}

	t.Run("generates, stores and reuses", func(t *testing.T) {
		gen := &fakeGenerator{}
		deps, docID := setup(t, gen)

		course, err := GenerateCourse(ctx, deps, docID, CourseOptions{StudyAids: true})
		if err != nil {
			t.Fatalf("GenerateCourse: %v", err)
		}
		if len(course.Sections) != 1 {
			t.Fatalf("sections = %+v", course.Sections)
		}
		if gen.last.Content != "Énergie cinétique\n\nTravail" || !gen.last.StudyAids {
			t.Errorf("request = %+v", gen.last)
		}

		if _, err := GenerateCourse(ctx, deps, docID, CourseOptions{}); err != nil {
			t.Fatal(err)
		}
		if gen.calls != 1 {
			t.Errorf("stored course should be reused, generator called %d times", gen.calls)
		}

		course, err = GenerateCourse(ctx, deps, docID, CourseOptions{Regenerate: true})
		if err != nil {
			t.Fatal(err)
		}
		if gen.calls != 2 || course.Sections[0].Summary != "call 2" {
			t.Errorf("regenerate should call the generator again (calls=%d)", gen.calls)
		}
		stored, err := deps.Store.GetCourse(ctx, docID)
		if err != nil || stored.Sections[0].Summary != "call 2" {
			t.Errorf("regenerated course not stored: %+v, %v", stored, err)
		}
	})

	t.Run("study aids request skips a course stored without them", func(t *testing.T) {
		gen := &fakeGenerator{}
		deps, docID := setup(t, gen)

		steps := []struct {
			studyAids bool
			calls     int
			stored    bool
		}{
			{studyAids: false, calls: 1, stored: false},
			{studyAids: true, calls: 2, stored: true},
			{studyAids: false, calls: 2, stored: true},
			{studyAids: true, calls: 2, stored: true},
		}
		for i, step := range steps {
			course, err := GenerateCourse(ctx, deps, docID, CourseOptions{StudyAids: step.studyAids})
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			if gen.calls != step.calls {
				t.Errorf("step %d: generator called %d times, expected %d", i, gen.calls, step.calls)
			}
			if course.StudyAids != step.stored {
				t.Errorf("step %d: course study aids = %v, expected %v", i, course.StudyAids, step.stored)
			}
		}
		if !gen.last.StudyAids {
			t.Errorf("regeneration should request study aids, got %+v", gen.last)
		}
		stored, err := deps.Store.GetCourse(ctx, docID)
		if err != nil || !stored.StudyAids {
			t.Errorf("course with study aids not stored: %+v, %v", stored, err)
		}
	})

	t.Run("unparseable output is not stored", func(t *testing.T) {
		gen := &fakeGenerator{raw: "pas de JSON", err: fmt.Errorf("%w: bad", llm.ErrUnparseableCourse)}
		deps, docID := setup(t, gen)

		course, err := GenerateCourse(ctx, deps, docID, CourseOptions{})
		if !errors.Is(err, llm.ErrUnparseableCourse) {
			t.Fatalf("expected ErrUnparseableCourse, got %v", err)
		}
		if course == nil || course.Raw != "pas de JSON" {
			t.Errorf("raw output should be returned, got %+v", course)
		}
		if _, err := deps.Store.GetCourse(ctx, docID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("unparseable course should not be stored, got %v", err)
		}
	})

	t.Run("no generator", func(t *testing.T) {
		deps, docID := setup(t, nil)
		if _, err := GenerateCourse(ctx, deps, docID, CourseOptions{}); !errors.Is(err, llm.ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		deps := newTestDeps(t, &fakeOpener{}, &fakeGenerator{})
		if _, err := GenerateCourse(ctx, deps, "doc_missing", CourseOptions{}); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestElementNames(t *testing.T) {
	doc := &models.ExtractedDocument{
		Images: []models.Image{{FileName: "image_page1_1.png"}},
		Tables: []models.Table{{FileName: "table_page2_1.csv"}},
	}
	names := elementNames(doc)
	if len(names) != 2 || names[0] != "image_page1_1.png" || names[1] != "table_page2_1.csv" {
		t.Errorf("elementNames = %v", names)
	}
}

func TestCheckAnswer(t *testing.T) {
	q := models.Question{Question: "Unité du travail ?", Choices: []string{"Joule", "Watt"}, Answer: "Joule"}
	tests := []struct {
		given string
		want  bool
	}{
		{"Joule", true},
		{"  joule ", true},
		{"JOULE", true},
		{"Watt", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.given, func(t *testing.T) {
			res := CheckAnswer(q, tt.given)
			if res.Correct != tt.want {
				t.Errorf("CheckAnswer(%q) = %v, want %v", tt.given, res.Correct, tt.want)
			}
			if res.Answer != "Joule" {
				t.Errorf("expected answer to be reported, got %q", res.Answer)
			}
		})
	}
}

func TestCheckCourseAnswer(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t, &fakeOpener{pages: []string{"Travail"}}, nil)
	doc, _, err := GetOrExtractDocument(ctx, deps, uploadRequest(pdftest.Minimal(1, "quiz")))
	if err != nil {
		t.Fatal(err)
	}
	docID := doc.Info.DocumentID

	if _, err := CheckCourseAnswer(ctx, deps.Store, docID, 0, 0, "Joule"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before a course exists, got %v", err)
	}

	course := &models.Course{
		DocumentID: docID,
		Sections: []models.Section{
			{Section: "Introduction"},
			{Section: "Notion 1", QCM: []models.Question{{Question: "Unité ?", Choices: []string{"Joule", "Watt"}, Answer: "Joule"}}},
		},
	}
	if err := deps.Store.StoreCourse(ctx, course); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		section  int
		question int
		answer   string
		want     bool
		wantErr  bool
	}{
		{"correct", 1, 0, "joule", true, false},
		{"wrong", 1, 0, "Watt", false, false},
		{"section without questions", 0, 0, "Joule", false, true},
		{"section out of range", 5, 0, "Joule", false, true},
		{"negative question", 1, -1, "Joule", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CheckCourseAnswer(ctx, deps.Store, docID, tt.section, tt.question, tt.answer)
			if tt.wantErr {
				if !errors.Is(err, ErrNoSuchQuestion) {
					t.Errorf("expected ErrNoSuchQuestion, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if res.Correct != tt.want {
				t.Errorf("Correct = %v, want %v", res.Correct, tt.want)
			}
		})
	}
}
