package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/Epistemic-Technology/course-mcp/internal/assets"
	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/llm"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
	"github.com/Epistemic-Technology/course-mcp/models"
)

// CourseGenerator produces a course from extracted text.
type CourseGenerator interface {
	Generate(ctx context.Context, req llm.CourseRequest) (*models.Course, error)
}

// Deps holds everything the operations need. Assets and Generator may be nil:
// asset extraction is then skipped and course generation fails with
// llm.ErrNoAPIKey.
type Deps struct {
	Fetcher   *documents.Fetcher
	Walker    *extract.Walker
	Assets    *assets.Extractor
	Generator CourseGenerator
	Store     storage.Store
	TempDir   string
	Log       logger.Logger
	// Slots bounds the extractions running at once, whichever surface
	// started them. Nil means no bound.
	Slots *semaphore.Weighted

	extractions singleflight.Group
}

// ExtractRequest describes one document to extract.
type ExtractRequest struct {
	Source models.SourceInfo
	// Data holds the bytes of an uploaded file. Other sources are fetched.
	Data    []byte
	Options extract.Options
	// Refresh re-extracts a document that is already stored.
	Refresh bool
}

// GetOrExtractDocument retrieves an extracted document from storage if it
// exists, or fetches and extracts it if it doesn't. The boolean reports
// whether the stored copy was used. Concurrent requests for the same content
// share a single extraction.
func GetOrExtractDocument(ctx context.Context, deps *Deps, req ExtractRequest) (*models.ExtractedDocument, bool, error) {
	src := req.Source
	data, err := deps.Fetcher.Fetch(ctx, &src, req.Data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch PDF data: %w", err)
	}

	pageCount, err := documents.Validate(data)
	if err != nil {
		return nil, false, err
	}

	docID := documents.DocumentID(data)

	if !req.Refresh {
		exists, err := deps.Store.DocumentExists(ctx, docID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check document existence: %w", err)
		}
		if exists {
			deps.Log.Info("Document %s already extracted, using stored copy", docID)
			doc, err := deps.Store.GetDocument(ctx, docID)
			if err != nil {
				return nil, false, fmt.Errorf("failed to retrieve existing document: %w", err)
			}
			return doc, true, nil
		}
	}

	v, err, shared := deps.extractions.Do(docID, func() (any, error) {
		if deps.Slots != nil {
			if err := deps.Slots.Acquire(ctx, 1); err != nil {
				return nil, fmt.Errorf("waiting for an extraction slot: %w", err)
			}
			defer deps.Slots.Release(1)
		}
		return extractAndStore(ctx, deps, docID, src, data, req.Options)
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		deps.Log.Debug("Joined in-flight extraction of %s", docID)
	}
	deps.Log.Info("Extracted %s: %d pages", docID, pageCount)
	return v.(*models.ExtractedDocument), false, nil
}

func extractAndStore(ctx context.Context, deps *Deps, docID string, src models.SourceInfo, data []byte, opts extract.Options) (*models.ExtractedDocument, error) {
	path, cleanup, err := documents.WriteTemp(deps.TempDir, src.Filename, data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result, err := deps.Walker.ExtractFile(ctx, path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", docID, err)
	}

	doc := &models.ExtractedDocument{
		Info: models.DocumentInfo{
			DocumentID: docID,
			Source:     src,
			PageCount:  len(result.Pages),
			OCRPages:   result.OCRPages(),
			SizeBytes:  int64(len(data)),
			CreatedAt:  time.Now().UTC(),
		},
		Pages: make([]models.PageText, 0, len(result.Pages)),
	}
	for _, p := range result.Pages {
		doc.Pages = append(doc.Pages, models.PageText{
			Index:   p.Index,
			Text:    p.Text,
			Method:  string(p.Method),
			Warning: p.Warning,
		})
		if p.Warning != "" {
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("page %d: %s", p.Index+1, p.Warning))
		}
	}

	if deps.Assets != nil {
		res := deps.Assets.Extract(ctx, docID, path, data, result.RawTexts())
		doc.Tables = res.Tables
		doc.Images = res.Images
		doc.Formulas = res.Formulas
		doc.Warnings = append(doc.Warnings, res.Warnings...)
	}

	if err := deps.Store.StoreDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store extracted document: %w", err)
	}
	return doc, nil
}

type CourseOptions struct {
	// StudyAids adds quiz questions, a glossary and flashcards to every section.
	StudyAids bool
	// Regenerate ignores a stored course.
	Regenerate bool
}

// GenerateCourse returns the course for a stored document, generating and
// storing it first when needed. When the model output cannot be parsed the
// course carrying the raw output is returned with the error and nothing is
// stored.
func GenerateCourse(ctx context.Context, deps *Deps, docID string, opts CourseOptions) (*models.Course, error) {
	if !opts.Regenerate {
		course, err := deps.Store.GetCourse(ctx, docID)
		switch {
		case err == nil && (course.StudyAids || !opts.StudyAids):
			deps.Log.Info("Using stored course for %s", docID)
			return course, nil
		case err == nil:
			deps.Log.Info("Stored course for %s has no study aids, regenerating", docID)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	if deps.Generator == nil {
		return nil, llm.ErrNoAPIKey
	}

	doc, err := deps.Store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(strings.Join(doc.Texts(), "\n\n"))
	if content == "" {
		return nil, fmt.Errorf("document %s has no extracted text", docID)
	}

	course, err := deps.Generator.Generate(ctx, llm.CourseRequest{
		DocumentID: docID,
		Content:    content,
		Elements:   elementNames(doc),
		StudyAids:  opts.StudyAids,
	})
	if err != nil {
		return course, err
	}
	course.StudyAids = opts.StudyAids

	if err := deps.Store.StoreCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("failed to store course: %w", err)
	}
	return course, nil
}

// elementNames lists the asset files a course section can refer to.
func elementNames(doc *models.ExtractedDocument) []string {
	var names []string
	for _, img := range doc.Images {
		names = append(names, img.FileName)
	}
	for _, tbl := range doc.Tables {
		names = append(names, tbl.FileName)
	}
	return names
}
