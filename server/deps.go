package server

import (
	"fmt"
	"net/http"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/Epistemic-Technology/course-mcp/internal/assets"
	"github.com/Epistemic-Technology/course-mcp/internal/config"
	"github.com/Epistemic-Technology/course-mcp/internal/documents"
	"github.com/Epistemic-Technology/course-mcp/internal/extract"
	"github.com/Epistemic-Technology/course-mcp/internal/llm"
	"github.com/Epistemic-Technology/course-mcp/internal/logger"
	"github.com/Epistemic-Technology/course-mcp/internal/ocr"
	"github.com/Epistemic-Technology/course-mcp/internal/operations"
	"github.com/Epistemic-Technology/course-mcp/internal/storage"
)

// ExtractOptions returns the extraction settings applied when a request does
// not choose its own.
func ExtractOptions(cfg config.Config) extract.Options {
	return extract.Options{OCRFallback: cfg.OCREnabled, LayoutAware: cfg.LayoutAware}
}

// NewDeps opens the store and builds the extraction pipeline described by cfg.
// The returned function releases the store and the OCR engine.
func NewDeps(cfg config.Config, log logger.Logger) (*operations.Deps, func(), error) {
	store, err := initializeStorage(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{store.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("Cleanup failed: %v", err)
			}
		}
	}

	// A nil Recognizer, not a nil *ocr.Engine, disables OCR.
	var recognizer extract.Recognizer
	if cfg.OCREnabled {
		engine, err := ocr.New(ocr.Options{Languages: cfg.OCRLanguages, DPI: cfg.OCRDPI})
		if err != nil {
			log.Warn("OCR unavailable, scanned pages will stay empty: %v", err)
		} else {
			recognizer = engine
			closers = append(closers, engine.Close)
		}
	}

	var extractor *assets.Extractor
	if cfg.ExtractAssets {
		dir := cfg.AssetsDir
		if dir == "" {
			dataDir, err := logger.DataDir()
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			dir = filepath.Join(dataDir, "assets")
		}
		extractor = assets.NewExtractor(dir, log.Named("assets"))
	}

	var generator operations.CourseGenerator
	gen, err := llm.NewCourseGenerator(llm.GeneratorConfig{
		APIKey:           cfg.LLMAPIKey,
		BaseURL:          cfg.LLMBaseURL,
		Model:            cfg.LLMModel,
		Temperature:      cfg.LLMTemperature,
		TopP:             cfg.LLMTopP,
		StructuredOutput: cfg.LLMStructuredOutput,
	}, log.Named("llm"))
	if err != nil {
		log.Warn("Course generation disabled: %v", err)
	} else {
		generator = gen
	}

	pages := extract.NewPageExtractor(recognizer, cfg.OCRDPI, cfg.OCRTempDir, log.Named("extract"))
	deps := &operations.Deps{
		Fetcher: &documents.Fetcher{
			MaxBytes:        cfg.MaxUploadBytes,
			HTTPClient:      &http.Client{Timeout: cfg.DownloadTimeout},
			ZoteroAPIKey:    cfg.ZoteroAPIKey,
			ZoteroLibraryID: cfg.ZoteroLibraryID,
			Log:             log.Named("fetch"),
		},
		Walker:    extract.NewWalker(extract.FitzOpener{}, pages, extract.FailurePolicy(cfg.PageFailurePolicy), log.Named("extract")),
		Assets:    extractor,
		Generator: generator,
		Store:     store,
		TempDir:   cfg.OCRTempDir,
		Log:       log,
		Slots:     semaphore.NewWeighted(cfg.MaxConcurrentExtractions),
	}
	return deps, cleanup, nil
}

func initializeStorage(cfg config.Config, log logger.Logger) (storage.Store, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		// Default to ~/.course-mcp/course.db
		dir, err := logger.DataDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dir, "course.db")
	}

	log.Info("Initializing SQLite database at: %s", dbPath)

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite store: %w", err)
	}
	return store, nil
}
