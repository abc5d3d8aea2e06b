package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Epistemic-Technology/course-mcp/models"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. dbPath may be ":memory:".
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source_kind TEXT,
		title TEXT,
		filename TEXT,
		url TEXT,
		zotero_id TEXT,
		page_count INTEGER,
		ocr_pages INTEGER,
		size_bytes INTEGER,
		warnings TEXT,
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS pages (
		document_id TEXT NOT NULL,
		page_index INTEGER NOT NULL,
		content TEXT,
		method TEXT,
		warning TEXT,
		PRIMARY KEY (document_id, page_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS document_tables (
		document_id TEXT NOT NULL,
		table_index INTEGER NOT NULL,
		page INTEGER,
		page_table INTEGER,
		file_name TEXT,
		csv TEXT,
		markdown TEXT,
		row_count INTEGER,
		col_count INTEGER,
		PRIMARY KEY (document_id, table_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS images (
		document_id TEXT NOT NULL,
		image_index INTEGER NOT NULL,
		page INTEGER,
		page_image INTEGER,
		file_name TEXT,
		file_type TEXT,
		width INTEGER,
		height INTEGER,
		size INTEGER,
		PRIMARY KEY (document_id, image_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS formulas (
		document_id TEXT NOT NULL,
		formula_index INTEGER NOT NULL,
		page INTEGER,
		text TEXT,
		PRIMARY KEY (document_id, formula_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS courses (
		document_id TEXT PRIMARY KEY,
		model TEXT,
		sections TEXT,
		raw TEXT,
		study_aids BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_zotero_id ON documents(zotero_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StoreDocument stores an extracted document, replacing its pages and assets
func (s *SQLiteStore) StoreDocument(ctx context.Context, doc *models.ExtractedDocument) error {
	info := doc.Info
	if info.DocumentID == "" {
		return errors.New("document has no ID")
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now().UTC()
	}

	warningsJSON, err := json.Marshal(doc.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Upsert so that a stored course, which references the row, survives.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_kind, title, filename, url, zotero_id, page_count, ocr_pages, size_bytes, warnings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_kind = excluded.source_kind,
			title = excluded.title,
			filename = excluded.filename,
			url = excluded.url,
			zotero_id = excluded.zotero_id,
			page_count = excluded.page_count,
			ocr_pages = excluded.ocr_pages,
			size_bytes = excluded.size_bytes,
			warnings = excluded.warnings
	`, info.DocumentID, string(info.Source.Kind), info.Source.Title, info.Source.Filename,
		info.Source.URL, info.Source.ZoteroID, info.PageCount, info.OCRPages, info.SizeBytes,
		string(warningsJSON), info.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	for _, table := range []string{"pages", "document_tables", "images", "formulas"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE document_id = ?`, info.DocumentID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, page := range doc.Pages {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pages (document_id, page_index, content, method, warning)
			VALUES (?, ?, ?, ?, ?)
		`, info.DocumentID, page.Index, page.Text, page.Method, page.Warning)
		if err != nil {
			return fmt.Errorf("failed to insert page %d: %w", page.Index, err)
		}
	}

	for i, tbl := range doc.Tables {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO document_tables (document_id, table_index, page, page_table, file_name, csv, markdown, row_count, col_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, info.DocumentID, i, tbl.Page, tbl.Index, tbl.FileName, tbl.CSV, tbl.Markdown, tbl.Rows, tbl.Cols)
		if err != nil {
			return fmt.Errorf("failed to insert table %d: %w", i, err)
		}
	}

	for i, img := range doc.Images {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO images (document_id, image_index, page, page_image, file_name, file_type, width, height, size)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, info.DocumentID, i, img.Page, img.Index, img.FileName, img.FileType, img.Width, img.Height, img.Size)
		if err != nil {
			return fmt.Errorf("failed to insert image %d: %w", i, err)
		}
	}

	for i, f := range doc.Formulas {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO formulas (document_id, formula_index, page, text)
			VALUES (?, ?, ?, ?)
		`, info.DocumentID, i, f.Page, f.Text)
		if err != nil {
			return fmt.Errorf("failed to insert formula %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DocumentExists checks if a document with the given ID exists
func (s *SQLiteStore) DocumentExists(ctx context.Context, docID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, docID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check document existence: %w", err)
	}
	return count > 0, nil
}

const documentColumns = `
	d.id, d.source_kind, d.title, d.filename, d.url, d.zotero_id,
	d.page_count, d.ocr_pages, d.size_bytes, d.created_at,
	EXISTS(SELECT 1 FROM courses c WHERE c.document_id = d.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocumentInfo(row rowScanner, extra ...any) (models.DocumentInfo, error) {
	var info models.DocumentInfo
	var kind string
	dest := []any{
		&info.DocumentID, &kind, &info.Source.Title, &info.Source.Filename, &info.Source.URL, &info.Source.ZoteroID,
		&info.PageCount, &info.OCRPages, &info.SizeBytes, &info.CreatedAt, &info.HasCourse,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return info, err
	}
	info.Source.Kind = models.SourceKind(kind)
	return info, nil
}

// GetDocument retrieves a document with its pages and assets
func (s *SQLiteStore) GetDocument(ctx context.Context, docID string) (*models.ExtractedDocument, error) {
	var warningsJSON string
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+`, d.warnings FROM documents d WHERE d.id = ?`, docID)
	info, err := scanDocumentInfo(row, &warningsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc := &models.ExtractedDocument{Info: info}
	if warningsJSON != "" {
		if err := json.Unmarshal([]byte(warningsJSON), &doc.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}

	if doc.Pages, err = s.GetPages(ctx, docID); err != nil {
		return nil, err
	}
	if doc.Tables, err = s.GetTables(ctx, docID); err != nil {
		return nil, err
	}
	if doc.Images, err = s.GetImages(ctx, docID); err != nil {
		return nil, err
	}
	if doc.Formulas, err = s.GetFormulas(ctx, docID); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetPages retrieves all pages for a document
func (s *SQLiteStore) GetPages(ctx context.Context, docID string) ([]models.PageText, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page_index, content, method, warning FROM pages
		WHERE document_id = ?
		ORDER BY page_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := []models.PageText{}
	for rows.Next() {
		var page models.PageText
		if err := rows.Scan(&page.Index, &page.Text, &page.Method, &page.Warning); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pages: %w", err)
	}
	return pages, nil
}

// GetPage retrieves a specific page by document ID and 0-based index
func (s *SQLiteStore) GetPage(ctx context.Context, docID string, index int) (*models.PageText, error) {
	var page models.PageText
	err := s.db.QueryRowContext(ctx, `
		SELECT page_index, content, method, warning FROM pages
		WHERE document_id = ? AND page_index = ?
	`, docID, index).Scan(&page.Index, &page.Text, &page.Method, &page.Warning)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("page %d of %s: %w", index, docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	return &page, nil
}

const tableColumns = `page, page_table, file_name, csv, markdown, row_count, col_count`

func scanTable(row rowScanner) (models.Table, error) {
	var tbl models.Table
	err := row.Scan(&tbl.Page, &tbl.Index, &tbl.FileName, &tbl.CSV, &tbl.Markdown, &tbl.Rows, &tbl.Cols)
	return tbl, err
}

// GetTables retrieves all tables for a document
func (s *SQLiteStore) GetTables(ctx context.Context, docID string) ([]models.Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tableColumns+` FROM document_tables
		WHERE document_id = ?
		ORDER BY table_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.Table
	for rows.Next() {
		tbl, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, tbl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

// GetTable retrieves a specific table by index (0-indexed)
func (s *SQLiteStore) GetTable(ctx context.Context, docID string, tableIndex int) (*models.Table, error) {
	tbl, err := scanTable(s.db.QueryRowContext(ctx, `
		SELECT `+tableColumns+` FROM document_tables
		WHERE document_id = ? AND table_index = ?
	`, docID, tableIndex))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("table %d of %s: %w", tableIndex, docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query table: %w", err)
	}
	return &tbl, nil
}

// GetImages retrieves all images for a document
func (s *SQLiteStore) GetImages(ctx context.Context, docID string) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page, page_image, file_name, file_type, width, height, size FROM images
		WHERE document_id = ?
		ORDER BY image_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.Page, &img.Index, &img.FileName, &img.FileType, &img.Width, &img.Height, &img.Size); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating images: %w", err)
	}
	return images, nil
}

// GetFormulas retrieves all formula lines for a document
func (s *SQLiteStore) GetFormulas(ctx context.Context, docID string) ([]models.Formula, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page, text FROM formulas
		WHERE document_id = ?
		ORDER BY formula_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query formulas: %w", err)
	}
	defer rows.Close()

	var formulas []models.Formula
	for rows.Next() {
		var f models.Formula
		if err := rows.Scan(&f.Page, &f.Text); err != nil {
			return nil, fmt.Errorf("failed to scan formula: %w", err)
		}
		formulas = append(formulas, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating formulas: %w", err)
	}
	return formulas, nil
}

// StoreCourse stores a course. Its document must already be stored.
func (s *SQLiteStore) StoreCourse(ctx context.Context, course *models.Course) error {
	exists, err := s.DocumentExists(ctx, course.DocumentID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("document %s: %w", course.DocumentID, ErrNotFound)
	}

	sectionsJSON, err := json.Marshal(course.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}
	createdAt := course.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO courses (document_id, model, sections, raw, study_aids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, course.DocumentID, course.Model, string(sectionsJSON), course.Raw, course.StudyAids, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}
	return nil
}

// GetCourse retrieves the course generated for a document
func (s *SQLiteStore) GetCourse(ctx context.Context, docID string) (*models.Course, error) {
	course := models.Course{DocumentID: docID}
	var sectionsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT model, sections, raw, study_aids, created_at FROM courses
		WHERE document_id = ?
	`, docID).Scan(&course.Model, &sectionsJSON, &course.Raw, &course.StudyAids, &course.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("course for %s: %w", docID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query course: %w", err)
	}

	if err := json.Unmarshal([]byte(sectionsJSON), &course.Sections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
	}
	return &course, nil
}

// ListDocuments returns a list of all stored documents
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents d ORDER BY d.created_at DESC, d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	documents := []models.DocumentInfo{}
	for rows.Next() {
		info, err := scanDocumentInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return documents, nil
}

// DeleteDocument removes a document and all associated data
func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"courses", "pages", "document_tables", "images", "formulas"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE document_id = ?`, docID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}

	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
