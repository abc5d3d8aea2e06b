package storage

import (
	"context"
	"errors"

	"github.com/Epistemic-Technology/course-mcp/models"
)

// ErrNotFound is wrapped by every lookup that matches no row.
var ErrNotFound = errors.New("not found")

// Store defines the interface for storing and retrieving extracted documents
// and the courses generated from them
type Store interface {
	// StoreDocument stores an extracted document, replacing any previous
	// version with the same ID. A course already stored for it is kept.
	StoreDocument(ctx context.Context, doc *models.ExtractedDocument) error

	// DocumentExists checks if a document with the given ID exists
	DocumentExists(ctx context.Context, docID string) (bool, error)

	// GetDocument retrieves a document with its pages and assets
	GetDocument(ctx context.Context, docID string) (*models.ExtractedDocument, error)

	// GetPages retrieves all pages for a document in page order
	GetPages(ctx context.Context, docID string) ([]models.PageText, error)

	// GetPage retrieves a page by its 0-based index
	GetPage(ctx context.Context, docID string, index int) (*models.PageText, error)

	GetTables(ctx context.Context, docID string) ([]models.Table, error)

	// GetTable retrieves a table by its 0-based position in the document
	GetTable(ctx context.Context, docID string, tableIndex int) (*models.Table, error)

	GetImages(ctx context.Context, docID string) ([]models.Image, error)

	GetFormulas(ctx context.Context, docID string) ([]models.Formula, error)

	// StoreCourse stores the course for its document, replacing any previous one
	StoreCourse(ctx context.Context, course *models.Course) error

	GetCourse(ctx context.Context, docID string) (*models.Course, error)

	// ListDocuments returns all stored documents, newest first
	ListDocuments(ctx context.Context) ([]models.DocumentInfo, error)

	// DeleteDocument removes a document and all associated data
	DeleteDocument(ctx context.Context, docID string) error

	// Close closes the database connection
	Close() error
}
