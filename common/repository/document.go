package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/models"
)

// DocumentRepository handles ingested documents and uploaded file metadata.
type DocumentRepository struct {
	db *db.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(database *db.DB) *DocumentRepository {
	return &DocumentRepository{db: database}
}

// CreateDocument stores an ingested document.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (document_id, doc_type, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, doc.DocumentID, doc.Type, doc.Content, doc.Metadata, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	query := `
		SELECT document_id, doc_type, content, metadata, created_at
		FROM documents
		WHERE document_id = $1
	`

	doc := &models.Document{}
	err := r.db.QueryRow(ctx, query, documentID).Scan(
		&doc.DocumentID,
		&doc.Type,
		&doc.Content,
		&doc.Metadata,
		&doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// CreateUploadedFile stores metadata for an uploaded file.
func (r *DocumentRepository) CreateUploadedFile(ctx context.Context, f *models.UploadedFile) error {
	query := `
		INSERT INTO uploaded_files (file_id, owner_id, filename, path, size_bytes, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query, f.FileID, f.OwnerID, f.Filename, f.Path, f.SizeBytes, f.ContentType, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create uploaded file: %w", err)
	}
	return nil
}

// GetUploadedFile retrieves uploaded file metadata by id.
func (r *DocumentRepository) GetUploadedFile(ctx context.Context, fileID string) (*models.UploadedFile, error) {
	query := `
		SELECT file_id, owner_id, filename, path, size_bytes, content_type, created_at
		FROM uploaded_files
		WHERE file_id = $1
	`

	f := &models.UploadedFile{}
	err := r.db.QueryRow(ctx, query, fileID).Scan(
		&f.FileID,
		&f.OwnerID,
		&f.Filename,
		&f.Path,
		&f.SizeBytes,
		&f.ContentType,
		&f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	return f, nil
}
