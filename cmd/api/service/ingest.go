package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/repository"
)

// IngestService stores uploaded files that ingest.pdf nodes reference by
// file_id.
type IngestService struct {
	docs      *repository.DocumentRepository
	uploadDir string
}

func NewIngestService(docs *repository.DocumentRepository, uploadDir string) *IngestService {
	return &IngestService{docs: docs, uploadDir: uploadDir}
}

// Upload writes the file to the upload directory and records its metadata.
func (s *IngestService) Upload(ctx context.Context, ownerID, filename, contentType string, src io.Reader) (*models.UploadedFile, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	fileID := uuid.NewString()
	path := filepath.Join(s.uploadDir, fileID+filepath.Ext(filename))

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	file := &models.UploadedFile{
		FileID:      fileID,
		OwnerID:     ownerID,
		Filename:    filename,
		Path:        path,
		SizeBytes:   size,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.docs.CreateUploadedFile(ctx, file); err != nil {
		os.Remove(path)
		return nil, err
	}
	return file, nil
}

// GetDocument returns an ingested document by id.
func (s *IngestService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return doc, err
}
