package models

import "time"

// DocumentType enumerates the sources documents are ingested from.
type DocumentType string

const (
	DocumentPDF     DocumentType = "pdf"
	DocumentURL     DocumentType = "url"
	DocumentWebhook DocumentType = "webhook"
)

// Document is textual content produced by an ingest node. Documents are
// owned by the run that produced them and may outlive it; downstream nodes
// reference them by id or inline content.
// Maps to: documents table.
type Document struct {
	DocumentID string         `db:"document_id" json:"document_id"`
	Type       DocumentType   `db:"doc_type" json:"type"`
	Content    string         `db:"content" json:"content"`
	Metadata   map[string]any `db:"metadata" json:"metadata"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// UploadedFile is metadata for a file uploaded through the control plane,
// referenced by ingest.pdf node configs.
// Maps to: uploaded_files table.
type UploadedFile struct {
	FileID      string    `db:"file_id" json:"file_id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	Filename    string    `db:"filename" json:"filename"`
	Path        string    `db:"path" json:"path"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	ContentType string    `db:"content_type" json:"content_type"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
