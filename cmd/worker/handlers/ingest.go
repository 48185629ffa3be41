package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/aiwf/engine/common/clients"
	"github.com/aiwf/engine/common/models"
)

// newDocument mints the document a node's ingest produced. Ids are
// assigned here so outputs can reference the document before the insert
// round-trips.
func newDocument(docType models.DocumentType, content string, metadata map[string]any) *models.Document {
	return &models.Document{
		DocumentID: uuid.NewString(),
		Type:       docType,
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
}

// PDFHandler extracts text from an uploaded PDF and persists it as a
// document.
type PDFHandler struct {
	docs DocumentStore
}

func NewPDFHandler(docs DocumentStore) *PDFHandler {
	return &PDFHandler{docs: docs}
}

func (h *PDFHandler) Kind() NodeKind { return KindIngestPDF }

func (h *PDFHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	path := stringConfig(task.Config, "file_path")
	if fileID := stringConfig(task.Config, "file_id"); fileID != "" {
		file, err := h.docs.GetUploadedFile(ctx, fileID)
		if err != nil {
			return nil, configErr("no file: uploaded file %s not found", fileID)
		}
		path = file.Path
	}
	if path == "" {
		return nil, configErr("no file: neither file_id nor file_path set")
	}

	content, pages, err := extractPDFText(path)
	if err != nil {
		return nil, configErr("no file: %v", err)
	}

	doc := newDocument(models.DocumentPDF, content, map[string]any{
		"source":    "upload",
		"run_id":    task.RunID,
		"node_id":   task.NodeID,
		"file_path": path,
	})
	if err := h.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	return map[string]any{
		"document_id":     doc.DocumentID,
		"content":         content,
		"pages_processed": pages,
	}, nil
}

func extractPDFText(path string) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	r, err := reader.GetPlainText()
	if err != nil {
		return "", 0, fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	if _, err := buf.ReadFrom(r); err != nil {
		return "", 0, fmt.Errorf("failed to read pdf text from %s: %w", path, err)
	}

	return buf.String(), reader.NumPage(), nil
}

// URLHandler fetches a page and persists its textual content as a
// document. Network errors are transient and retried by the broker.
type URLHandler struct {
	docs    DocumentStore
	fetcher clients.URLFetcher
}

func NewURLHandler(docs DocumentStore, fetcher clients.URLFetcher) *URLHandler {
	return &URLHandler{docs: docs, fetcher: fetcher}
}

func (h *URLHandler) Kind() NodeKind { return KindIngestURL }

func (h *URLHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	url := stringConfig(task.Config, "url")
	if url == "" {
		return nil, configErr("no url provided")
	}

	content, err := h.fetcher.FetchText(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("url fetch failed: %w", err)
	}

	doc := newDocument(models.DocumentURL, content, map[string]any{
		"source":  "url",
		"run_id":  task.RunID,
		"node_id": task.NodeID,
		"url":     url,
	})
	if err := h.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	return map[string]any{
		"document_id": doc.DocumentID,
		"content":     content,
		"url":         url,
	}, nil
}

// WebhookHandler turns the run's webhook payload into a document. The
// rendering is deterministic so downstream transforms are reproducible.
type WebhookHandler struct {
	docs DocumentStore
}

func NewWebhookHandler(docs DocumentStore) *WebhookHandler {
	return &WebhookHandler{docs: docs}
}

func (h *WebhookHandler) Kind() NodeKind { return KindIngestWebhook }

func (h *WebhookHandler) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	data, ok := task.Inputs["data"].(map[string]any)
	if !ok || len(data) == 0 {
		return nil, inputErr("no webhook data provided")
	}

	content := renderWebhookData(data)

	doc := newDocument(models.DocumentWebhook, content, map[string]any{
		"source":       "webhook",
		"run_id":       task.RunID,
		"node_id":      task.NodeID,
		"webhook_data": data,
	})
	if err := h.docs.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	return map[string]any{
		"document_id": doc.DocumentID,
		"content":     content,
	}, nil
}

// renderWebhookData renders a payload as "key: value" lines in ascending
// key order. Non-string values are JSON encoded.
func renderWebhookData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		switch v := data[k].(type) {
		case string:
			sb.WriteString(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				sb.WriteString(fmt.Sprintf("%v", v))
				continue
			}
			sb.Write(encoded)
		}
	}
	return sb.String()
}
