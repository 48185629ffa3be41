package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aiwf/engine/cmd/api/middleware"
	"github.com/aiwf/engine/cmd/api/service"
)

// IngestHandler handles file uploads and document reads.
type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// Upload handles POST /api/v1/ingest/upload (multipart form, field
// "file"). The returned file_id goes into an ingest.pdf node config.
func (h *IngestHandler) Upload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("file field is required"))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("failed to read upload"))
	}
	defer src.Close()

	file, err := h.ingest.Upload(
		c.Request().Context(),
		middleware.GetUserID(c),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		src,
	)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"file_id":    file.FileID,
		"filename":   file.Filename,
		"size_bytes": file.SizeBytes,
	})
}

// GetDocument handles GET /api/v1/documents/:id.
func (h *IngestHandler) GetDocument(c echo.Context) error {
	doc, err := h.ingest.GetDocument(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}
