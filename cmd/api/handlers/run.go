package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aiwf/engine/cmd/api/middleware"
	"github.com/aiwf/engine/cmd/api/service"
	"github.com/aiwf/engine/common/models"
)

// RunHandler handles run lifecycle requests.
type RunHandler struct {
	runs *service.RunService
}

func NewRunHandler(runs *service.RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// Get handles GET /api/v1/runs/:id.
func (h *RunHandler) Get(c echo.Context) error {
	run, err := h.runs.Get(c.Request().Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// List handles GET /api/v1/runs with workflow_id and status filters.
func (h *RunHandler) List(c echo.Context) error {
	skip, limit := pagination(c)
	runs, total, err := h.runs.List(
		c.Request().Context(),
		middleware.GetUserID(c),
		c.QueryParam("workflow_id"),
		models.RunStatus(c.QueryParam("status")),
		skip, limit,
	)
	if err != nil {
		return writeError(c, err)
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// Cancel handles POST /api/v1/runs/:id/cancel. Terminal runs return 400.
func (h *RunHandler) Cancel(c echo.Context) error {
	err := h.runs.Cancel(c.Request().Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "cancelled",
	})
}

// Logs handles GET /api/v1/runs/:id/logs with an `after` cursor. The
// returned next_cursor is the last entry's log id; passing it back
// resumes the stream without duplicates.
func (h *RunHandler) Logs(c echo.Context) error {
	after, _ := strconv.ParseInt(c.QueryParam("after"), 10, 64)
	_, limit := pagination(c)

	logs, err := h.runs.Logs(c.Request().Context(), middleware.GetUserID(c), c.Param("id"), after, limit)
	if err != nil {
		return writeError(c, err)
	}

	var nextCursor *int64
	if len(logs) > 0 {
		cursor := logs[len(logs)-1].LogID
		nextCursor = &cursor
	}
	if logs == nil {
		logs = []*models.RunLog{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run_id":      c.Param("id"),
		"logs":        logs,
		"next_cursor": nextCursor,
	})
}

// writeError maps service errors onto HTTP status codes.
func writeError(c echo.Context, err error) error {
	var rateLimited *service.RateLimitError
	if errors.As(err, &rateLimited) {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(rateLimited.RetryAfterSeconds, 10))
		return c.JSON(http.StatusTooManyRequests, errorBody(err.Error()))
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorBody(err.Error()))
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInvalid):
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}
