package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aiwf/engine/cmd/api/middleware"
	"github.com/aiwf/engine/cmd/api/service"
	"github.com/aiwf/engine/common/models"
)

// WorkflowHandler handles workflow definition requests.
type WorkflowHandler struct {
	workflows *service.WorkflowService
	runs      *service.RunService
}

func NewWorkflowHandler(workflows *service.WorkflowService, runs *service.RunService) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, runs: runs}
}

type createWorkflowRequest struct {
	Name  string         `json:"name"`
	Nodes []models.Node  `json:"nodes"`
	Edges []models.Edge  `json:"edges"`
}

// Create handles POST /api/v1/workflows.
func (h *WorkflowHandler) Create(c echo.Context) error {
	var req createWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	wf, err := h.workflows.Create(c.Request().Context(), middleware.GetUserID(c), req.Name, req.Nodes, req.Edges)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, wf)
}

// Get handles GET /api/v1/workflows/:id.
func (h *WorkflowHandler) Get(c echo.Context) error {
	wf, err := h.workflows.Get(c.Request().Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// List handles GET /api/v1/workflows.
func (h *WorkflowHandler) List(c echo.Context) error {
	skip, limit := pagination(c)
	workflows, err := h.workflows.List(c.Request().Context(), middleware.GetUserID(c), skip, limit)
	if err != nil {
		return writeError(c, err)
	}
	if workflows == nil {
		workflows = []*models.Workflow{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"workflows": workflows,
		"total":     len(workflows),
	})
}

type startRunRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// Run handles POST /api/v1/workflows/:id/run.
func (h *WorkflowHandler) Run(c echo.Context) error {
	var req startRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}

	run, err := h.runs.Start(c.Request().Context(), middleware.GetUserID(c), c.Param("id"), req.Inputs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"run_id": run.RunID,
		"status": run.Status,
	})
}

// Webhook handles POST /api/v1/workflows/:id/webhook. The request body
// becomes the run's `data` input, which ingest.webhook nodes consume.
func (h *WorkflowHandler) Webhook(c echo.Context) error {
	var payload map[string]any
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid webhook payload"))
	}

	run, err := h.runs.Start(c.Request().Context(), middleware.GetUserID(c), c.Param("id"), map[string]any{
		"data": payload,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"run_id": run.RunID,
		"status": run.Status,
	})
}

func pagination(c echo.Context) (skip, limit int) {
	skip, _ = strconv.Atoi(c.QueryParam("skip"))
	if skip < 0 {
		skip = 0
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	return skip, limit
}
