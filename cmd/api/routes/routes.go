// Package routes registers the API's HTTP surface.
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/aiwf/engine/cmd/api/container"
	"github.com/aiwf/engine/cmd/api/handlers"
	"github.com/aiwf/engine/cmd/api/middleware"
)

// Register mounts all routes under /api/v1. Every route requires the
// X-User-ID header.
func Register(e *echo.Echo, c *container.Container) {
	workflowHandler := handlers.NewWorkflowHandler(c.Workflows, c.Runs)
	runHandler := handlers.NewRunHandler(c.Runs)
	ingestHandler := handlers.NewIngestHandler(c.Ingest)

	v1 := e.Group("/api/v1", middleware.ExtractUserID())

	v1.POST("/workflows", workflowHandler.Create)
	v1.GET("/workflows", workflowHandler.List)
	v1.GET("/workflows/:id", workflowHandler.Get)
	v1.POST("/workflows/:id/run", workflowHandler.Run)
	v1.POST("/workflows/:id/webhook", workflowHandler.Webhook)

	v1.GET("/runs", runHandler.List)
	v1.GET("/runs/:id", runHandler.Get)
	v1.GET("/runs/:id/logs", runHandler.Logs)
	v1.POST("/runs/:id/cancel", runHandler.Cancel)

	v1.POST("/ingest/upload", ingestHandler.Upload)
	v1.GET("/documents/:id", ingestHandler.GetDocument)
}
