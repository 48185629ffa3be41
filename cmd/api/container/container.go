// Package container wires the API's services once at startup and hands
// them to the route layer.
package container

import (
	"github.com/aiwf/engine/cmd/api/service"
	"github.com/aiwf/engine/common/bootstrap"
	"github.com/aiwf/engine/common/ratelimit"
	"github.com/aiwf/engine/common/repository"
)

// Container holds all API services.
type Container struct {
	Components *bootstrap.Components

	Workflows *service.WorkflowService
	Runs      *service.RunService
	Ingest    *service.IngestService
}

// New builds the repository and service graph on top of the bootstrapped
// components.
func New(components *bootstrap.Components) *Container {
	workflowRepo := repository.NewWorkflowRepository(components.DB)
	runRepo := repository.NewRunRepository(components.DB)
	logRepo := repository.NewRunLogRepository(components.DB)
	docRepo := repository.NewDocumentRepository(components.DB)

	var limiter *ratelimit.Limiter
	if components.Redis != nil {
		limiter = ratelimit.New(components.Redis, components.Logger)
	}

	return &Container{
		Components: components,
		Workflows:  service.NewWorkflowService(workflowRepo),
		Runs:       service.NewRunService(runRepo, workflowRepo, logRepo, components.Queue, limiter, components.Logger),
		Ingest:     service.NewIngestService(docRepo, components.Config.Service.UploadDir),
	}
}
