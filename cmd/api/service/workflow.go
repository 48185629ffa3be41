package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aiwf/engine/cmd/worker/handlers"
	"github.com/aiwf/engine/cmd/worker/plan"
	"github.com/aiwf/engine/common/models"
	"github.com/aiwf/engine/common/repository"
)

// WorkflowService owns the workflow definition lifecycle.
type WorkflowService struct {
	workflows *repository.WorkflowRepository
}

func NewWorkflowService(workflows *repository.WorkflowRepository) *WorkflowService {
	return &WorkflowService{workflows: workflows}
}

// Create validates and persists a workflow definition. Invalid node types
// and cyclic graphs are rejected at creation time so they never reach the
// orchestrator.
func (s *WorkflowService) Create(ctx context.Context, ownerID, name string, nodes []models.Node, edges []models.Edge) (*models.Workflow, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	for _, node := range nodes {
		if _, err := handlers.ParseKind(node.Type); err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalid, node.ID, err)
		}
	}
	if len(nodes) > 0 {
		if _, err := plan.Build(nodes, edges); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	now := time.Now().UTC()
	wf := &models.Workflow{
		WorkflowID: uuid.NewString(),
		Name:       name,
		Version:    1,
		OwnerID:    ownerID,
		Active:     true,
		Nodes:      nodes,
		Edges:      edges,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// Get returns a workflow owned by the caller.
func (s *WorkflowService) Get(ctx context.Context, ownerID, workflowID string) (*models.Workflow, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if wf.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return wf, nil
}

// List returns the caller's workflows, newest first.
func (s *WorkflowService) List(ctx context.Context, ownerID string, skip, limit int) ([]*models.Workflow, error) {
	return s.workflows.ListByOwner(ctx, ownerID, skip, limit)
}
