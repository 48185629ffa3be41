package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/models"
)

// WorkflowRepository handles database operations for workflow definitions.
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

const workflowColumns = `workflow_id, name, version, owner_id, active, nodes, edges, created_at, updated_at`

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	wf := &models.Workflow{}
	err := row.Scan(
		&wf.WorkflowID,
		&wf.Name,
		&wf.Version,
		&wf.OwnerID,
		&wf.Active,
		&wf.Nodes,
		&wf.Edges,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	return wf, nil
}

// Create inserts a new workflow definition.
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	query := `
		INSERT INTO workflows (workflow_id, name, version, owner_id, active, nodes, edges, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		wf.WorkflowID,
		wf.Name,
		wf.Version,
		wf.OwnerID,
		wf.Active,
		wf.Nodes,
		wf.Edges,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow by its ID
func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE workflow_id = $1`
	return scanWorkflow(r.db.QueryRow(ctx, query, workflowID))
}

// ListByOwner retrieves workflows owned by a user, newest first.
func (r *WorkflowRepository) ListByOwner(ctx context.Context, ownerID string, skip, limit int) ([]*models.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, ownerID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}
