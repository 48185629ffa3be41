package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RunRepository handles database operations for workflow runs. Updates to
// node_status and outputs are field-scoped (one JSONB key per node) and
// status changes are compare-and-set against a non-terminal precondition,
// so concurrent workers need no locks.
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

const runColumns = `run_id, workflow_id, owner_id, status, node_status, inputs, outputs, plan, error, created_at, started_at, completed_at`

func scanRun(row pgx.Row) (*models.Run, error) {
	run := &models.Run{}
	err := row.Scan(
		&run.RunID,
		&run.WorkflowID,
		&run.OwnerID,
		&run.Status,
		&run.NodeStatus,
		&run.Inputs,
		&run.Outputs,
		&run.Plan,
		&run.Error,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return run, nil
}

// Create inserts a new run in the queued state.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (run_id, workflow_id, owner_id, status, node_status, inputs, outputs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		run.RunID,
		run.WorkflowID,
		run.OwnerID,
		run.Status,
		run.NodeStatus,
		run.Inputs,
		run.Outputs,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run by its ID
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = $1`
	return scanRun(r.db.QueryRow(ctx, query, runID))
}

// List retrieves runs for an owner, optionally filtered by workflow and
// status, newest first.
func (r *RunRepository) List(ctx context.Context, ownerID, workflowID string, status models.RunStatus, skip, limit int) ([]*models.Run, int, error) {
	where := `WHERE owner_id = $1`
	args := []any{ownerID}

	if workflowID != "" {
		args = append(args, workflowID)
		where += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM runs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	args = append(args, limit, skip)
	query := fmt.Sprintf(
		`SELECT %s FROM runs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		runColumns, where, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, total, nil
}

// MarkRunning transitions a queued run to running, stamps started_at,
// initializes node_status and persists the execution plan. Returns false
// when the run already started or reached a terminal state, which makes
// run_start replays a no-op.
func (r *RunRepository) MarkRunning(ctx context.Context, runID string, plan *models.ExecutionPlan, nodeStatus map[string]models.NodeStatus) (bool, error) {
	query := `
		UPDATE runs
		SET status = 'running', started_at = now(), plan = $2, node_status = $3
		WHERE run_id = $1 AND status = 'queued' AND started_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, runID, plan, nodeStatus)
	if err != nil {
		return false, fmt.Errorf("failed to mark run running: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimNode moves a node from pending to running. The conditional write is
// the double-enqueue guard: only one of several concurrent coordinators
// can claim a node.
func (r *RunRepository) ClaimNode(ctx context.Context, runID, nodeID string) (bool, error) {
	query := `
		UPDATE runs
		SET node_status = jsonb_set(node_status, ARRAY[$2], '"running"')
		WHERE run_id = $1
		  AND status = 'running'
		  AND coalesce(node_status->>$2, 'pending') = 'pending'
	`

	tag, err := r.db.Exec(ctx, query, runID, nodeID)
	if err != nil {
		return false, fmt.Errorf("failed to claim node %s: %w", nodeID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// WriteOutputs records a node's outputs exactly once per run. Returns false
// when outputs for the node were already written (a redelivery).
func (r *RunRepository) WriteOutputs(ctx context.Context, runID, nodeID string, outputs map[string]any) (bool, error) {
	if outputs == nil {
		outputs = map[string]any{}
	}
	query := `
		UPDATE runs
		SET outputs = jsonb_set(outputs, ARRAY[$2], $3)
		WHERE run_id = $1 AND NOT (outputs ? $2)
	`

	tag, err := r.db.Exec(ctx, query, runID, nodeID, outputs)
	if err != nil {
		return false, fmt.Errorf("failed to write outputs for node %s: %w", nodeID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetNodeStatus updates one node's status. Completed and failed are sticky:
// a node that reached either is never reassigned.
func (r *RunRepository) SetNodeStatus(ctx context.Context, runID, nodeID string, status models.NodeStatus) (bool, error) {
	query := `
		UPDATE runs
		SET node_status = jsonb_set(node_status, ARRAY[$2], to_jsonb($3::text))
		WHERE run_id = $1
		  AND coalesce(node_status->>$2, 'pending') NOT IN ('completed', 'failed')
	`

	tag, err := r.db.Exec(ctx, query, runID, nodeID, string(status))
	if err != nil {
		return false, fmt.Errorf("failed to set node status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish moves a run to a terminal state and stamps completed_at. The
// compare-and-set against non-terminal states makes terminal status sticky:
// a late completion can never flip a cancelled or failed run. Returns false
// when the run was already terminal.
func (r *RunRepository) Finish(ctx context.Context, runID string, status models.RunStatus, errMsg *string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish requires a terminal status, got %s", status)
	}

	query := `
		UPDATE runs
		SET status = $2, error = coalesce($3, error), completed_at = now()
		WHERE run_id = $1 AND status IN ('queued', 'running')
	`

	tag, err := r.db.Exec(ctx, query, runID, status, errMsg)
	if err != nil {
		return false, fmt.Errorf("failed to finish run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
