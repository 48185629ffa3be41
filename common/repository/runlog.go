package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/models"
)

// RunLogRepository handles the append-only per-run log stream.
type RunLogRepository struct {
	db *db.DB
}

// NewRunLogRepository creates a new run log repository
func NewRunLogRepository(database *db.DB) *RunLogRepository {
	return &RunLogRepository{db: database}
}

// Append adds one log entry. nodeID may be nil for run-level entries.
func (r *RunLogRepository) Append(ctx context.Context, runID string, nodeID *string, level, message string, payload map[string]any) error {
	query := `
		INSERT INTO run_logs (run_id, node_id, ts, level, message, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query, runID, nodeID, time.Now(), level, message, payload)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

// ListAfter returns up to limit entries with log_id greater than after,
// in (ts, log_id) order. after=0 starts from the beginning.
func (r *RunLogRepository) ListAfter(ctx context.Context, runID string, after int64, limit int) ([]*models.RunLog, error) {
	query := `
		SELECT log_id, run_id, node_id, ts, level, message, payload
		FROM run_logs
		WHERE run_id = $1 AND log_id > $2
		ORDER BY log_id
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, runID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.RunLog
	for rows.Next() {
		entry := &models.RunLog{}
		err := rows.Scan(
			&entry.LogID,
			&entry.RunID,
			&entry.NodeID,
			&entry.Timestamp,
			&entry.Level,
			&entry.Message,
			&entry.Payload,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run logs: %w", err)
	}

	return logs, nil
}
