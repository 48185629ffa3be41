package models

import "time"

// Log levels for run log entries.
const (
	LogInfo  = "INFO"
	LogWarn  = "WARN"
	LogError = "ERROR"
)

// RunLog is one append-only log entry for a run. Ordering within a run is
// (timestamp, log_id); timestamps are not unique.
// Maps to: run_logs table, cursor = log_id.
type RunLog struct {
	LogID     int64          `db:"log_id" json:"log_id"`
	RunID     string         `db:"run_id" json:"run_id"`
	NodeID    *string        `db:"node_id" json:"node_id,omitempty"`
	Timestamp time.Time      `db:"ts" json:"timestamp"`
	Level     string         `db:"level" json:"level"`
	Message   string         `db:"message" json:"message"`
	Payload   map[string]any `db:"payload" json:"payload,omitempty"`
}
