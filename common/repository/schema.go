package repository

import (
	"context"
	"fmt"

	"github.com/aiwf/engine/common/db"
)

// Schema is the authoritative DDL for the engine's collections. It is
// applied at startup through the bootstrap DB init hook.
const Schema = `
CREATE TABLE IF NOT EXISTS workflows (
	workflow_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	version      INT NOT NULL DEFAULT 1,
	owner_id     TEXT NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	nodes        JSONB NOT NULL DEFAULT '[]',
	edges        JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	workflow_id  TEXT NOT NULL,
	owner_id     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	node_status  JSONB NOT NULL DEFAULT '{}',
	inputs       JSONB NOT NULL DEFAULT '{}',
	outputs      JSONB NOT NULL DEFAULT '{}',
	plan         JSONB,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs (workflow_id, created_at DESC);

CREATE TABLE IF NOT EXISTS run_logs (
	log_id   BIGSERIAL PRIMARY KEY,
	run_id   TEXT NOT NULL,
	node_id  TEXT,
	ts       TIMESTAMPTZ NOT NULL DEFAULT now(),
	level    TEXT NOT NULL,
	message  TEXT NOT NULL,
	payload  JSONB
);

CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs (run_id, log_id);

CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	doc_type    TEXT NOT NULL,
	content     TEXT NOT NULL,
	metadata    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS uploaded_files (
	file_id      TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	filename     TEXT NOT NULL,
	path         TEXT NOT NULL,
	size_bytes   BIGINT NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// InitSchema creates all tables if they do not exist.
func InitSchema(ctx context.Context, database *db.DB) error {
	if _, err := database.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
