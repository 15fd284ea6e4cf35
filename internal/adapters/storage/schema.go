package storage

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		json_definition JSONB NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		status TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		logs TEXT,
		executed_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_executions (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		run_id TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
		node_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		status TEXT NOT NULL,
		input_data JSONB,
		output_data JSONB,
		error_message TEXT,
		transaction_hash TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS workflow_runs_workflow_idx ON workflow_runs (workflow_id, executed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS workflow_executions_run_idx ON workflow_executions (run_id, seq)`,
}

// ApplySchema creates the tables in order. Every statement is idempotent.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
