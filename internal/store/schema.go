package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS templates (
		id              TEXT PRIMARY KEY,
		name            TEXT,
		channel         TEXT NOT NULL,
		kind            TEXT NOT NULL,
		subject_pattern TEXT,
		body_pattern    TEXT NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS targets (
		id                TEXT PRIMARY KEY,
		channel           TEXT NOT NULL,
		handle            TEXT NOT NULL,
		display_name      TEXT,
		status            TEXT NOT NULL DEFAULT 'pending',
		tags              TEXT[] NOT NULL DEFAULT '{}',
		last_contacted_at TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_targets_pending ON targets (channel, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id            TEXT PRIMARY KEY,
		run_id        TEXT NOT NULL,
		channel       TEXT NOT NULL,
		action        TEXT NOT NULL,
		succeeded     BOOLEAN NOT NULL,
		target_ref    TEXT,
		metadata      JSONB NOT NULL DEFAULT '{}',
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_run ON audit_log (run_id, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS templates (
		id              TEXT PRIMARY KEY,
		name            TEXT,
		channel         TEXT NOT NULL,
		kind            TEXT NOT NULL,
		subject_pattern TEXT,
		body_pattern    TEXT NOT NULL,
		updated_at      DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS targets (
		id                TEXT PRIMARY KEY,
		channel           TEXT NOT NULL,
		handle            TEXT NOT NULL,
		display_name      TEXT,
		status            TEXT NOT NULL DEFAULT 'pending',
		tags              TEXT NOT NULL DEFAULT '[]',
		last_contacted_at DATETIME,
		created_at        DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_targets_pending ON targets (channel, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id            TEXT PRIMARY KEY,
		run_id        TEXT NOT NULL,
		channel       TEXT NOT NULL,
		action        TEXT NOT NULL,
		succeeded     BOOLEAN NOT NULL,
		target_ref    TEXT,
		metadata      TEXT NOT NULL DEFAULT '{}',
		error_message TEXT,
		created_at    DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_run ON audit_log (run_id, created_at)`,
}

// Migrate creates the tables for the store's dialect. It is idempotent.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	s.logger.Info("schema migrated", map[string]interface{}{"statements": len(stmts)})
	return nil
}
