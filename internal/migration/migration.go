// Package migration creates the tables used to persist run history.
package migration

import (
	"context"

	"scqc/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order. Every statement is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, step := range Steps() {
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "migration %q failed", step.Name))
		}
	}
	return nil
}

// Step is one named schema statement
type Step struct {
	Name string
	SQL  string
}

// Steps returns the schema statements in execution order
func Steps() []Step {
	return []Step{
		{Name: "create scqc_runs", SQL: `
			CREATE TABLE IF NOT EXISTS scqc_runs (
				id UUID PRIMARY KEY,
				kind VARCHAR(16) NOT NULL,
				config_hash VARCHAR(64) NOT NULL,
				code_version VARCHAR(32) NOT NULL,
				fingerprint VARCHAR(64) NOT NULL,
				num_genes INTEGER NOT NULL DEFAULT 0,
				num_cells INTEGER NOT NULL DEFAULT 0,
				artifacts JSONB NOT NULL DEFAULT '[]',
				summary JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`},
		{Name: "index scqc_runs kind", SQL: `
			CREATE INDEX IF NOT EXISTS idx_scqc_runs_kind_created
			ON scqc_runs (kind, created_at DESC)`},
		{Name: "index scqc_runs fingerprint", SQL: `
			CREATE INDEX IF NOT EXISTS idx_scqc_runs_fingerprint
			ON scqc_runs (fingerprint)`},
	}
}
