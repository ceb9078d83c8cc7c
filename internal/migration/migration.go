package migration

import (
	"context"

	"proteodiff/internal/errors"

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

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, step := range r.Steps() {
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			return errors.Wrapf(err, "failed to %s", step.Name)
		}
	}
	return nil
}

// Step is one idempotent schema statement
type Step struct {
	Name string
	SQL  string
}

// Steps lists the schema statements in execution order
func (r *MigrationRunner) Steps() []Step {
	return []Step{
		{"create analysis_runs table", `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			fit_mode VARCHAR(16) NOT NULL,
			numerator TEXT NOT NULL,
			denominator TEXT NOT NULL,
			fc_threshold DOUBLE PRECISION NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			intercept BOOLEAN NOT NULL DEFAULT false,
			prior_df DOUBLE PRECISION NOT NULL,
			prior_var DOUBLE PRECISION,
			warnings JSONB NOT NULL DEFAULT '[]'::jsonb
		)`},
		{"create analysis_results table", `
		CREATE TABLE IF NOT EXISTS analysis_results (
			run_id TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			feature_id TEXT NOT NULL,
			log_fc DOUBLE PRECISION,
			ave_expr DOUBLE PRECISION,
			t DOUBLE PRECISION,
			moderated_t DOUBLE PRECISION,
			p_value DOUBLE PRECISION,
			adj_p_value DOUBLE PRECISION,
			moderated_var DOUBLE PRECISION,
			moderated_df DOUBLE PRECISION,
			status VARCHAR(32) NOT NULL,
			tested BOOLEAN NOT NULL,
			untestable_reason TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, position)
		)`},
		{"create fingerprint index", `
		CREATE INDEX IF NOT EXISTS idx_analysis_runs_fingerprint ON analysis_runs(fingerprint)`},
		{"create status index", `
		CREATE INDEX IF NOT EXISTS idx_analysis_results_status ON analysis_results(run_id, status)`},
	}
}
