package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"proteodiff/domain/abundance"
	"proteodiff/domain/core"
	"proteodiff/internal/errors"
	"proteodiff/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens and pings a Postgres connection pool
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to postgres", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// resultRepository implements ports.ResultRepository
type resultRepository struct {
	db *sqlx.DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &resultRepository{db: db}
}

type runRow struct {
	RunID       string    `db:"run_id"`
	Fingerprint string    `db:"fingerprint"`
	CreatedAt   time.Time `db:"created_at"`
	abundance.Settings
	abundance.Prior
	Warnings string `db:"warnings"`
}

type resultRow struct {
	RunID    string `db:"run_id"`
	Position int    `db:"position"`
	abundance.Result
}

type summaryRow struct {
	runRow
	Total     int `db:"total"`
	Tested    int `db:"tested"`
	Increased int `db:"increased"`
	Decreased int `db:"decreased"`
}

const insertRun = `INSERT INTO analysis_runs (
	run_id, fingerprint, created_at, fit_mode, numerator, denominator,
	fc_threshold, alpha, intercept, prior_df, prior_var, warnings
) VALUES (
	:run_id, :fingerprint, :created_at, :fit_mode, :numerator, :denominator,
	:fc_threshold, :alpha, :intercept, :prior_df, :prior_var, :warnings
)`

const insertResult = `INSERT INTO analysis_results (
	run_id, position, feature_id, log_fc, ave_expr, t, moderated_t, p_value,
	adj_p_value, moderated_var, moderated_df, status, tested, untestable_reason
) VALUES (
	:run_id, :position, :feature_id, :log_fc, :ave_expr, :t, :moderated_t, :p_value,
	:adj_p_value, :moderated_var, :moderated_df, :status, :tested, :untestable_reason
)`

// SaveTable stores the run and all its rows in one transaction
func (r *resultRepository) SaveTable(ctx context.Context, table *abundance.ResultTable) error {
	warnings, err := json.Marshal(nonNil(table.Warnings))
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	run := runRow{
		RunID:       table.RunID.String(),
		Fingerprint: table.Fingerprint.String(),
		CreatedAt:   table.CreatedAt.Time(),
		Settings:    table.Settings,
		Prior:       table.Prior,
		Warnings:    string(warnings),
	}
	if _, err := tx.NamedExecContext(ctx, insertRun, run); err != nil {
		return errors.DatabaseError("failed to insert run", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, insertResult)
	if err != nil {
		return errors.DatabaseError("failed to prepare result insert", err)
	}
	defer stmt.Close()

	for i, res := range table.Results {
		row := resultRow{RunID: run.RunID, Position: i, Result: res}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert result %s", res.FeatureID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit run", err)
	}
	return nil
}

// GetTable loads a run with its rows in original feature order
func (r *resultRepository) GetTable(ctx context.Context, runID core.RunID) (*abundance.ResultTable, error) {
	var run runRow
	err := r.db.GetContext(ctx, &run, `SELECT
		run_id, fingerprint, created_at, fit_mode, numerator, denominator,
		fc_threshold, alpha, intercept, prior_df, COALESCE(prior_var, 'NaN') AS prior_var, warnings
	FROM analysis_runs WHERE run_id = $1`, runID.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound(fmt.Sprintf("run %s", runID))
		}
		return nil, errors.DatabaseError("failed to get run", err)
	}

	var rows []resultRow
	err = r.db.SelectContext(ctx, &rows, `SELECT
		run_id, position, feature_id, log_fc, ave_expr, t, moderated_t, p_value,
		adj_p_value, moderated_var, moderated_df, status, tested, untestable_reason
	FROM analysis_results WHERE run_id = $1 ORDER BY position`, runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to get results", err)
	}

	table := &abundance.ResultTable{
		RunID:       core.RunID(run.RunID),
		Fingerprint: core.Hash(run.Fingerprint),
		CreatedAt:   core.NewTimestamp(run.CreatedAt),
		Settings:    run.Settings,
		Prior:       run.Prior,
		Results:     make([]abundance.Result, len(rows)),
	}
	if len(run.Warnings) > 0 {
		if err := json.Unmarshal([]byte(run.Warnings), &table.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}
	for i, row := range rows {
		table.Results[i] = row.Result
	}
	return table, nil
}

// ListRuns returns the most recent runs with status counts
func (r *resultRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []summaryRow
	err := r.db.SelectContext(ctx, &rows, `SELECT
		r.run_id, r.fingerprint, r.created_at, r.fit_mode, r.numerator, r.denominator,
		r.fc_threshold, r.alpha, r.intercept, r.prior_df, COALESCE(r.prior_var, 'NaN') AS prior_var, r.warnings,
		COUNT(a.position) AS total,
		COUNT(a.position) FILTER (WHERE a.tested) AS tested,
		COUNT(a.position) FILTER (WHERE a.status = 'Increased') AS increased,
		COUNT(a.position) FILTER (WHERE a.status = 'Decreased') AS decreased
	FROM analysis_runs r
	LEFT JOIN analysis_results a ON a.run_id = r.run_id
	GROUP BY r.run_id
	ORDER BY r.created_at DESC
	LIMIT $1`, limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}

	out := make([]ports.RunSummary, len(rows))
	for i, row := range rows {
		out[i] = ports.RunSummary{
			RunID:       core.RunID(row.RunID),
			Fingerprint: core.Hash(row.Fingerprint),
			CreatedAt:   core.NewTimestamp(row.CreatedAt),
			Settings:    row.Settings,
			Summary: abundance.Summary{
				Total:      row.Total,
				Tested:     row.Tested,
				Untestable: row.Total - row.Tested,
				Increased:  row.Increased,
				Decreased:  row.Decreased,
			},
		}
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
