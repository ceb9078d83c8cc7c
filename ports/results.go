package ports

import (
	"context"
	"io"

	"proteodiff/domain/abundance"
	"proteodiff/domain/core"
)

// ResultRepository persists finished result tables
type ResultRepository interface {
	SaveTable(ctx context.Context, table *abundance.ResultTable) error
	GetTable(ctx context.Context, runID core.RunID) (*abundance.ResultTable, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is one stored run without its per-feature rows
type RunSummary struct {
	RunID       core.RunID         `json:"run_id" db:"run_id"`
	Fingerprint core.Hash          `json:"fingerprint" db:"fingerprint"`
	CreatedAt   core.Timestamp     `json:"created_at" db:"created_at"`
	Settings    abundance.Settings `json:"settings"`
	Summary     abundance.Summary  `json:"summary"`
}

// MatrixReader loads an abundance matrix from some source
type MatrixReader interface {
	ReadMatrix(ctx context.Context) (*abundance.Matrix, error)
}

// TableWriter serializes a result table
type TableWriter interface {
	WriteTable(w io.Writer, table *abundance.ResultTable) error
}
