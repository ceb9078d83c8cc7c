package excel

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"proteodiff/domain/abundance"
	"proteodiff/internal/errors"
	"proteodiff/internal/logger"
)

// MatrixReader loads a wide abundance matrix from TSV, CSV or XLSX
type MatrixReader struct {
	path   string
	config WideConfig
}

// NewMatrixReader creates a reader for path
func NewMatrixReader(path string, config WideConfig) *MatrixReader {
	return &MatrixReader{path: path, config: config}
}

// ReadMatrix implements ports.MatrixReader
func (r *MatrixReader) ReadMatrix(ctx context.Context) (*abundance.Matrix, error) {
	table, err := NewDataReader(r.path).WithSheet(r.config.Sheet).ReadTable(ctx)
	if err != nil {
		return nil, err
	}
	m, err := TableToMatrix(table, r.config)
	if err != nil {
		return nil, err
	}
	logger.C(ctx).Info().
		Str("file", r.path).
		Int("features", m.NumFeatures()).
		Int("samples", m.NumSamples()).
		Bool("missing", m.HasMissing()).
		Msg("abundance matrix loaded")
	return m, nil
}

// TableToMatrix selects the ID and sample columns and parses intensities.
// Missing tokens (empty, NA, NaN, #N/A, NULL) become NaN.
func TableToMatrix(table *Table, config WideConfig) (*abundance.Matrix, error) {
	idCol := 0
	if config.IDColumn != "" {
		idCol = table.ColumnIndex(config.IDColumn)
		if idCol < 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("id column %q not found", config.IDColumn))
		}
	}

	cols, err := sampleColumns(table, idCol, config)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.InvalidInput("no sample columns found")
	}

	sampleIDs := make([]string, len(cols))
	for i, c := range cols {
		sampleIDs[i] = strings.TrimSpace(strings.TrimPrefix(table.Headers[c], config.StripPrefix))
	}

	featureIDs := make([]string, 0, len(table.Rows))
	values := make([][]float64, 0, len(table.Rows))
	for r, row := range table.Rows {
		id := row[idCol]
		if id == "" {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d has an empty feature id", r+2))
		}
		vals := make([]float64, len(cols))
		for i, c := range cols {
			v, ok := ParseValue(row[c])
			if !ok {
				return nil, errors.InvalidInput(fmt.Sprintf("row %d column %q: %q is not numeric", r+2, table.Headers[c], row[c]))
			}
			vals[i] = v
		}
		featureIDs = append(featureIDs, id)
		values = append(values, vals)
	}

	m, err := abundance.NewMatrix(featureIDs, sampleIDs, values)
	if err != nil {
		return nil, errors.FromDomain(err, "invalid abundance matrix")
	}
	return m, nil
}

func sampleColumns(table *Table, idCol int, config WideConfig) ([]int, error) {
	if len(config.SampleColumns) > 0 {
		cols := make([]int, len(config.SampleColumns))
		for i, name := range config.SampleColumns {
			cols[i] = table.ColumnIndex(name)
			if cols[i] < 0 {
				return nil, errors.InvalidInput(fmt.Sprintf("sample column %q not found", name))
			}
		}
		return cols, nil
	}

	re, err := config.sampleMatcher()
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("bad sample pattern: %v", err))
	}

	var cols []int
	for c, h := range table.Headers {
		if c == idCol {
			continue
		}
		if re != nil {
			if re.MatchString(h) {
				cols = append(cols, c)
			}
			continue
		}
		if numericColumn(table, c) {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// numericColumn reports whether every non-missing cell parses and at least
// one cell is present
func numericColumn(table *Table, c int) bool {
	seen := false
	for _, row := range table.Rows {
		v, ok := ParseValue(row[c])
		if !ok {
			return false
		}
		if !math.IsNaN(v) {
			seen = true
		}
	}
	return seen
}

// ParseValue parses one intensity cell. The boolean is false for text that
// is neither a number nor a missing token.
func ParseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", "#N/A", "NULL", "N/A", "-":
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
