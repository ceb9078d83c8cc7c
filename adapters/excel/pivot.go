package excel

import (
	"context"
	"fmt"
	"math"
	"strings"

	"proteodiff/domain/abundance"
	"proteodiff/internal/errors"
	"proteodiff/internal/logger"
)

// PivotStats counts what the pivot kept and dropped
type PivotStats struct {
	Rows         int `json:"rows"`
	Kept         int `json:"kept"`
	QFiltered    int `json:"q_filtered"`
	Contaminants int `json:"contaminants"`
	NoValue      int `json:"no_value"`
	Features     int `json:"features"`
	Samples      int `json:"samples"`
}

// Pivot reads a long report and turns it into a feature-by-sample matrix
func Pivot(ctx context.Context, path string, config LongConfig) (*abundance.Matrix, PivotStats, error) {
	table, err := NewDataReader(path).WithSheet(config.Sheet).ReadTable(ctx)
	if err != nil {
		return nil, PivotStats{}, err
	}
	m, stats, err := PivotTable(ctx, table, config)
	if err != nil {
		return nil, stats, err
	}
	logger.C(ctx).Info().
		Str("file", path).
		Int("rows", stats.Rows).
		Int("kept", stats.Kept).
		Int("q_filtered", stats.QFiltered).
		Int("contaminants", stats.Contaminants).
		Int("features", stats.Features).
		Int("samples", stats.Samples).
		Msg("long report pivoted")
	return m, stats, nil
}

// PivotTable applies the q-value and contaminant filters, then aggregates
// repeated (feature, sample) observations. Features and samples keep their
// first-seen order; absent cells are NaN.
func PivotTable(ctx context.Context, table *Table, config LongConfig) (*abundance.Matrix, PivotStats, error) {
	stats := PivotStats{Rows: len(table.Rows)}

	featCol, err := requireColumn(table, config.FeatureColumn)
	if err != nil {
		return nil, stats, err
	}
	sampleCol, err := requireColumn(table, config.SampleColumn)
	if err != nil {
		return nil, stats, err
	}
	valueCol, err := requireColumn(table, config.ValueColumn)
	if err != nil {
		return nil, stats, err
	}

	aggregate := config.Aggregate
	if aggregate == "" {
		aggregate = AggregateFirst
	}
	if aggregate != AggregateFirst && aggregate != AggregateMax && aggregate != AggregateSum {
		return nil, stats, errors.InvalidInput(fmt.Sprintf("unknown aggregate %q", config.Aggregate))
	}

	var qCols []int
	for _, name := range config.QValueColumns {
		if c := table.ColumnIndex(name); c >= 0 {
			qCols = append(qCols, c)
		} else {
			logger.C(ctx).Debug().Str("column", name).Msg("q-value column absent, not filtering on it")
		}
	}

	featureIndex := make(map[string]int)
	sampleIndex := make(map[string]int)
	var featureIDs, sampleIDs []string
	cells := make(map[[2]int]float64)

	for r, row := range table.Rows {
		feature, sample := row[featCol], row[sampleCol]
		if feature == "" || sample == "" {
			return nil, stats, errors.InvalidInput(fmt.Sprintf("row %d has an empty feature or sample", r+2))
		}
		if isContaminant(feature, config.ContaminantPrefix) {
			stats.Contaminants++
			continue
		}
		if !passesQ(row, qCols, config.QValueThreshold) {
			stats.QFiltered++
			continue
		}
		v, ok := ParseValue(row[valueCol])
		if !ok {
			return nil, stats, errors.InvalidInput(fmt.Sprintf("row %d column %q: %q is not numeric", r+2, config.ValueColumn, row[valueCol]))
		}
		if math.IsNaN(v) {
			stats.NoValue++
			continue
		}
		stats.Kept++

		fi, ok := featureIndex[feature]
		if !ok {
			fi = len(featureIDs)
			featureIndex[feature] = fi
			featureIDs = append(featureIDs, feature)
		}
		si, ok := sampleIndex[sample]
		if !ok {
			si = len(sampleIDs)
			sampleIndex[sample] = si
			sampleIDs = append(sampleIDs, sample)
		}

		key := [2]int{fi, si}
		prev, seen := cells[key]
		switch {
		case !seen:
			cells[key] = v
		case aggregate == AggregateMax:
			cells[key] = math.Max(prev, v)
		case aggregate == AggregateSum:
			cells[key] = prev + v
		}
	}

	if len(featureIDs) == 0 {
		return nil, stats, errors.InvalidInput("no observations left after filtering")
	}

	values := make([][]float64, len(featureIDs))
	for i := range values {
		row := make([]float64, len(sampleIDs))
		for j := range row {
			if v, ok := cells[[2]int{i, j}]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		values[i] = row
	}
	stats.Features, stats.Samples = len(featureIDs), len(sampleIDs)

	m, err := abundance.NewMatrix(featureIDs, sampleIDs, values)
	if err != nil {
		return nil, stats, errors.FromDomain(err, "invalid pivoted matrix")
	}
	return m, stats, nil
}

func requireColumn(table *Table, name string) (int, error) {
	c := table.ColumnIndex(name)
	if c < 0 {
		return -1, errors.InvalidInput(fmt.Sprintf("column %q not found", name))
	}
	return c, nil
}

// isContaminant checks every member of a ';' separated protein group
func isContaminant(feature, prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, member := range strings.Split(feature, ";") {
		if strings.HasPrefix(strings.TrimSpace(member), prefix) {
			return true
		}
	}
	return false
}

// passesQ drops rows with a q-value above threshold or an unparseable one.
// A threshold of zero disables the filter.
func passesQ(row []string, qCols []int, threshold float64) bool {
	if threshold <= 0 {
		return true
	}
	for _, c := range qCols {
		q, ok := ParseValue(row[c])
		if !ok || math.IsNaN(q) || q > threshold {
			return false
		}
	}
	return true
}
