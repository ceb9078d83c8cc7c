package excel

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longTable() *Table {
	return &Table{
		Headers: []string{"Run", "Protein.Group", "PG.MaxLFQ", "Q.Value"},
		Rows: [][]string{
			{"s1", "P1", "100", "0.001"},
			{"s2", "P1", "120", "0.002"},
			{"s1", "P2", "50", "0.001"},
			{"s2", "P2", "70", "0.5"},      // fails q-value
			{"s1", "CON__K1;P3", "9", "0"}, // contaminant group
			{"s1", "P1", "300", "0.001"},   // repeat observation
			{"s3", "P2", "NA", "0.001"},    // no value
		},
	}
}

func TestPivotTable_FiltersAndFirstAggregate(t *testing.T) {
	cfg := DefaultLongConfig()
	m, stats, err := PivotTable(context.Background(), longTable(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"P1", "P2"}, m.FeatureIDs)
	assert.Equal(t, []string{"s1", "s2"}, m.SampleIDs)
	assert.Equal(t, 100.0, m.Values[0][0], "first observation wins")
	assert.Equal(t, 120.0, m.Values[0][1])
	assert.Equal(t, 50.0, m.Values[1][0])
	assert.True(t, math.IsNaN(m.Values[1][1]))

	assert.Equal(t, PivotStats{
		Rows: 7, Kept: 4, QFiltered: 1, Contaminants: 1, NoValue: 1, Features: 2, Samples: 2,
	}, stats)
}

func TestPivotTable_Aggregates(t *testing.T) {
	cfg := DefaultLongConfig()

	cfg.Aggregate = AggregateMax
	m, _, err := PivotTable(context.Background(), longTable(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 300.0, m.Values[0][0])

	cfg.Aggregate = AggregateSum
	m, _, err = PivotTable(context.Background(), longTable(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 400.0, m.Values[0][0])

	cfg.Aggregate = "median"
	_, _, err = PivotTable(context.Background(), longTable(), cfg)
	require.Error(t, err)
}

func TestPivotTable_FiltersDisabled(t *testing.T) {
	cfg := DefaultLongConfig()
	cfg.QValueThreshold = 0
	cfg.ContaminantPrefix = ""

	m, stats, err := PivotTable(context.Background(), longTable(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "CON__K1;P3"}, m.FeatureIDs)
	assert.Equal(t, 70.0, m.Values[1][1])
	assert.Zero(t, stats.QFiltered)
}

func TestPivotTable_MissingColumn(t *testing.T) {
	cfg := DefaultLongConfig()
	cfg.ValueColumn = "Precursor.Quantity"
	_, _, err := PivotTable(context.Background(), longTable(), cfg)
	require.Error(t, err)
}

func TestPivotTable_EverythingFiltered(t *testing.T) {
	cfg := DefaultLongConfig()
	cfg.QValueThreshold = 1e-9
	_, _, err := PivotTable(context.Background(), longTable(), cfg)
	require.Error(t, err)
}
