package excel

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDataReader_TSV(t *testing.T) {
	path := writeFile(t, "m.tsv", "protein\tA_1\tA_2\nP1\t1.5\t2\nP2\tNA\t5\" gel\n\n")
	table, err := NewDataReader(path).ReadTable(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"protein", "A_1", "A_2"}, table.Headers)
	require.Len(t, table.Rows, 2, "blank lines are skipped")
	assert.Equal(t, []string{"P2", "NA", "5\" gel"}, table.Rows[1])
}

func TestDataReader_CSVPadsShortRows(t *testing.T) {
	path := writeFile(t, "m.csv", "\ufeffprotein, A_1 ,A_2\nP1,1\n")
	table, err := NewDataReader(path).ReadTable(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"protein", "A_1", "A_2"}, table.Headers)
	assert.Equal(t, []string{"P1", "1", ""}, table.Rows[0])
	assert.Equal(t, 1, table.ColumnIndex("A_1"))
	assert.Equal(t, -1, table.ColumnIndex("B_1"))
}

func TestDataReader_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"protein", "A_1", "B_1"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"P1", 10.5, 12}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	m, err := NewMatrixReader(path, WideConfig{}).ReadMatrix(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, m.FeatureIDs)
	assert.Equal(t, []string{"A_1", "B_1"}, m.SampleIDs)
	assert.Equal(t, []float64{10.5, 12}, m.Values[0])
}

func TestDataReader_Errors(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "missing.tsv")).ReadTable(context.Background())
	require.Error(t, err)

	path := writeFile(t, "header.tsv", "protein\tA\n")
	_, err = NewDataReader(path).ReadTable(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "header row"))
}

func TestParseValue(t *testing.T) {
	for _, s := range []string{"", "NA", "nan", "#N/A", "NULL", " - "} {
		v, ok := ParseValue(s)
		assert.True(t, ok, s)
		assert.True(t, math.IsNaN(v), s)
	}
	v, ok := ParseValue(" 1e3 ")
	assert.True(t, ok)
	assert.Equal(t, 1000.0, v)

	_, ok = ParseValue("sp|P12345")
	assert.False(t, ok)
}
