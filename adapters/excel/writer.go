package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"proteodiff/domain/abundance"
	"proteodiff/ports"

	"github.com/xuri/excelize/v2"
)

// ResultColumns is the output column order
var ResultColumns = []string{
	"feature_id", "logFC", "AveExpr", "t", "moderated_t",
	"P.Value", "adj.P.Val", "moderated_df", "status", "tested",
}

// DelimitedWriter writes result tables as CSV or TSV
type DelimitedWriter struct {
	Comma rune
}

// XLSXWriter writes result tables as an Excel workbook with a results
// sheet and a run sheet
type XLSXWriter struct{}

// WriterFor picks a writer from an output path or format name
// (tsv, csv, xlsx). Unknown extensions get TSV.
func WriterFor(pathOrFormat string) (ports.TableWriter, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(pathOrFormat), "."))
	if format == "" {
		format = strings.ToLower(pathOrFormat)
	}
	switch format {
	case "csv":
		return DelimitedWriter{Comma: ','}, nil
	case "xlsx":
		return XLSXWriter{}, nil
	case "tsv", "txt", "tab", "", "-":
		return DelimitedWriter{Comma: '\t'}, nil
	}
	return nil, fmt.Errorf("unsupported output format %q", pathOrFormat)
}

// WriteTable implements ports.TableWriter
func (dw DelimitedWriter) WriteTable(w io.Writer, table *abundance.ResultTable) error {
	cw := csv.NewWriter(w)
	if dw.Comma != 0 {
		cw.Comma = dw.Comma
	}
	if err := cw.Write(ResultColumns); err != nil {
		return err
	}
	for _, r := range table.Results {
		if err := cw.Write(formatRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatRow(r abundance.Result) []string {
	return []string{
		r.FeatureID,
		formatFloat(r.LogFC),
		formatFloat(r.AveExpr),
		formatFloat(r.T),
		formatFloat(r.ModeratedT),
		formatFloat(r.PValue),
		formatFloat(r.AdjPValue),
		formatFloat(r.ModeratedDF),
		string(r.Status),
		strconv.FormatBool(r.Tested),
	}
}

// formatFloat writes NaN as NA so R and pandas read it back as missing
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NA"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

const (
	resultsSheet = "Results"
	runSheet     = "Run"
)

// WriteTable implements ports.TableWriter
func (XLSXWriter) WriteTable(w io.Writer, table *abundance.ResultTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, len(ResultColumns))
	for i, c := range ResultColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range table.Results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			r.FeatureID,
			cellValue(r.LogFC),
			cellValue(r.AveExpr),
			cellValue(r.T),
			cellValue(r.ModeratedT),
			cellValue(r.PValue),
			cellValue(r.AdjPValue),
			cellValue(r.ModeratedDF),
			string(r.Status),
			r.Tested,
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := f.SetPanes(resultsSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.NewSheet(runSheet); err != nil {
		return fmt.Errorf("failed to add run sheet: %w", err)
	}
	for i, kv := range runMetadata(table) {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(runSheet, cell, &kv); err != nil {
			return fmt.Errorf("failed to write run sheet: %w", err)
		}
	}

	_, err := f.WriteTo(w)
	return err
}

// cellValue leaves non-finite statistics as empty cells
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func runMetadata(table *abundance.ResultTable) [][]interface{} {
	s := table.Settings
	sum := table.Summarize()
	rows := [][]interface{}{
		{"run_id", table.RunID.String()},
		{"fingerprint", table.Fingerprint.String()},
		{"created_at", table.CreatedAt.String()},
		{"fit_mode", string(s.FitMode)},
		{"contrast", s.Numerator + " - " + s.Denominator},
		{"intercept", s.Intercept},
		{"fc_threshold", s.FCThreshold},
		{"alpha", s.Alpha},
		{"prior_df", table.Prior.D0},
		{"prior_var", cellValue(table.Prior.S02)},
		{"features", sum.Total},
		{"tested", sum.Tested},
		{"increased", sum.Increased},
		{"decreased", sum.Decreased},
	}
	for _, w := range table.Warnings {
		rows = append(rows, []interface{}{"warning", w})
	}
	return rows
}

// WriteMatrix writes a wide feature-by-sample matrix that MatrixReader
// reads back. Missing cells are written as NA.
func WriteMatrix(w io.Writer, m *abundance.Matrix, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	header := append([]string{"feature_id"}, m.SampleIDs...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, id := range m.FeatureIDs {
		row[0] = id
		for j, v := range m.Values[i] {
			row[j+1] = formatFloat(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
