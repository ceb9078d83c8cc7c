package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"proteodiff/internal/errors"
	"proteodiff/internal/logger"

	"github.com/xuri/excelize/v2"
)

// DataReader reads delimited text or Excel workbooks into a header + rows table
type DataReader struct {
	filePath string
	fileType string // "xlsx", "csv" or "tsv"
	sheet    string
}

// NewDataReader creates a reader; the format is chosen by file extension.
// Anything other than .xlsx/.xlsm and .csv is read as tab separated.
func NewDataReader(filePath string) *DataReader {
	fileType := "tsv"
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xlsm":
		fileType = "xlsx"
	case ".csv":
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType}
}

// WithSheet selects a workbook sheet; the first sheet is used otherwise
func (r *DataReader) WithSheet(sheet string) *DataReader {
	r.sheet = sheet
	return r
}

// ReadTable reads the whole file
func (r *DataReader) ReadTable(ctx context.Context) (*Table, error) {
	log := logger.C(ctx).With().Str("component", "reader").Str("file", r.filePath).Logger()

	if _, err := os.Stat(r.filePath); err != nil {
		return nil, errors.IOError(r.filePath, err)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch r.fileType {
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		rows, err = r.readDelimitedRows()
	}
	if err != nil {
		return nil, errors.IOError(r.filePath, err)
	}
	if len(rows) < 2 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s must have a header row and at least one data row", r.filePath))
	}

	table := processRows(rows)
	log.Debug().
		Str("format", r.fileType).
		Int("columns", len(table.Headers)).
		Int("rows", len(table.Rows)).
		Dur("elapsed", time.Since(start)).
		Msg("table read")
	return table, nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readDelimitedRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadDelimited(file, r.fileType == "tsv")
}

// ReadDelimited parses CSV or TSV text. TSV is read with lazy quotes since
// search engine exports carry bare quotes inside fields.
func ReadDelimited(in io.Reader, tab bool) ([][]string, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	if tab {
		reader.Comma = '\t'
		reader.LazyQuotes = true
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse delimited text: %w", err)
	}
	return rows, nil
}

// processRows trims the header and pads short rows to the header width
func processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, len(headers))
		for j := range headers {
			if j < len(row) {
				cells[j] = strings.TrimSpace(row[j])
			}
		}
		data = append(data, cells)
	}
	return &Table{Headers: headers, Rows: data}
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
