package excel

// Table is a header row plus string cells, padded to the header width
type Table struct {
	Headers []string
	Rows    [][]string
}

// ColumnIndex returns the position of a header, or -1
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}
