package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Table is an in-memory tabular artifact. Cells are strings; the empty string is null.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// NewTable creates an empty table with the given columns
func NewTable(columns ...string) Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return Table{Columns: cols, Rows: [][]string{}}
}

// Len returns the number of rows
func (t Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column or -1
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the column exists
func (t Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// ColumnsContaining returns every column whose name contains the fragment, in table order
func (t Table) ColumnsContaining(fragment string) []string {
	var out []string
	for _, c := range t.Columns {
		if strings.Contains(c, fragment) {
			out = append(out, c)
		}
	}
	return out
}

// Value returns the cell at (row, column name); missing columns read as null
func (t Table) Value(row int, column string) string {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}

// Float parses the cell at (row, column name) as a float
func (t Table) Float(row int, column string) (float64, bool) {
	return ParseFloat(t.Value(row, column))
}

// AppendRow appends a row, padding or truncating it to the column count
func (t *Table) AppendRow(values ...string) {
	row := make([]string, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// AddColumn appends a column. values must be nil (all null) or have one entry per row.
func (t *Table) AddColumn(name string, values []string) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %s already exists", name)
	}
	if values != nil && len(values) != len(t.Rows) {
		return fmt.Errorf("column %s has %d values for %d rows", name, len(values), len(t.Rows))
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		v := ""
		if values != nil {
			v = values[i]
		}
		t.Rows[i] = append(t.Rows[i], v)
	}
	return nil
}

// DropColumn removes a column if present
func (t *Table) DropColumn(name string) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return
	}
	t.Columns = append(t.Columns[:idx:idx], t.Columns[idx+1:]...)
	for i, row := range t.Rows {
		if idx < len(row) {
			t.Rows[i] = append(row[:idx:idx], row[idx+1:]...)
		}
	}
}

// RenameColumn renames a column; renaming onto an existing column is an error
func (t *Table) RenameColumn(from, to string) error {
	idx := t.ColumnIndex(from)
	if idx < 0 {
		return fmt.Errorf("column %s not found", from)
	}
	if from == to {
		return nil
	}
	if t.HasColumn(to) {
		return fmt.Errorf("column %s already exists", to)
	}
	t.Columns[idx] = to
	return nil
}

// Column returns a copy of every value in a column
func (t Table) Column(name string) []string {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}

// Clone returns a deep copy
func (t Table) Clone() Table {
	clone := Table{
		Columns: make([]string, len(t.Columns)),
		Rows:    make([][]string, len(t.Rows)),
	}
	copy(clone.Columns, t.Columns)
	for i, row := range t.Rows {
		r := make([]string, len(row))
		copy(r, row)
		clone.Rows[i] = r
	}
	return clone
}

// IsNull reports whether a cell value is null
func IsNull(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "NaN", "nan", "NA", "<NA>", "null", "None":
		return true
	}
	return false
}

// ParseFloat parses a numeric cell. Null, non-numeric and non-finite cells
// (inf, NAN) return false.
func ParseFloat(v string) (float64, bool) {
	if IsNull(v) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatFloat renders a float with the shortest exact representation
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
