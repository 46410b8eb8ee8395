package chart

import "fmt"

// Table is a tabular query result: column names plus rows of cells aligned
// positionally with the columns.
type Table struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// NewTable tags raw rows (as returned by database/sql scans or decoded JSON)
// and checks that the result is rectangular.
func NewTable(columns []string, rows [][]any) (Table, error) {
	t := Table{
		Columns: columns,
		Rows:    make([][]Value, len(rows)),
	}
	for i, raw := range rows {
		row := make([]Value, len(raw))
		for j, cell := range raw {
			row[j] = FromAny(cell)
		}
		t.Rows[i] = row
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate returns ErrRaggedRows (wrapped with the first offending row)
// unless every row has exactly len(Columns) cells.
func (t Table) Validate() error {
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d: %w", i, len(row), len(t.Columns), ErrRaggedRows)
		}
	}
	return nil
}

// ColumnIndex returns the index of the first column named name, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Empty reports whether the table has no columns or no rows.
func (t Table) Empty() bool {
	return len(t.Columns) == 0 || len(t.Rows) == 0
}
