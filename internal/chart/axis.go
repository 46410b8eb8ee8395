package chart

import "fmt"

// Selection picks the columns used for the x (category) and y (value) axes.
type Selection struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// SelectDefaults picks the first non-numeric column for X and the first
// numeric column for Y, falling back to column 0 for either when no column
// qualifies. It returns ErrNoColumns when there are no columns at all.
func SelectDefaults(columns []string, rows [][]Value) (Selection, error) {
	if len(columns) == 0 {
		return Selection{}, ErrNoColumns
	}
	sel := Selection{X: -1, Y: -1}
	for i := range columns {
		numeric := IsNumericColumn(rows, i)
		if !numeric && sel.X < 0 {
			sel.X = i
		}
		if numeric && sel.Y < 0 {
			sel.Y = i
		}
		if sel.X >= 0 && sel.Y >= 0 {
			break
		}
	}
	if sel.X < 0 {
		sel.X = 0
	}
	if sel.Y < 0 {
		sel.Y = 0
	}
	return sel, nil
}

// SelectByName resolves x and y column names against columns. An empty name
// keeps the default for that axis. Duplicate names resolve to the first match.
func SelectByName(columns []string, rows [][]Value, x, y string) (Selection, error) {
	sel, err := SelectDefaults(columns, rows)
	if err != nil {
		return Selection{}, err
	}
	if x != "" {
		if sel.X, err = columnIndex(columns, x); err != nil {
			return Selection{}, fmt.Errorf("x axis: %w", err)
		}
	}
	if y != "" {
		if sel.Y, err = columnIndex(columns, y); err != nil {
			return Selection{}, fmt.Errorf("y axis: %w", err)
		}
	}
	return sel, nil
}

// Validate returns ErrAxisOutOfRange when either index does not address one
// of ncols columns.
func (s Selection) Validate(ncols int) error {
	if ncols == 0 {
		return ErrNoColumns
	}
	if s.X < 0 || s.X >= ncols {
		return fmt.Errorf("x index %d with %d columns: %w", s.X, ncols, ErrAxisOutOfRange)
	}
	if s.Y < 0 || s.Y >= ncols {
		return fmt.Errorf("y index %d with %d columns: %w", s.Y, ncols, ErrAxisOutOfRange)
	}
	return nil
}

func columnIndex(columns []string, name string) (int, error) {
	for i, c := range columns {
		if c == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%q: %w", name, ErrColumnNotFound)
}
