package chart

// SampleRows is how many leading rows the classifier inspects. Columns that
// only turn non-numeric later in the result are still treated as numeric.
const SampleRows = 20

// Classification holds the per-column numeric flags of a Table.
type Classification []bool

// Numeric returns the indexes of the numeric columns in column order.
func (c Classification) Numeric() []int {
	var out []int
	for i, ok := range c {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// IsNumericColumn reports whether every cell of column col within the first
// SampleRows rows converts to a finite number. With no rows it reports true.
func IsNumericColumn(rows [][]Value, col int) bool {
	n := len(rows)
	if n > SampleRows {
		n = SampleRows
	}
	for _, row := range rows[:n] {
		if col < 0 || col >= len(row) {
			return false
		}
		if _, ok := row[col].Float(); !ok {
			return false
		}
	}
	return true
}

// Classify flags every column of t.
func Classify(t Table) Classification {
	c := make(Classification, len(t.Columns))
	for i := range t.Columns {
		c[i] = IsNumericColumn(t.Rows, i)
	}
	return c
}
