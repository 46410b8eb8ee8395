package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func col(vals ...Value) [][]Value {
	rows := make([][]Value, len(vals))
	for i, v := range vals {
		rows[i] = []Value{v}
	}
	return rows
}

func TestIsNumericColumn(t *testing.T) {
	tests := []struct {
		name string
		rows [][]Value
		want bool
	}{
		{"numbers", col(Number(1), Number(2.5), Number(-3)), true},
		{"numeric strings", col(Text("12.5"), Text("-3"), Number(4)), true},
		{"word", col(Number(1), Text("abc")), false},
		{"null", col(Number(1), Null()), false},
		{"empty string", col(Text("")), false},
		{"inf string", col(Text("Inf")), false},
		{"nan string", col(Text("NaN")), false},
		{"no rows", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNumericColumn(tt.rows, 0))
		})
	}
}

func TestIsNumericColumnOnlySamplesPrefix(t *testing.T) {
	vals := make([]Value, 0, 25)
	for i := 0; i < SampleRows; i++ {
		vals = append(vals, Number(float64(i)))
	}
	for i := 0; i < 5; i++ {
		vals = append(vals, Text("late"))
	}
	assert.True(t, IsNumericColumn(col(vals...), 0))

	vals[SampleRows-1] = Text("edge")
	assert.False(t, IsNumericColumn(col(vals...), 0))
}

func TestClassify(t *testing.T) {
	tbl := Table{
		Columns: []string{"date", "price", "note"},
		Rows: [][]Value{
			{Text("2024-01-01"), Number(10), Text("a")},
			{Text("2024-01-02"), Text("11"), Text("b")},
		},
	}
	c := Classify(tbl)
	assert.Equal(t, Classification{false, true, false}, c)
	assert.Equal(t, []int{1}, c.Numeric())
}
