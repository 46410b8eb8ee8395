package chart

import "fmt"

// Meta describes how a Series was built.
type Meta struct {
	XLabel         string   `json:"x_label"`
	YLabel         string   `json:"y_label"`
	Columns        []string `json:"columns"`
	NumericColumns []int    `json:"numeric_columns"`
	YNumeric       bool     `json:"y_numeric"`
}

// Series is the renderer-agnostic result of binding a Table to two axes.
type Series struct {
	Points    []Point   `json:"points"`
	Meta      Meta      `json:"meta"`
	Selection Selection `json:"selection"`
	Stride    int       `json:"stride"`
	TotalRows int       `json:"total_rows"`
}

// XValues returns the category labels of the points.
func (s *Series) XValues() []string {
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.X.String()
	}
	return out
}

// YValues returns the y coordinates of the points, NaN included.
func (s *Series) YValues() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Y
	}
	return out
}

// BuildSeries validates t, sel and maxPoints, then classifies the columns
// and downsamples the rows. The table is never modified. A table with no
// rows or no columns yields an empty series.
func BuildSeries(t Table, sel Selection, maxPoints int) (*Series, error) {
	if maxPoints <= 0 {
		return nil, fmt.Errorf("max points %d: %w", maxPoints, ErrInvalidMaxPoints)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return emptySeries(), nil
	}
	if err := sel.Validate(len(t.Columns)); err != nil {
		return nil, err
	}

	class := Classify(t)
	points, err := Downsample(t.Rows, sel.X, sel.Y, maxPoints)
	if err != nil {
		return nil, err
	}

	numeric := class.Numeric()
	if numeric == nil {
		numeric = []int{}
	}
	return &Series{
		Points: points,
		Meta: Meta{
			XLabel:         t.Columns[sel.X],
			YLabel:         t.Columns[sel.Y],
			Columns:        append([]string{}, t.Columns...),
			NumericColumns: numeric,
			YNumeric:       class[sel.Y],
		},
		Selection: sel,
		Stride:    Stride(len(t.Rows), maxPoints),
		TotalRows: len(t.Rows),
	}, nil
}

func emptySeries() *Series {
	return &Series{
		Points: []Point{},
		Meta: Meta{
			Columns:        []string{},
			NumericColumns: []int{},
		},
		Stride: 1,
	}
}

// BuildDefault builds a series on the default axes.
func BuildDefault(t Table, maxPoints int) (*Series, error) {
	if maxPoints <= 0 {
		return nil, fmt.Errorf("max points %d: %w", maxPoints, ErrInvalidMaxPoints)
	}
	return BuildNamed(t, "", "", maxPoints, maxPoints)
}

// BuildNamed builds a series on axes chosen by column name. Empty names keep
// the default axis; a zero maxPoints falls back to defaultMax.
func BuildNamed(t Table, x, y string, maxPoints, defaultMax int) (*Series, error) {
	maxPoints = MaxPointsOr(maxPoints, defaultMax)
	if maxPoints <= 0 {
		return nil, fmt.Errorf("max points %d: %w", maxPoints, ErrInvalidMaxPoints)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return emptySeries(), nil
	}
	sel, err := SelectByName(t.Columns, t.Rows, x, y)
	if err != nil {
		return nil, err
	}
	return BuildSeries(t, sel, maxPoints)
}

// MaxPointsOr returns maxPoints, or defaultMax when maxPoints is zero, or
// DefaultMaxPoints when both are zero. Negative budgets pass through so the
// builder can reject them.
func MaxPointsOr(maxPoints, defaultMax int) int {
	if maxPoints != 0 {
		return maxPoints
	}
	if defaultMax != 0 {
		return defaultMax
	}
	return DefaultMaxPoints
}
