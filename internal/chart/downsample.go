package chart

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultMaxPoints bounds the number of plotted points when the caller does
// not choose a budget.
const DefaultMaxPoints = 2000

// Point is one plotted pair. X is the raw category cell; Y is NaN when the
// source cell did not convert to a finite number.
type Point struct {
	X Value
	Y float64
}

// MarshalJSON writes {"x": <cell>, "y": <number|null>}.
func (p Point) MarshalJSON() ([]byte, error) {
	var y any
	if !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) {
		y = p.Y
	}
	return json.Marshal(struct {
		X Value `json:"x"`
		Y any   `json:"y"`
	}{p.X, y})
}

// UnmarshalJSON is the inverse of MarshalJSON; a null y becomes NaN.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		X Value    `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.X = raw.X
	p.Y = math.NaN()
	if raw.Y != nil {
		p.Y = *raw.Y
	}
	return nil
}

// Stride returns the sampling step for n rows under a budget of maxPoints:
// 1 when everything fits, ceil(n/maxPoints) otherwise.
func Stride(n, maxPoints int) int {
	if maxPoints <= 0 || n <= maxPoints {
		return 1
	}
	return (n + maxPoints - 1) / maxPoints
}

// Downsample projects rows onto (x, y) pairs, keeping every row when they
// fit in maxPoints and otherwise every Stride-th row starting at row 0.
// Every row must hold cells at both the x and y indexes.
func Downsample(rows [][]Value, x, y, maxPoints int) ([]Point, error) {
	if maxPoints <= 0 {
		return nil, fmt.Errorf("max points %d: %w", maxPoints, ErrInvalidMaxPoints)
	}
	if x < 0 || y < 0 {
		return nil, fmt.Errorf("x index %d, y index %d: %w", x, y, ErrAxisOutOfRange)
	}
	need := max(x, y) + 1
	for i, row := range rows {
		if len(row) < need {
			if i == 0 {
				return nil, fmt.Errorf("x index %d, y index %d with %d cells: %w", x, y, len(row), ErrAxisOutOfRange)
			}
			return nil, fmt.Errorf("row %d has %d cells, want at least %d: %w", i, len(row), need, ErrRaggedRows)
		}
	}
	stride := Stride(len(rows), maxPoints)
	points := make([]Point, 0, (len(rows)+stride-1)/stride)
	for i := 0; i < len(rows); i += stride {
		row := rows[i]
		yv, _ := row[y].Float()
		points = append(points, Point{X: row[x], Y: yv})
	}
	return points, nil
}
