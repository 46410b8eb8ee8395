package chart

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSeriesDatePrice(t *testing.T) {
	tbl := Table{
		Columns: []string{"date", "price"},
		Rows: [][]Value{
			{Text("2024-01-01"), Number(10)},
			{Text("2024-01-02"), Number(11)},
			{Text("2024-01-03"), Number(9)},
		},
	}
	s, err := BuildDefault(tbl, DefaultMaxPoints)
	require.NoError(t, err)

	assert.Equal(t, Selection{X: 0, Y: 1}, s.Selection)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, s.XValues())
	assert.Equal(t, []float64{10, 11, 9}, s.YValues())
	assert.Equal(t, "date", s.Meta.XLabel)
	assert.Equal(t, "price", s.Meta.YLabel)
	assert.Equal(t, []int{1}, s.Meta.NumericColumns)
	assert.True(t, s.Meta.YNumeric)
	assert.Equal(t, 1, s.Stride)
	assert.Equal(t, 3, s.TotalRows)
}

func TestBuildSeriesLargeResult(t *testing.T) {
	rows := make([][]Value, 5000)
	for i := range rows {
		rows[i] = []Value{Text(fmt.Sprintf("t%04d", i)), Number(float64(i) * 0.5)}
	}
	tbl := Table{Columns: []string{"ts", "v"}, Rows: rows}

	s, err := BuildSeries(tbl, Selection{X: 0, Y: 1}, 1000)
	require.NoError(t, err)
	require.Len(t, s.Points, 1000)
	assert.Equal(t, 5, s.Stride)
	for k, p := range s.Points {
		assert.Equal(t, rows[k*5][0], p.X)
		assert.Equal(t, float64(k*5)*0.5, p.Y)
	}
}

func TestBuildSeriesNonNumericY(t *testing.T) {
	tbl := Table{
		Columns: []string{"name", "value"},
		Rows: [][]Value{
			{Text("a"), Number(1)},
			{Text("b"), Text("N/A")},
			{Text("c"), Number(3)},
		},
	}
	s, err := BuildSeries(tbl, Selection{X: 0, Y: 1}, 10)
	require.NoError(t, err)
	require.Len(t, s.Points, 3)
	assert.Equal(t, 1.0, s.Points[0].Y)
	assert.True(t, math.IsNaN(s.Points[1].Y))
	assert.Equal(t, 3.0, s.Points[2].Y)
	assert.False(t, s.Meta.YNumeric)
}

func TestBuildSeriesIdempotent(t *testing.T) {
	tbl := Table{Columns: []string{"ts", "v"}, Rows: numberedRows(2500)}
	first, err := BuildSeries(tbl, Selection{X: 0, Y: 1}, 700)
	require.NoError(t, err)
	second, err := BuildSeries(tbl, Selection{X: 0, Y: 1}, 700)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, numberedRows(2500), tbl.Rows)
}

func TestBuildSeriesEmpty(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}}
	s, err := BuildDefault(tbl, 10)
	require.NoError(t, err)
	assert.Empty(t, s.Points)
	assert.Equal(t, []int{0, 1}, s.Meta.NumericColumns)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"points":[]`)
}

func TestBuildSeriesPreconditions(t *testing.T) {
	tbl := Table{Columns: []string{"a", "b"}, Rows: [][]Value{{Number(1), Number(2)}}}

	_, err := BuildSeries(tbl, Selection{X: 0, Y: 2}, 10)
	assert.ErrorIs(t, err, ErrAxisOutOfRange)

	_, err = BuildSeries(tbl, Selection{X: 0, Y: 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidMaxPoints)

	ragged := Table{Columns: []string{"a", "b"}, Rows: [][]Value{{Number(1)}}}
	_, err = BuildSeries(ragged, Selection{X: 0, Y: 1}, 10)
	assert.ErrorIs(t, err, ErrRaggedRows)

	_, err = BuildDefault(tbl, 0)
	assert.ErrorIs(t, err, ErrInvalidMaxPoints)
}

func TestBuildSeriesNoColumns(t *testing.T) {
	for name, build := range map[string]func() (*Series, error){
		"default": func() (*Series, error) { return BuildDefault(Table{}, 2000) },
		"index":   func() (*Series, error) { return BuildSeries(Table{}, Selection{}, 2000) },
		"named":   func() (*Series, error) { return BuildNamed(Table{Columns: []string{}}, "x", "y", 0, 0) },
	} {
		s, err := build()
		require.NoError(t, err, name)
		require.NotNil(t, s, name)
		assert.Empty(t, s.Points, name)
		assert.NotNil(t, s.Points, name)
		assert.NotNil(t, s.Meta.Columns, name)
		assert.Equal(t, 0, s.TotalRows, name)
	}

	_, err := SelectDefaults(nil, nil)
	assert.ErrorIs(t, err, ErrNoColumns)

	data, err := json.Marshal(emptySeries())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"points":[]`)
	assert.Contains(t, string(data), `"columns":[]`)
}

func TestBuildNamed(t *testing.T) {
	tbl := Table{
		Columns: []string{"day", "price", "volume"},
		Rows:    [][]Value{{Text("mon"), Number(10), Number(100)}, {Text("tue"), Number(11), Number(200)}},
	}

	s, err := BuildNamed(tbl, "", "volume", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, Selection{X: 0, Y: 2}, s.Selection)
	assert.Equal(t, []float64{100, 200}, s.YValues())

	_, err = BuildNamed(tbl, "nope", "", 0, 5)
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = BuildNamed(tbl, "", "", -1, 5)
	assert.ErrorIs(t, err, ErrInvalidMaxPoints)
}

func TestMaxPointsOr(t *testing.T) {
	assert.Equal(t, 7, MaxPointsOr(7, 100))
	assert.Equal(t, 100, MaxPointsOr(0, 100))
	assert.Equal(t, DefaultMaxPoints, MaxPointsOr(0, 0))
	assert.Equal(t, -1, MaxPointsOr(-1, 100))
}

func TestEChartsOption(t *testing.T) {
	tbl := Table{
		Columns: []string{"date", "close"},
		Rows: [][]Value{
			{Text("d1"), Number(1)},
			{Text("d2"), Text("bad")},
		},
	}
	s, err := BuildSeries(tbl, Selection{X: 0, Y: 1}, 10)
	require.NoError(t, err)

	data, err := json.Marshal(s.EChartsOption())
	require.NoError(t, err)

	var opt struct {
		XAxis struct {
			Type string   `json:"type"`
			Name string   `json:"name"`
			Data []string `json:"data"`
		} `json:"xAxis"`
		YAxis struct {
			Name string `json:"name"`
		} `json:"yAxis"`
		Series []struct {
			Type string     `json:"type"`
			Data []*float64 `json:"data"`
		} `json:"series"`
		DataZoom []map[string]any `json:"dataZoom"`
	}
	require.NoError(t, json.Unmarshal(data, &opt))
	assert.Equal(t, "category", opt.XAxis.Type)
	assert.Equal(t, "date", opt.XAxis.Name)
	assert.Equal(t, []string{"d1", "d2"}, opt.XAxis.Data)
	assert.Equal(t, "close", opt.YAxis.Name)
	require.Len(t, opt.Series, 1)
	assert.Equal(t, "line", opt.Series[0].Type)
	require.Len(t, opt.Series[0].Data, 2)
	assert.Equal(t, 1.0, *opt.Series[0].Data[0])
	assert.Nil(t, opt.Series[0].Data[1])
	assert.Len(t, opt.DataZoom, 2)
}
