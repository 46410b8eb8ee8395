package chart

import "math"

// EChartsOption returns the option object for an ECharts line chart of s:
// a category x axis, a value y axis, one smoothed area line and zoom
// controls over the full range. NaN values are written as null so the
// line gaps there.
func (s *Series) EChartsOption() map[string]any {
	x := make([]string, len(s.Points))
	y := make([]any, len(s.Points))
	for i, p := range s.Points {
		x[i] = p.X.String()
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			y[i] = nil
		} else {
			y[i] = p.Y
		}
	}

	return map[string]any{
		"animation": true,
		"tooltip":   map[string]any{"trigger": "axis"},
		"grid": map[string]any{
			"left":   60,
			"right":  30,
			"top":    40,
			"bottom": 60,
		},
		"xAxis": map[string]any{
			"type":         "category",
			"data":         x,
			"name":         s.Meta.XLabel,
			"nameLocation": "middle",
			"nameGap":      30,
			"axisLabel":    map[string]any{"rotate": 30, "fontSize": 12},
		},
		"yAxis": map[string]any{
			"type":         "value",
			"name":         s.Meta.YLabel,
			"nameLocation": "middle",
			"nameGap":      40,
		},
		"series": []any{
			map[string]any{
				"name":         s.Meta.YLabel,
				"type":         "line",
				"data":         y,
				"smooth":       true,
				"symbol":       "none",
				"lineStyle":    map[string]any{"width": 2},
				"areaStyle":    map[string]any{},
				"connectNulls": false,
			},
		},
		"dataZoom": []any{
			map[string]any{"type": "slider", "start": 0, "end": 100},
			map[string]any{"type": "inside", "start": 0, "end": 100},
		},
	}
}
