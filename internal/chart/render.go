package chart

import (
	"fmt"
	"io"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Format is an image encoding supported by Render.
type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ParseFormat maps "png" or "svg" (any case) to a Format. Empty means PNG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "svg":
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("unsupported image format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// RenderOptions controls server-side rendering.
type RenderOptions struct {
	Format   Format
	Width    int
	Height   int
	Title    string
	MaxTicks int
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.Format == "" {
		o.Format = FormatPNG
	}
	if o.Width <= 0 {
		o.Width = 1024
	}
	if o.Height <= 0 {
		o.Height = 400
	}
	if o.MaxTicks <= 0 {
		o.MaxTicks = 10
	}
	return o
}

var lineStyle = gochart.Style{
	StrokeColor: gochart.ColorBlue,
	StrokeWidth: 2,
	FillColor:   drawing.ColorFromHex("5470c6").WithAlpha(48),
}

// Render draws s as a line chart. Points are placed at their index along
// the x axis and labelled with their category; NaN values break the line
// into separate segments.
func Render(w io.Writer, s *Series, opts RenderOptions) error {
	opts = opts.withDefaults()

	segments := segmentsOf(s.Points)
	finite := 0
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, seg := range segments {
		for _, y := range seg.YValues {
			finite++
			minY = math.Min(minY, y)
			maxY = math.Max(maxY, y)
		}
	}
	if finite < 2 {
		return fmt.Errorf("%d finite points: %w", finite, ErrNotEnoughPoints)
	}
	if minY == maxY {
		minY, maxY = minY-1, maxY+1
	}

	series := make([]gochart.Series, len(segments))
	for i, seg := range segments {
		seg.Name = s.Meta.YLabel
		seg.Style = lineStyle
		series[i] = seg
	}

	ch := gochart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 60, Right: 30, Bottom: 60},
		},
		XAxis: gochart.XAxis{
			Name:  s.Meta.XLabel,
			Ticks: ticksOf(s.Points, opts.MaxTicks),
		},
		YAxis: gochart.YAxis{
			Name:  s.Meta.YLabel,
			Range: &gochart.ContinuousRange{Min: minY, Max: maxY},
		},
		Series: series,
	}

	provider := gochart.PNG
	if opts.Format == FormatSVG {
		provider = gochart.SVG
	}
	if err := ch.Render(provider, w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}

// segmentsOf splits points into runs of finite y values.
func segmentsOf(points []Point) []gochart.ContinuousSeries {
	var (
		out []gochart.ContinuousSeries
		cur gochart.ContinuousSeries
	)
	flush := func() {
		if len(cur.XValues) > 0 {
			out = append(out, cur)
		}
		cur = gochart.ContinuousSeries{}
	}
	for i, p := range points {
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			flush()
			continue
		}
		cur.XValues = append(cur.XValues, float64(i))
		cur.YValues = append(cur.YValues, p.Y)
	}
	flush()
	return out
}

// ticksOf places at most max evenly spaced category labels, always
// including the first and last point.
func ticksOf(points []Point, max int) []gochart.Tick {
	n := len(points)
	if n == 0 {
		return nil
	}
	if max < 2 {
		max = 2
	}
	step := Stride(n, max)
	ticks := make([]gochart.Tick, 0, max+1)
	for i := 0; i < n; i += step {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: points[i].X.String()})
	}
	if last := n - 1; ticks[len(ticks)-1].Value != float64(last) {
		ticks = append(ticks, gochart.Tick{Value: float64(last), Label: points[last].X.String()})
	}
	return ticks
}
