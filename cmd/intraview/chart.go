package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"intraview/internal/chart"
)

func newChartCmd(a *app) *cobra.Command {
	var (
		x, y      string
		maxPoints int
		format    string
		out       string
		title     string
	)
	cmd := &cobra.Command{
		Use:   "chart <file> [sql]",
		Short: "Chart a query result",
		Long: `Run a query and bind two of its columns to the chart axes. Without --x and
--y the first non-numeric column becomes the x axis and the first numeric
column the y axis. Formats svg and png render an image; json prints the
series and echarts prints an ECharts option object.`,
		Example: `  intraview chart ohlcv/1min/RELIANCE/2024-08-01.parquet --y close -f svg -O reliance.svg
  intraview chart csv/prices.csv "SELECT day, price FROM data" -f echarts`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := ""
			if len(args) == 2 {
				sql = args[1]
			}
			res, err := runLocal(cmd.Context(), a, args[0], sql)
			if err != nil {
				return err
			}
			series, err := chart.BuildNamed(res.Table, x, y, maxPoints, a.cfg.Chart.MaxPoints)
			if err != nil {
				return err
			}
			a.log.Debug("series built", "points", len(series.Points), "stride", series.Stride, "rows", series.TotalRows)

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			return writeSeries(w, series, format, chart.RenderOptions{
				Width:  a.cfg.Chart.Width,
				Height: a.cfg.Chart.Height,
				Title:  title,
			})
		},
	}
	cmd.Flags().StringVar(&x, "x", "", "x axis column name")
	cmd.Flags().StringVar(&y, "y", "", "y axis column name")
	cmd.Flags().IntVar(&maxPoints, "max-points", 0, "maximum plotted points (default chart.max_points)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json|echarts|svg|png)")
	cmd.Flags().StringVarP(&out, "out", "O", "", "write to this file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "", "chart title for rendered images")
	return cmd
}

func writeSeries(w io.Writer, s *chart.Series, format string, opts chart.RenderOptions) error {
	switch strings.ToLower(format) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "echarts":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s.EChartsOption())
	default:
		f, err := chart.ParseFormat(format)
		if err != nil {
			return err
		}
		opts.Format = f
		return chart.Render(w, s, opts)
	}
}
