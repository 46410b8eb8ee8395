package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"intraview/internal/chart"
)

type outputFormat string

const (
	outputTable    outputFormat = "table"
	outputJSON     outputFormat = "json"
	outputCSV      outputFormat = "csv"
	outputMarkdown outputFormat = "md"
)

func parseOutput(s string) (outputFormat, error) {
	switch strings.ToLower(s) {
	case "", "table", "text":
		return outputTable, nil
	case "json":
		return outputJSON, nil
	case "csv":
		return outputCSV, nil
	case "md", "markdown":
		return outputMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// renderTable writes t in the requested format. JSON output is one object
// per row keyed by column name.
func renderTable(w io.Writer, t chart.Table, format outputFormat) error {
	if format == outputJSON {
		objs := make([]map[string]any, len(t.Rows))
		for i, row := range t.Rows {
			obj := make(map[string]any, len(t.Columns))
			for j, col := range t.Columns {
				if j < len(row) {
					obj[col] = row[j]
				}
			}
			objs[i] = obj
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(objs)
	}

	if len(t.Rows) == 0 && format != outputCSV {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v.String()
		}
		tw.AppendRow(r)
	}

	switch format {
	case outputCSV:
		tw.RenderCSV()
	case outputMarkdown:
		tw.RenderMarkdown()
	default:
		tw.Render()
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
	}
	return nil
}
