package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"intraview/internal/chart"
	"intraview/internal/query"
	"intraview/pkg/intraview"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		output string
		server string
	)
	cmd := &cobra.Command{
		Use:   "query <file> [sql]",
		Short: "Run SQL against a data file",
		Long: `Run SQL against a Parquet or CSV file under the data directory. The file
is available as the view "data"; without SQL the first 100 rows are shown.`,
		Example: `  intraview query ohlcv/1min/RELIANCE/2024-08-01.parquet
  intraview query csv/trades.csv "SELECT symbol, sum(qty) FROM data GROUP BY 1" -o json
  intraview query csv/trades.csv --server http://localhost:8000`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := ""
			if len(args) == 2 {
				sql = args[1]
			}
			format, err := parseOutput(output)
			if err != nil {
				return err
			}

			var t chart.Table
			var truncated bool
			if server != "" {
				res, err := intraview.NewClient(server).Query(cmd.Context(), args[0], sql)
				if err != nil {
					return err
				}
				t = tableFromClient(res)
				truncated = res.Truncated
			} else {
				res, err := runLocal(cmd.Context(), a, args[0], sql)
				if err != nil {
					return err
				}
				t, truncated = res.Table, res.Truncated
			}

			if err := renderTable(cmd.OutOrStdout(), t, format); err != nil {
				return err
			}
			if truncated {
				a.log.Warn("result truncated", "rows", len(t.Rows))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table|json|csv|md)")
	cmd.Flags().StringVar(&server, "server", "", "query through a running intraview-server instead of locally")
	_ = cmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "csv", "md"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// runLocal runs one query with an in-process DuckDB runner.
func runLocal(ctx context.Context, a *app, file, sql string) (*query.Result, error) {
	runner, err := query.NewRunner(ctx, query.Options{
		DataDir:    a.cfg.Storage.DataDir,
		DuckDBPath: a.cfg.Storage.DuckDBPath,
		MaxRows:    a.cfg.Query.MaxRows,
		Timeout:    a.cfg.Query.Timeout,
		Logger:     a.log,
	})
	if err != nil {
		return nil, err
	}
	defer runner.Close()

	res, err := runner.Run(ctx, query.Request{FilePath: file, SQL: sql})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", file, err)
	}
	return res, nil
}

func tableFromClient(res *intraview.QueryResult) chart.Table {
	t := chart.Table{Columns: res.Columns, Rows: make([][]chart.Value, len(res.Rows))}
	for i, row := range res.Rows {
		cells := make([]chart.Value, len(row))
		for j, v := range row {
			cells[j] = chart.FromAny(v)
		}
		t.Rows[i] = cells
	}
	return t
}
