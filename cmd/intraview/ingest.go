package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"intraview/internal/ingest"
	"intraview/internal/store"
)

func newConvertCmd(a *app) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "convert <src> [dst]",
		Short: "Convert a tree of CSV files to Parquet",
		Long: `Convert every CSV file under src into Snappy-compressed Parquet under dst
(default: the data directory), keeping the relative layout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := a.cfg.Storage.DataDir
			if len(args) == 2 {
				dst = args[1]
			}
			if workers <= 0 {
				workers = a.cfg.Ingest.MaxWorkers
			}
			conv := ingest.NewConverter(workers, a.log)
			conv.ChunkSize = a.cfg.Ingest.BatchSize

			stats, err := conv.ConvertTree(cmd.Context(), args[0], dst)
			if err != nil {
				return err
			}
			printConvertStats(cmd.OutOrStdout(), stats)
			if stats.Failed > 0 {
				return fmt.Errorf("%d files failed to convert", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel conversions (default ingest.max_workers)")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		workers int
		year    int
	)
	cmd := &cobra.Command{
		Use:   "ingest [source]",
		Short: "Load an exchange CSV dump into the store and catalog",
		Long: `Walk <source>/<expiry>/<trading date>/ (default: ingest.source_dir), parse
tick and OHLCV files, write ticks and bars at every timeframe to the
Parquet store and record each symbol in the catalog.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.cfg.Ingest.SourceDir
			if len(args) == 1 {
				src = args[0]
			}
			if workers <= 0 {
				workers = a.cfg.Ingest.MaxWorkers
			}
			if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.SQLitePath), 0o755); err != nil {
				return err
			}
			catalog, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer catalog.Close()

			loader := ingest.NewLoader(store.NewParquetStore(a.cfg.Storage.DataDir), catalog, workers, a.log)
			if year > 0 {
				loader.Year = year
			}
			stats, err := loader.LoadTree(cmd.Context(), src)
			if err != nil {
				return err
			}
			printLoadStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel files per day (default ingest.max_workers)")
	cmd.Flags().IntVar(&year, "year", 0, "year for trading-date labels without one (default current year)")
	return cmd
}

func printConvertStats(w io.Writer, s ingest.ConvertStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"converted", "skipped", "failed", "rows"})
	tw.AppendRow(table.Row{s.Converted, s.Skipped, s.Failed, s.Rows})
	tw.Render()

	if len(s.Failures) == 0 {
		return
	}
	files := make([]string, 0, len(s.Failures))
	for f := range s.Failures {
		files = append(files, f)
	}
	sort.Strings(files)
	ft := table.NewWriter()
	ft.SetOutputMirror(w)
	ft.SetStyle(table.StyleLight)
	ft.AppendHeader(table.Row{"file", "error"})
	for _, f := range files {
		ft.AppendRow(table.Row{f, s.Failures[f]})
	}
	ft.Render()
}

func printLoadStats(w io.Writer, s ingest.LoadStats) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"files", "failed", "symbols", "ticks", "bars", "skipped rows"})
	tw.AppendRow(table.Row{s.Files, s.Failed, s.Symbols, s.Ticks, s.Bars, s.Skipped})
	tw.Render()
}
