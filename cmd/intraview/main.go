// Command intraview queries, charts and loads intraday market data from
// the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"intraview/internal/config"
	"intraview/internal/util"
)

var version = "dev"

// app carries what every subcommand needs once the root has run.
type app struct {
	cfgFile  string
	dataDir  string
	logLevel string

	cfg *config.Config
	log *slog.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "intraview",
		Short: "Explore, chart and load intraday market data",
		Long: `intraview runs SQL over Parquet and CSV files, turns query results into
downsampled chart series and loads raw exchange CSV dumps into the
Parquet store and symbol catalog used by intraview-server.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
				return nil
			}
			return a.init()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $INTRAVIEW_CONFIG or config/intraview.yaml)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (overrides storage.data_dir)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug|info|warn|error)")

	root.AddCommand(
		newVersionCmd(),
		newQueryCmd(a),
		newChartCmd(a),
		newConvertCmd(a),
		newIngestCmd(a),
		newFetchCmd(a),
		newSummaryCmd(a),
	)
	return root
}

func (a *app) init() error {
	var err error
	if a.cfgFile != "" {
		a.cfg, err = config.Load(a.cfgFile)
	} else {
		a.cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		a.cfg.Storage.DataDir = a.dataDir
	}
	level := a.cfg.Logging.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	// Logs go to stderr so command output stays pipeable.
	a.log = util.NewLoggerTo(os.Stderr, level, "text")
	util.SetDefault(a.log)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "intraview %s\n", version)
		},
	}
}
