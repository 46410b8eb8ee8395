package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"intraview/internal/gather"
	"intraview/internal/store"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		symbols  string
		date     string
		trades   bool
		timezone string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a day of 1-minute bars from Alpaca",
		Long: `Fetch one trading day of 1-minute bars (and optionally trades) for a list
of US symbols from the Alpaca market data API, store them at every timeframe
and record the symbols in the catalog. Credentials come from the alpaca
config section or ALPACA_API_KEY / ALPACA_API_SECRET.`,
		Example: `  intraview fetch --symbols AAPL,MSFT --date 2024-08-01 --trades`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Alpaca.APIKey == "" || a.cfg.Alpaca.APISecret == "" {
				return fmt.Errorf("alpaca credentials not configured")
			}
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("loading timezone %s: %w", timezone, err)
			}
			day := time.Now().In(loc)
			if date != "" {
				if day, err = time.ParseInLocation("2006-01-02", date, loc); err != nil {
					return fmt.Errorf("parsing date %q: %w", date, err)
				}
			}

			if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.SQLitePath), 0o755); err != nil {
				return err
			}
			catalog, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer catalog.Close()

			ps := store.NewParquetStore(a.cfg.Storage.DataDir)
			ps.Location = loc

			g := gather.NewAlpacaIntraday(gather.AlpacaConfig{
				APIKey:          a.cfg.Alpaca.APIKey,
				APISecret:       a.cfg.Alpaca.APISecret,
				DataURL:         a.cfg.Alpaca.DataURL,
				Feed:            a.cfg.Alpaca.Feed,
				RateLimitPerMin: a.cfg.Alpaca.RateLimitPerMin,
				RateBurst:       a.cfg.Alpaca.RateBurst,
				WithTrades:      trades,
				Location:        loc,
			}, ps, catalog, strings.Split(symbols, ","), day)

			a.log.Info("fetching", "gatherer", g.Name(), "symbols", symbols, "date", day.Format("2006-01-02"))
			return g.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&symbols, "symbols", "s", "", "comma-separated symbols")
	cmd.Flags().StringVarP(&date, "date", "d", "", "trading date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&trades, "trades", false, "also fetch trades as ticks")
	cmd.Flags().StringVar(&timezone, "tz", "America/New_York", "timezone used to cut the trading day")
	_ = cmd.MarkFlagRequired("symbols")
	return cmd
}
