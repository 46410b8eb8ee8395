package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"intraview/internal/domain"
	"intraview/internal/market"
	"intraview/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	priceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	gainStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

func newSummaryCmd(a *app) *cobra.Command {
	var (
		date string
		year int
	)
	cmd := &cobra.Command{
		Use:   "summary <symbol>",
		Short: "Summarise one symbol's trading day",
		Args:  cobra.ExactArgs(1),
		Example: `  intraview summary 24000CE --date "01 Aug" --year 2024
  intraview summary RELIANCE --date 2024-08-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(args[0])
			if year == 0 {
				year = time.Now().In(market.IST).Year()
			}
			now := time.Now().In(market.IST)
			day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, market.IST)
			if date != "" {
				var err error
				if day, err = market.ParseTradingDate(date, year); err != nil {
					return err
				}
			}
			end := day.Add(24*time.Hour - time.Nanosecond)

			ps := store.NewParquetStore(a.cfg.Storage.DataDir)
			ticks, err := ps.ReadTicks(cmd.Context(), symbol, day, end)
			if err != nil {
				return err
			}
			bars, err := ps.ReadBars(cmd.Context(), symbol, domain.Granularity1Min, day, end)
			if err != nil {
				return err
			}
			if len(ticks) == 0 && len(bars) == 0 {
				return fmt.Errorf("no data for %s on %s", symbol, day.Format("2006-01-02"))
			}

			sum := market.Summarize(symbol, day.Format("2006-01-02"), ticks, bars)
			if _, err := os.Stat(a.cfg.Storage.SQLitePath); err == nil {
				catalog, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
				if err != nil {
					return err
				}
				if info, err := catalog.GetSymbol(cmd.Context(), symbol, market.TradingDateLabel(day)); err == nil {
					sum.Timeframes = info.Timeframes
				}
				catalog.Close()
			}
			session := market.NewNSESession().SessionFor(day)
			printSummary(cmd.OutOrStdout(), sum, session)
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", `trading date ("2024-08-01" or "01 Aug")`)
	cmd.Flags().IntVar(&year, "year", 0, "year for labels without one (default current year)")
	return cmd
}

func printSummary(w io.Writer, s domain.DataSummary, session domain.TradingSession) {
	change := gainStyle
	if s.ChangePct < 0 {
		change = lossStyle
	}
	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	lines := []string{
		row("open", priceStyle.Render(market.FormatPrice(s.Open))),
		row("high", priceStyle.Render(market.FormatPrice(s.High))),
		row("low", priceStyle.Render(market.FormatPrice(s.Low))),
		row("close", priceStyle.Render(market.FormatPrice(s.Close))+"  "+change.Render(market.FormatChange(s.ChangePct))),
		row("volume", market.FormatVolume(float64(s.Volume))),
		row("turnover", market.FormatVolume(s.Turnover)),
		row("ticks", market.FormatInt(int64(s.TickCount))),
		row("bars", market.FormatInt(int64(s.BarCount))),
		row("first", market.FormatTimestamp(s.FirstTime)),
		row("last", market.FormatTimestamp(s.LastTime)),
		row("session", dimStyle.Render(fmt.Sprintf("%s - %s",
			session.Open.Format("15:04"), session.Close.Format("15:04")))),
	}
	if len(s.Timeframes) > 0 {
		lines = append(lines, row("timeframes", dimStyle.Render(strings.Join(s.Timeframes, " "))))
	}

	header := titleStyle.Render(s.Symbol) + " " + dimStyle.Render(s.Date)
	fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, header, boxStyle.Render(strings.Join(lines, "\n"))))
}
