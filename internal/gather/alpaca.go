package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"intraview/internal/domain"
	"intraview/internal/market"
	"intraview/internal/store"
	"intraview/internal/util"
)

var _ Gatherer = (*AlpacaIntraday)(nil)

// MarketData is the subset of the Alpaca market-data client used here.
type MarketData interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
	GetMultiTrades(symbols []string, req marketdata.GetTradesRequest) (map[string][]marketdata.Trade, error)
}

// DataStore is where fetched bars and trades are written.
type DataStore interface {
	store.BarStore
	store.TickStore
}

// AlpacaConfig configures an AlpacaIntraday gatherer.
type AlpacaConfig struct {
	APIKey          string
	APISecret       string
	DataURL         string
	Feed            string // iex or sip
	BatchSize       int    // symbols per request
	RateLimitPerMin int
	RateBurst       int // tokens available at once; below 1 means 1
	WithTrades      bool
	Location        *time.Location
}

// AlpacaIntraday fetches one day of 1-minute bars (and optionally trades)
// for a symbol list, stores them with every coarser timeframe and records
// the symbols in the catalog.
type AlpacaIntraday struct {
	client  MarketData
	store   DataStore
	catalog store.Catalog
	symbols []string
	date    time.Time
	cfg     AlpacaConfig
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAlpacaIntraday builds a gatherer backed by the Alpaca REST client.
func NewAlpacaIntraday(cfg AlpacaConfig, st DataStore, cat store.Catalog, symbols []string, date time.Time) *AlpacaIntraday {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return NewAlpacaIntradayWithClient(marketdata.NewClient(opts), cfg, st, cat, symbols, date)
}

// NewAlpacaIntradayWithClient is NewAlpacaIntraday with an explicit client.
func NewAlpacaIntradayWithClient(client MarketData, cfg AlpacaConfig, st DataStore, cat store.Catalog, symbols []string, date time.Time) *AlpacaIntraday {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	if cfg.Location == nil {
		cfg.Location = market.IST
	}
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			upper = append(upper, s)
		}
	}
	var limiter *util.RateLimiter
	if cfg.RateLimitPerMin > 0 {
		limiter = util.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateBurst)
	}
	return &AlpacaIntraday{
		client:  client,
		store:   st,
		catalog: cat,
		symbols: upper,
		date:    date,
		cfg:     cfg,
		limiter: limiter,
		log:     slog.Default().With("gatherer", "alpaca-intraday"),
	}
}

// Name returns the gatherer identifier.
func (g *AlpacaIntraday) Name() string { return "alpaca-intraday" }

// Run fetches the configured day batch by batch.
func (g *AlpacaIntraday) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("alpaca-intraday: no symbols")
	}
	day := Day(g.date, g.cfg.Location)
	label := day.Start.Format("2006-01-02")
	runStart := time.Now()

	var (
		infos      []domain.SymbolInfo
		totalBars  int
		totalTicks int
	)
	for i := 0; i < len(g.symbols); i += g.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := g.symbols[i:min(i+g.cfg.BatchSize, len(g.symbols))]

		bars, err := g.fetchBars(ctx, batch, day)
		if err != nil {
			return err
		}
		var ticks []domain.Tick
		if g.cfg.WithTrades {
			if ticks, err = g.fetchTrades(ctx, batch, day); err != nil {
				return err
			}
		}

		counts, err := g.write(ctx, bars, ticks)
		if err != nil {
			return err
		}
		totalBars += len(bars)
		totalTicks += len(ticks)

		for _, sym := range batch {
			c, ok := counts[sym]
			if !ok {
				continue
			}
			info := domain.SymbolInfo{
				Symbol:      sym,
				Name:        sym + " Equity",
				DataType:    domain.DataTypeEquity,
				TradingDate: label,
				HasTick:     c.ticks > 0,
				HasOHLCV:    c.bars > 0,
			}
			if c.ticks > 0 {
				info.Timeframes = append(info.Timeframes, string(domain.GranularityTick))
			}
			if c.bars > 0 {
				for _, tf := range domain.Timeframes {
					info.Timeframes = append(info.Timeframes, string(tf))
				}
			}
			infos = append(infos, info)
		}

		g.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", i/g.cfg.BatchSize+1, (len(g.symbols)+g.cfg.BatchSize-1)/g.cfg.BatchSize),
			"bars", len(bars),
			"ticks", len(ticks),
			"elapsed", time.Since(runStart).Round(time.Millisecond),
		)
	}

	if g.catalog != nil && len(infos) > 0 {
		if err := g.catalog.UpsertSymbols(ctx, infos); err != nil {
			return fmt.Errorf("updating catalog: %w", err)
		}
	}
	g.log.Info("complete", "date", label, "symbols", len(infos), "bars", totalBars, "ticks", totalTicks)
	return nil
}

type symbolCounts struct{ bars, ticks int }

// write stores 1-minute bars plus every coarser timeframe and the trades.
func (g *AlpacaIntraday) write(ctx context.Context, bars []domain.Bar, ticks []domain.Tick) (map[string]symbolCounts, error) {
	counts := make(map[string]symbolCounts)
	bySymbol := make(map[string][]domain.Bar)
	for _, b := range bars {
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], b)
	}
	for _, t := range ticks {
		c := counts[t.Symbol]
		c.ticks++
		counts[t.Symbol] = c
	}

	if len(bars) > 0 {
		if err := g.store.WriteBars(ctx, domain.Granularity1Min, bars); err != nil {
			return nil, fmt.Errorf("writing 1min bars: %w", err)
		}
	}
	for sym, sb := range bySymbol {
		c := counts[sym]
		c.bars = len(sb)
		counts[sym] = c
		for _, tf := range domain.Timeframes[1:] {
			coarse, err := market.Resample(sb, tf, g.cfg.Location)
			if err != nil {
				return nil, err
			}
			if err := g.store.WriteBars(ctx, tf, coarse); err != nil {
				return nil, fmt.Errorf("writing %s bars for %s: %w", tf, sym, err)
			}
		}
	}
	if len(ticks) > 0 {
		if err := g.store.WriteTicks(ctx, ticks); err != nil {
			return nil, fmt.Errorf("writing trades: %w", err)
		}
	}
	return counts, nil
}

// fetchBars fetches 1-minute bars for multiple symbols in a single call.
func (g *AlpacaIntraday) fetchBars(ctx context.Context, symbols []string, day DateRange) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar
	err := g.call(ctx, func() error {
		var err error
		multiBars, err = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneMin,
			Start:     day.Start,
			End:       day.End,
			Feed:      marketdata.Feed(g.cfg.Feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp.In(g.cfg.Location),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// fetchTrades fetches trades for multiple symbols in a single call.
func (g *AlpacaIntraday) fetchTrades(ctx context.Context, symbols []string, day DateRange) ([]domain.Tick, error) {
	var multiTrades map[string][]marketdata.Trade
	err := g.call(ctx, func() error {
		var err error
		multiTrades, err = g.client.GetMultiTrades(symbols, marketdata.GetTradesRequest{
			Start: day.Start,
			End:   day.End,
			Feed:  marketdata.Feed(g.cfg.Feed),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiTrades: %w", err)
	}

	var ticks []domain.Tick
	for symbol, trades := range multiTrades {
		for _, tr := range trades {
			ticks = append(ticks, domain.Tick{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: tr.Timestamp.In(g.cfg.Location),
				Price:     tr.Price,
				Qty:       int64(tr.Size),
				Turnover:  tr.Price * float64(tr.Size),
			})
		}
	}
	return ticks, nil
}

// call waits for the rate limiter and retries transient failures.
func (g *AlpacaIntraday) call(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, 3, time.Second, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		return fn()
	})
}
