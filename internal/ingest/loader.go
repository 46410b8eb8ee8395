package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"intraview/internal/domain"
	"intraview/internal/market"
	"intraview/internal/store"
)

// DataStore is the storage the loader writes to.
type DataStore interface {
	store.BarStore
	store.TickStore
}

// LoadStats counts what a load wrote.
type LoadStats struct {
	Files   int `json:"files"`
	Failed  int `json:"failed"`
	Symbols int `json:"symbols"`
	Ticks   int `json:"ticks"`
	Bars    int `json:"bars"`
	Skipped int `json:"skipped_rows"`
}

func (s *LoadStats) add(o LoadStats) {
	s.Files += o.Files
	s.Failed += o.Failed
	s.Symbols += o.Symbols
	s.Ticks += o.Ticks
	s.Bars += o.Bars
	s.Skipped += o.Skipped
}

// Loader walks a source tree laid out as <expiry>/<trading date>/*.csv
// (plus a 5S/ directory of 5-second bars per trading date), writes ticks
// and bars to the store and records every symbol in the catalog.
type Loader struct {
	Store   DataStore
	Catalog store.Catalog // optional
	// Year is used for trading-date labels without one ("01 Aug").
	Year     int
	Workers  int
	Location *time.Location
	Logger   *slog.Logger
}

// NewLoader returns a loader for the current year in IST.
func NewLoader(st DataStore, cat store.Catalog, workers int, log *slog.Logger) *Loader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		Store:    st,
		Catalog:  cat,
		Year:     time.Now().In(market.IST).Year(),
		Workers:  workers,
		Location: market.IST,
		Logger:   log,
	}
}

// LoadTree loads every expiry directory under root.
func (l *Loader) LoadTree(ctx context.Context, root string) (LoadStats, error) {
	var total LoadStats
	expiries, err := subdirs(root)
	if err != nil {
		return total, err
	}
	for _, expiry := range expiries {
		days, err := subdirs(filepath.Join(root, expiry))
		if err != nil {
			return total, err
		}
		for _, day := range days {
			if strings.EqualFold(day, "5S") {
				continue
			}
			stats, err := l.LoadDay(ctx, expiry, day, filepath.Join(root, expiry, day))
			total.add(stats)
			if err != nil {
				return total, err
			}
		}
	}
	l.Logger.Info("load finished", "root", root, "files", total.Files, "failed", total.Failed,
		"symbols", total.Symbols, "ticks", total.Ticks, "bars", total.Bars)
	return total, nil
}

// LoadDay loads one trading-date directory. Tick and 1-minute files are
// loaded before the 5S directory so that bars derived from 5-second data
// win over bars derived from ticks.
func (l *Loader) LoadDay(ctx context.Context, expiry, tradingDate, dir string) (LoadStats, error) {
	day, err := market.ParseTradingDate(tradingDate, l.Year)
	if err != nil {
		l.Logger.Warn("skipping directory with unparseable date", "dir", dir, "error", err)
		return LoadStats{}, nil
	}

	var (
		stats LoadStats
		infos []domain.SymbolInfo
		mu    sync.Mutex
	)
	for _, sub := range []string{"", "5S"} {
		files, err := csvFiles(filepath.Join(dir, sub))
		if err != nil {
			return stats, err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.Workers)
		for _, path := range files {
			g.Go(func() error {
				info, ok := market.ParseSymbolFile(path)
				if !ok {
					return nil
				}
				info.Expiry = expiry
				info.TradingDate = tradingDate

				fileStats, err := l.LoadFile(gctx, path, &info, day)
				mu.Lock()
				defer mu.Unlock()
				stats.add(fileStats)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					stats.Failed++
					l.Logger.Warn("loading file failed", "file", path, "error", err)
					return nil
				}
				infos = append(infos, info)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
	}

	infos = mergeInfos(infos)
	stats.Symbols = len(infos)
	if l.Catalog != nil && len(infos) > 0 {
		if err := l.Catalog.UpsertSymbols(ctx, infos); err != nil {
			return stats, fmt.Errorf("updating catalog for %s/%s: %w", expiry, tradingDate, err)
		}
	}
	l.Logger.Info("loaded trading date", "expiry", expiry, "date", tradingDate,
		"symbols", stats.Symbols, "ticks", stats.Ticks, "bars", stats.Bars)
	return stats, nil
}

// LoadFile loads one CSV. Files with open/high/low/close/volume columns
// are stored as bars at the file's granularity, anything else as ticks
// plus 1-minute bars built from them. Coarser timeframes are resampled
// from the finest bars. info is updated with what was written.
func (l *Loader) LoadFile(ctx context.Context, path string, info *domain.SymbolInfo, day time.Time) (LoadStats, error) {
	stats := LoadStats{Files: 1}

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("reading header: %w", err)
	}

	layout := NewLayout(header)
	base := market.GranularityFromPath(path)
	if layout.HasOHLCV() && base == domain.GranularityTick {
		base = domain.Granularity1Min
	}
	p := &Parser{Layout: layout, Symbol: info.Symbol, Day: day, Location: l.loc(), Step: base.Duration()}

	if !layout.HasOHLCV() {
		ticks, skipped, err := readRows(r, p.ParseTickLine)
		stats.Skipped = skipped
		if err != nil {
			return stats, err
		}
		if len(ticks) == 0 {
			return stats, nil
		}
		if err := l.Store.WriteTicks(ctx, ticks); err != nil {
			return stats, err
		}
		stats.Ticks = len(ticks)

		bars, err := market.BarsFromTicks(ticks, domain.Granularity1Min, l.loc())
		if err != nil {
			return stats, err
		}
		n, frames, err := l.writeTimeframes(ctx, domain.Granularity1Min, bars)
		stats.Bars = n
		info.HasTick = true
		info.HasOHLCV = n > 0
		info.Timeframes = append([]string{string(domain.GranularityTick)}, frames...)
		return stats, err
	}

	bars, skipped, err := readRows(r, p.ParseOHLCVLine)
	stats.Skipped = skipped
	if err != nil {
		return stats, err
	}
	if len(bars) == 0 {
		return stats, nil
	}
	n, frames, err := l.writeTimeframes(ctx, base, bars)
	stats.Bars = n
	info.HasTick = false
	info.HasOHLCV = true
	info.Timeframes = frames
	return stats, err
}

// writeTimeframes stores bars at base and every coarser timeframe,
// returning the bar count and the granularities written.
func (l *Loader) writeTimeframes(ctx context.Context, base domain.Granularity, bars []domain.Bar) (int, []string, error) {
	if err := l.Store.WriteBars(ctx, base, bars); err != nil {
		return 0, nil, err
	}
	count := len(bars)
	frames := []string{string(base)}
	for _, g := range domain.Timeframes {
		if g.Duration() <= base.Duration() {
			continue
		}
		coarse, err := market.Resample(bars, g, l.loc())
		if err != nil {
			return count, frames, err
		}
		if err := l.Store.WriteBars(ctx, g, coarse); err != nil {
			return count, frames, err
		}
		count += len(coarse)
		frames = append(frames, string(g))
	}
	return count, frames, nil
}

func (l *Loader) loc() *time.Location {
	if l.Location == nil {
		return market.IST
	}
	return l.Location
}

// readRows parses every remaining record, skipping blank and malformed
// rows. Row numbers count data rows from zero.
func readRows[T any](r *csv.Reader, parse func([]string, int) (T, error)) ([]T, int, error) {
	var (
		out     []T
		skipped int
	)
	for row := 0; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return out, skipped, fmt.Errorf("reading csv: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			skipped++
			continue
		}
		v, err := parse(rec, row)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped, nil
}

// mergeInfos folds entries for the same symbol (a tick file and a 5S file
// for one strike) into one catalog row.
func mergeInfos(infos []domain.SymbolInfo) []domain.SymbolInfo {
	bySymbol := make(map[string]int, len(infos))
	var out []domain.SymbolInfo
	for _, info := range infos {
		i, ok := bySymbol[info.Symbol]
		if !ok {
			bySymbol[info.Symbol] = len(out)
			out = append(out, info)
			continue
		}
		cur := &out[i]
		cur.HasTick = cur.HasTick || info.HasTick
		cur.HasOHLCV = cur.HasOHLCV || info.HasOHLCV
		cur.Timeframes = unionFrames(cur.Timeframes, info.Timeframes)
		if cur.DataType.IsTick() != info.DataType.IsTick() && info.DataType.IsTick() {
			cur.DataType = info.DataType
			cur.Name = info.Name
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func unionFrames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, f := range append(append([]string{}, a...), b...) {
		seen[f] = true
	}
	var out []string
	for _, g := range append([]domain.Granularity{domain.GranularityTick, domain.Granularity5Sec}, domain.Timeframes...) {
		if seen[string(g)] {
			out = append(out, string(g))
		}
	}
	return out
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
