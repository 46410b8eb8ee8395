package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"intraview/internal/domain"
	"intraview/internal/market"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ TickStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and TickStore using one Parquet file per
// symbol and trading day. Days are cut in the store's location (IST).
type ParquetStore struct {
	DataDir  string
	Location *time.Location
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Location: market.IST}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for OHLCV bars.
type BarRecord struct {
	Symbol       string  `parquet:"symbol"`
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open         float64 `parquet:"open"`
	High         float64 `parquet:"high"`
	Low          float64 `parquet:"low"`
	Close        float64 `parquet:"close"`
	Volume       int64   `parquet:"volume"`
	OpenInterest int64   `parquet:"oi"`
	TradeCount   int64   `parquet:"trade_count"`
	VWAP         float64 `parquet:"vwap"`
}

// TickRecord is the Parquet schema for tick data.
type TickRecord struct {
	Symbol      string  `parquet:"symbol"`
	Timestamp   int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Price       float64 `parquet:"price"`
	Qty         int64   `parquet:"qty"`
	Turnover    float64 `parquet:"trnvr"`
	CumTurnover float64 `parquet:"cum_trnvr"`
}

func barRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:       strings.ToUpper(b.Symbol),
		Timestamp:    b.Timestamp.UnixMilli(),
		Open:         b.Open,
		High:         b.High,
		Low:          b.Low,
		Close:        b.Close,
		Volume:       b.Volume,
		OpenInterest: b.OpenInterest,
		TradeCount:   b.TradeCount,
		VWAP:         b.VWAP,
	}
}

func (r BarRecord) bar(loc *time.Location) domain.Bar {
	return domain.Bar{
		Symbol:       r.Symbol,
		Timestamp:    time.UnixMilli(r.Timestamp).In(loc),
		Open:         r.Open,
		High:         r.High,
		Low:          r.Low,
		Close:        r.Close,
		Volume:       r.Volume,
		OpenInterest: r.OpenInterest,
		TradeCount:   r.TradeCount,
		VWAP:         r.VWAP,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars grouped by symbol and day to:
//
//	<DataDir>/ohlcv/<granularity>/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteBars(ctx context.Context, g domain.Granularity, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if g == domain.GranularityTick || g == "" {
		return fmt.Errorf("writing bars: invalid granularity %q", g)
	}

	type key struct {
		symbol string
		date   string
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), date: s.dateOf(b.Timestamp)}
		groups[k] = append(groups[k], barRecord(b))
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.barPath(k.symbol, g, k.date)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%s/%s: %w", g, k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadBars reads bars for symbol at granularity g within [start, end].
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, g domain.Granularity, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	dates, err := s.ListDates(ctx, symbol, g)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, date := range s.datesInRange(dates, start, end) {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, g, date))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%s/%s: %w", g, symbol, date, err)
		}
		for _, r := range records {
			b := r.bar(s.loc())
			if inRange(b.Timestamp, start, end) {
				bars = append(bars, b)
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bars at granularity g.
func (s *ParquetStore) ListSymbols(_ context.Context, g domain.Granularity) ([]string, error) {
	dir := filepath.Join(s.DataDir, "ohlcv", string(g))
	if g == domain.GranularityTick {
		dir = filepath.Join(s.DataDir, "ticks")
	}
	return listSubdirs(dir)
}

// ---------------------------------------------------------------------------
// TickStore implementation
// ---------------------------------------------------------------------------

// WriteTicks writes ticks grouped by symbol and day to:
//
//	<DataDir>/ticks/<SYMBOL>/<YYYY-MM-DD>.parquet
//
// Cumulative turnover is recomputed over each day in timestamp order.
func (s *ParquetStore) WriteTicks(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	type key struct {
		symbol string
		date   string
	}
	groups := make(map[key][]TickRecord)
	for _, t := range ticks {
		k := key{symbol: strings.ToUpper(t.Symbol), date: s.dateOf(t.Timestamp)}
		groups[k] = append(groups[k], TickRecord{
			Symbol:    k.symbol,
			Timestamp: t.Timestamp.UnixMilli(),
			Price:     t.Price,
			Qty:       t.Qty,
			Turnover:  t.Turnover,
		})
	}

	for k, records := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Timestamp < records[j].Timestamp
		})
		var cum float64
		for i := range records {
			cum += records[i].Turnover
			records[i].CumTurnover = cum
		}
		if err := writeParquetFile(s.tickPath(k.symbol, k.date), records); err != nil {
			return fmt.Errorf("writing ticks for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadTicks reads ticks for symbol within [start, end].
func (s *ParquetStore) ReadTicks(ctx context.Context, symbol string, start, end time.Time) ([]domain.Tick, error) {
	symbol = strings.ToUpper(symbol)
	dates, err := s.ListDates(ctx, symbol, domain.GranularityTick)
	if err != nil {
		return nil, err
	}

	var ticks []domain.Tick
	for _, date := range s.datesInRange(dates, start, end) {
		records, err := readParquetFile[TickRecord](s.tickPath(symbol, date))
		if err != nil {
			return nil, fmt.Errorf("reading ticks for %s/%s: %w", symbol, date, err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).In(s.loc())
			if !inRange(ts, start, end) {
				continue
			}
			ticks = append(ticks, domain.Tick{
				Symbol:             r.Symbol,
				Timestamp:          ts,
				Price:              r.Price,
				Qty:                r.Qty,
				Turnover:           r.Turnover,
				CumulativeTurnover: r.CumTurnover,
			})
		}
	}
	return ticks, nil
}

// ListDates returns the trading days (YYYY-MM-DD, ascending) stored for
// symbol at granularity g; GranularityTick lists tick days.
func (s *ParquetStore) ListDates(_ context.Context, symbol string, g domain.Granularity) ([]string, error) {
	dir := filepath.Dir(s.tickPath(symbol, "x"))
	if g != domain.GranularityTick {
		dir = filepath.Dir(s.barPath(symbol, g, "x"))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(name, ".parquet"))
	}
	sort.Strings(dates)
	return dates, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/ohlcv/<granularity>/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) barPath(symbol string, g domain.Granularity, date string) string {
	return filepath.Join(s.DataDir, "ohlcv", string(g), strings.ToUpper(symbol), date+".parquet")
}

// tickPath returns the filesystem path for a tick Parquet file.
// Layout: <dataDir>/ticks/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) tickPath(symbol, date string) string {
	return filepath.Join(s.DataDir, "ticks", strings.ToUpper(symbol), date+".parquet")
}

func (s *ParquetStore) loc() *time.Location {
	if s.Location == nil {
		return market.IST
	}
	return s.Location
}

func (s *ParquetStore) dateOf(t time.Time) string {
	return t.In(s.loc()).Format("2006-01-02")
}

func (s *ParquetStore) datesInRange(dates []string, start, end time.Time) []string {
	var out []string
	for _, d := range dates {
		if !start.IsZero() && d < s.dateOf(start) {
			continue
		}
		if !end.IsZero() && d > s.dateOf(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func inRange(ts, start, end time.Time) bool {
	if !start.IsZero() && ts.Before(start) {
		return false
	}
	if !end.IsZero() && ts.After(end) {
		return false
	}
	return true
}

func listSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
