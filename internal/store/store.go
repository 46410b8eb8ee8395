// Package store defines storage interfaces for intraday market data and the
// symbol catalog, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"intraview/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bars per granularity.
type BarStore interface {
	// WriteBars merges bars into storage, replacing bars with the same
	// symbol and timestamp.
	WriteBars(ctx context.Context, g domain.Granularity, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end], oldest first.
	// A zero start or end leaves that side unbounded.
	ReadBars(ctx context.Context, symbol string, g domain.Granularity, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns the symbols that have bars at granularity g.
	ListSymbols(ctx context.Context, g domain.Granularity) ([]string, error)
}

// TickStore persists and retrieves tick prints.
type TickStore interface {
	// WriteTicks replaces the stored ticks of every (symbol, day) present
	// in ticks.
	WriteTicks(ctx context.Context, ticks []domain.Tick) error

	// ReadTicks returns ticks for symbol within [start, end], oldest first.
	ReadTicks(ctx context.Context, symbol string, start, end time.Time) ([]domain.Tick, error)
}

// Catalog indexes which symbols exist for which expiry and trading date.
type Catalog interface {
	UpsertSymbols(ctx context.Context, infos []domain.SymbolInfo) error
	ListExpiries(ctx context.Context) ([]string, error)
	ListTradingDates(ctx context.Context, expiry string) ([]string, error)
	ListSymbolsForDate(ctx context.Context, tradingDate string) ([]domain.SymbolInfo, error)
	GetSymbol(ctx context.Context, symbol, tradingDate string) (*domain.SymbolInfo, error)
}

// QueryRecord is one executed explorer query.
type QueryRecord struct {
	ID         string    `json:"id"`
	File       string    `json:"file"`
	SQL        string    `json:"sql"`
	RowCount   int       `json:"row_count"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// QueryHistory records explorer queries.
type QueryHistory interface {
	RecordQuery(ctx context.Context, rec QueryRecord) (QueryRecord, error)
	RecentQueries(ctx context.Context, limit int) ([]QueryRecord, error)
}
