package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"intraview/internal/domain"
	"intraview/internal/market"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time interface checks.
var _ Catalog = (*SQLiteStore)(nil)
var _ QueryHistory = (*SQLiteStore)(nil)

// SQLiteStore implements Catalog and QueryHistory backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies
// pending migrations and returns a ready-to-use SQLiteStore. Use ":memory:"
// for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", dbPath, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Catalog implementation
// ---------------------------------------------------------------------------

// UpsertSymbols inserts or replaces catalog rows keyed by (symbol,
// trading_date) in one transaction.
func (s *SQLiteStore) UpsertSymbols(ctx context.Context, infos []domain.SymbolInfo) error {
	if len(infos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (symbol, trading_date, expiry, name, type, strike, option_type,
			has_tick, has_ohlcv, timeframes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, trading_date) DO UPDATE SET
			expiry = excluded.expiry,
			name = excluded.name,
			type = excluded.type,
			strike = excluded.strike,
			option_type = excluded.option_type,
			has_tick = symbols.has_tick OR excluded.has_tick,
			has_ohlcv = symbols.has_ohlcv OR excluded.has_ohlcv,
			timeframes = excluded.timeframes,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, info := range infos {
		var strike sql.NullFloat64
		if info.Strike != 0 {
			strike = sql.NullFloat64{Float64: info.Strike, Valid: true}
		}
		var opt sql.NullString
		if info.OptionType != "" {
			opt = sql.NullString{String: string(info.OptionType), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			info.Symbol, info.TradingDate, info.Expiry, info.Name, string(info.DataType),
			strike, opt, info.HasTick, info.HasOHLCV, strings.Join(info.Timeframes, ","), now,
		); err != nil {
			return fmt.Errorf("upserting symbol %s/%s: %w", info.Symbol, info.TradingDate, err)
		}
	}
	return tx.Commit()
}

// ListExpiries returns the distinct expiry labels in calendar order.
func (s *SQLiteStore) ListExpiries(ctx context.Context) ([]string, error) {
	labels, err := s.queryStrings(ctx, `SELECT DISTINCT expiry FROM symbols WHERE expiry != ''`)
	if err != nil {
		return nil, fmt.Errorf("listing expiries: %w", err)
	}
	sortLabels(labels)
	return labels, nil
}

// ListTradingDates returns the trading dates recorded for an expiry in
// calendar order.
func (s *SQLiteStore) ListTradingDates(ctx context.Context, expiry string) ([]string, error) {
	labels, err := s.queryStrings(ctx, `SELECT DISTINCT trading_date FROM symbols WHERE expiry = ?`, expiry)
	if err != nil {
		return nil, fmt.Errorf("listing trading dates for %s: %w", expiry, err)
	}
	sortLabels(labels)
	return labels, nil
}

// ListSymbolsForDate returns every symbol recorded for a trading date,
// ordered by type then symbol.
func (s *SQLiteStore) ListSymbolsForDate(ctx context.Context, tradingDate string) ([]domain.SymbolInfo, error) {
	rows, err := s.db.QueryContext(ctx, selectSymbols+` WHERE trading_date = ? ORDER BY type, symbol`, tradingDate)
	if err != nil {
		return nil, fmt.Errorf("listing symbols for %s: %w", tradingDate, err)
	}
	defer rows.Close()

	var infos []domain.SymbolInfo
	for rows.Next() {
		info, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// GetSymbol returns one catalog row. An empty tradingDate picks the most
// recently updated row for the symbol. ErrNotFound when absent.
func (s *SQLiteStore) GetSymbol(ctx context.Context, symbol, tradingDate string) (*domain.SymbolInfo, error) {
	var row *sql.Row
	if tradingDate == "" {
		row = s.db.QueryRowContext(ctx, selectSymbols+` WHERE symbol = ? ORDER BY updated_at DESC LIMIT 1`, symbol)
	} else {
		row = s.db.QueryRowContext(ctx, selectSymbols+` WHERE symbol = ? AND trading_date = ?`, symbol, tradingDate)
	}
	info, err := scanSymbol(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("symbol %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

const selectSymbols = `SELECT symbol, trading_date, expiry, name, type, strike, option_type,
	has_tick, has_ohlcv, timeframes FROM symbols`

type scanner interface {
	Scan(dest ...any) error
}

func scanSymbol(sc scanner) (domain.SymbolInfo, error) {
	var (
		info       domain.SymbolInfo
		typ        string
		strike     sql.NullFloat64
		opt        sql.NullString
		timeframes string
	)
	if err := sc.Scan(&info.Symbol, &info.TradingDate, &info.Expiry, &info.Name, &typ,
		&strike, &opt, &info.HasTick, &info.HasOHLCV, &timeframes); err != nil {
		return domain.SymbolInfo{}, err
	}
	info.DataType = domain.DataType(typ)
	info.Strike = strike.Float64
	info.OptionType = domain.OptionType(opt.String)
	if timeframes != "" {
		info.Timeframes = strings.Split(timeframes, ",")
	}
	return info, nil
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// sortLabels orders date labels ("01 Aug", "07 Aug Exp", "2024-08-01")
// chronologically within a year, falling back to string order for labels
// that do not parse.
func sortLabels(labels []string) {
	key := func(l string) (time.Time, bool) {
		t, err := market.ParseTradingDate(l, 2000)
		return t, err == nil
	}
	sort.SliceStable(labels, func(i, j int) bool {
		ti, oki := key(labels[i])
		tj, okj := key(labels[j])
		switch {
		case oki && okj && !ti.Equal(tj):
			return ti.Before(tj)
		case oki != okj:
			return oki
		default:
			return labels[i] < labels[j]
		}
	})
}

// ---------------------------------------------------------------------------
// QueryHistory implementation
// ---------------------------------------------------------------------------

// RecordQuery stores rec, assigning an ID and timestamp when missing.
func (s *SQLiteStore) RecordQuery(ctx context.Context, rec QueryRecord) (QueryRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_history (id, file, sql, row_count, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.File, rec.SQL, rec.RowCount, rec.DurationMS, rec.Error,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return QueryRecord{}, fmt.Errorf("recording query: %w", err)
	}
	return rec, nil
}

// RecentQueries returns up to limit queries, newest first.
func (s *SQLiteStore) RecentQueries(ctx context.Context, limit int) ([]QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, sql, row_count, duration_ms, error, created_at
		 FROM query_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent queries: %w", err)
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var (
			rec     QueryRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.File, &rec.SQL, &rec.RowCount, &rec.DurationMS, &rec.Error, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
