package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraview/internal/domain"
	"intraview/internal/store"
)

func newTestLoader(t *testing.T) (*Loader, *store.ParquetStore, *store.SQLiteStore) {
	t.Helper()
	ps := store.NewParquetStore(t.TempDir())
	cat, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	l := NewLoader(ps, cat, 2, nil)
	l.Year = 2024
	return l, ps, cat
}

func writeSourceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	day := filepath.Join(root, "07 Aug Exp", "01 Aug")
	writeFile(t, filepath.Join(day, "24000CE.csv"),
		"timestamp,price,qty\n"+
			"2024-08-01 09:15:00,100,50\n"+
			"2024-08-01 09:15:30,101,25\n"+
			"2024-08-01 09:16:10,99.5,10\n"+
			"bad,row,x\n")
	writeFile(t, filepath.Join(day, "RELIANCE_EQ.csv"),
		"Time,Open,High,Low,Close,Volume\n"+
			"09:15:00,2900,2905,2899,2904,1000\n"+
			"09:16:00,2904,2910,2903,2908,1500\n"+
			"09:20:00,2908,2909,2901,2902,800\n")
	writeFile(t, filepath.Join(day, "5S", "nse_nifty2580724000ce_min.csv"),
		"timestamp,open,high,low,close,volume\n"+
			"2024-08-01 09:15:00,100,101,99,100.5,10\n"+
			"2024-08-01 09:15:05,100.5,102,100,101.5,20\n")
	writeFile(t, filepath.Join(day, "readme.txt"), "not data")
	return root
}

func TestLoadTree(t *testing.T) {
	l, ps, cat := newTestLoader(t)
	ctx := context.Background()

	stats, err := l.LoadTree(ctx, writeSourceTree(t))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 2, stats.Symbols)
	assert.Equal(t, 3, stats.Ticks)
	assert.Equal(t, 1, stats.Skipped)

	ticks, err := ps.ReadTicks(ctx, "24000CE", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, 5000.0, ticks[0].Turnover)
	assert.Equal(t, 8520.0, ticks[2].CumulativeTurnover)

	fine, err := ps.ReadBars(ctx, "24000CE", domain.Granularity5Sec, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, fine, 2)

	eq1, err := ps.ReadBars(ctx, "RELIANCE", domain.Granularity1Min, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, eq1, 3)
	eq5, err := ps.ReadBars(ctx, "RELIANCE", domain.Granularity5Min, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, eq5, 2)
	assert.Equal(t, 2900.0, eq5[0].Open)
	assert.Equal(t, 2910.0, eq5[0].High)
	assert.Equal(t, 2908.0, eq5[0].Close)
	assert.Equal(t, int64(2500), eq5[0].Volume)
	daily, err := ps.ReadBars(ctx, "RELIANCE", domain.GranularityDaily, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, daily, 1)

	expiries, err := cat.ListExpiries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"07 Aug Exp"}, expiries)

	syms, err := cat.ListSymbolsForDate(ctx, "01 Aug")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	byName := map[string]domain.SymbolInfo{}
	for _, s := range syms {
		byName[s.Symbol] = s
	}

	opt := byName["24000CE"]
	assert.Equal(t, domain.DataTypeFNOTick, opt.DataType)
	assert.True(t, opt.HasTick)
	assert.True(t, opt.HasOHLCV)
	assert.Equal(t, 24000.0, opt.Strike)
	assert.Equal(t, domain.OptionCall, opt.OptionType)
	assert.Equal(t, []string{"tick", "5s", "1min", "5min", "15min", "1hour", "daily"}, opt.Timeframes)

	eq := byName["RELIANCE"]
	assert.Equal(t, domain.DataTypeEquity, eq.DataType)
	assert.False(t, eq.HasTick)
	assert.True(t, eq.HasOHLCV)
	assert.Equal(t, "07 Aug Exp", eq.Expiry)
}

func TestLoadDaySkipsUnparseableDate(t *testing.T) {
	l, _, _ := newTestLoader(t)
	stats, err := l.LoadDay(context.Background(), "exp", "not a date", t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, stats.Files)
}

func TestMergeInfos(t *testing.T) {
	merged := mergeInfos([]domain.SymbolInfo{
		{Symbol: "B", DataType: domain.DataTypeFNOOHLCV, HasOHLCV: true, Timeframes: []string{"5s", "1min"}},
		{Symbol: "A", DataType: domain.DataTypeEquity, HasTick: true, Timeframes: []string{"tick"}},
		{Symbol: "B", DataType: domain.DataTypeFNOTick, HasTick: true, Timeframes: []string{"tick", "1min"}},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "A", merged[0].Symbol)
	b := merged[1]
	assert.Equal(t, domain.DataTypeFNOTick, b.DataType)
	assert.True(t, b.HasTick)
	assert.True(t, b.HasOHLCV)
	assert.Equal(t, []string{"tick", "5s", "1min"}, b.Timeframes)
}
