package gather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"intraview/internal/domain"
	"intraview/internal/market"
	"intraview/internal/store"
)

type fakeMarketData struct {
	bars      map[string][]marketdata.Bar
	trades    map[string][]marketdata.Trade
	failFirst int
	calls     int
	requests  []marketdata.GetBarsRequest
}

func (f *fakeMarketData) GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.calls <= f.failFirst {
		return nil, errors.New("503 service unavailable")
	}
	out := make(map[string][]marketdata.Bar)
	for _, s := range symbols {
		if b, ok := f.bars[s]; ok {
			out[s] = b
		}
	}
	return out, nil
}

func (f *fakeMarketData) GetMultiTrades(symbols []string, _ marketdata.GetTradesRequest) (map[string][]marketdata.Trade, error) {
	out := make(map[string][]marketdata.Trade)
	for _, s := range symbols {
		if tr, ok := f.trades[s]; ok {
			out[s] = tr
		}
	}
	return out, nil
}

func TestAlpacaIntradayName(t *testing.T) {
	g := NewAlpacaIntraday(AlpacaConfig{APIKey: "key", APISecret: "secret"}, nil, nil, []string{"aapl"}, time.Now())
	if got := g.Name(); got != "alpaca-intraday" {
		t.Errorf("Name() = %q, want %q", got, "alpaca-intraday")
	}
}

func TestAlpacaIntradayRateBurst(t *testing.T) {
	g := NewAlpacaIntradayWithClient(&fakeMarketData{}, AlpacaConfig{RateLimitPerMin: 60, RateBurst: 4}, nil, nil, []string{"aapl"}, time.Now())
	if g.limiter == nil {
		t.Fatal("limiter not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 4; i++ {
		if err := g.limiter.Wait(ctx); err != nil {
			t.Fatalf("Wait %d within burst: %v", i, err)
		}
	}

	g = NewAlpacaIntradayWithClient(&fakeMarketData{}, AlpacaConfig{}, nil, nil, []string{"aapl"}, time.Now())
	if g.limiter != nil {
		t.Error("limiter configured without a rate")
	}
}

func TestAlpacaIntradayRun(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 8, 1, 0, 0, 0, 0, market.IST)
	open := day.Add(9*time.Hour + 15*time.Minute)

	fake := &fakeMarketData{
		failFirst: 1,
		bars: map[string][]marketdata.Bar{
			"INFY": {
				{Timestamp: open, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100, TradeCount: 5, VWAP: 10.2},
				{Timestamp: open.Add(time.Minute), Open: 10.5, High: 12, Low: 10, Close: 11.5, Volume: 200, TradeCount: 7, VWAP: 11},
			},
		},
		trades: map[string][]marketdata.Trade{
			"INFY": {
				{Timestamp: open.Add(time.Second), Price: 10.1, Size: 10},
				{Timestamp: open.Add(2 * time.Second), Price: 10.2, Size: 5},
			},
		},
	}

	ps := store.NewParquetStore(t.TempDir())
	cat, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer cat.Close()

	g := NewAlpacaIntradayWithClient(fake, AlpacaConfig{BatchSize: 1, WithTrades: true}, ps, cat, []string{"infy", "tcs"}, day)
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fake.calls != 3 {
		t.Errorf("GetMultiBars calls = %d, want 3 (one retry, two batches)", fake.calls)
	}
	if fake.requests[0].TimeFrame != marketdata.OneMin {
		t.Errorf("TimeFrame = %v, want OneMin", fake.requests[0].TimeFrame)
	}
	if !fake.requests[0].Start.Equal(day) || !fake.requests[0].End.Equal(day.Add(24*time.Hour)) {
		t.Errorf("request window = %v..%v", fake.requests[0].Start, fake.requests[0].End)
	}

	bars, err := ps.ReadBars(ctx, "INFY", domain.Granularity1Min, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d 1min bars, want 2", len(bars))
	}
	five, err := ps.ReadBars(ctx, "INFY", domain.Granularity5Min, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars 5min: %v", err)
	}
	if len(five) != 1 || five[0].Volume != 300 || five[0].High != 12 {
		t.Errorf("5min bars = %+v", five)
	}

	ticks, err := ps.ReadTicks(ctx, "INFY", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(ticks) != 2 {
		t.Errorf("got %d ticks, want 2", len(ticks))
	}

	syms, err := cat.ListSymbolsForDate(ctx, "2024-08-01")
	if err != nil {
		t.Fatalf("ListSymbolsForDate: %v", err)
	}
	if len(syms) != 1 || syms[0].Symbol != "INFY" || !syms[0].HasTick || !syms[0].HasOHLCV {
		t.Errorf("catalog = %+v", syms)
	}
}

func TestAlpacaIntradayNoSymbols(t *testing.T) {
	g := NewAlpacaIntradayWithClient(&fakeMarketData{}, AlpacaConfig{}, nil, nil, []string{" "}, time.Now())
	if err := g.Run(context.Background()); err == nil {
		t.Error("expected error for empty symbol list")
	}
}

func TestDay(t *testing.T) {
	r := Day(time.Date(2024, 8, 1, 22, 30, 0, 0, time.UTC), market.IST)
	want := time.Date(2024, 8, 2, 0, 0, 0, 0, market.IST)
	if !r.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", r.Start, want)
	}
	if r.End.Sub(r.Start) != 24*time.Hour {
		t.Errorf("window = %v", r.End.Sub(r.Start))
	}
}
