package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraview/internal/domain"
)

func TestFormatInt(t *testing.T) {
	cases := map[int64]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -12345: "-12,345"}
	for in, want := range cases {
		assert.Equal(t, want, FormatInt(in))
	}
}

func TestFormatVolume(t *testing.T) {
	assert.Equal(t, "950", FormatVolume(950))
	assert.Equal(t, "1.5K", FormatVolume(1500))
	assert.Equal(t, "2.5M", FormatVolume(2_500_000))
	assert.Equal(t, "3.0B", FormatVolume(3e9))
	assert.Equal(t, "-1.5K", FormatVolume(-1500))
}

func TestFormatPriceAndChange(t *testing.T) {
	assert.Equal(t, "-", FormatPrice(0))
	assert.Equal(t, "24012.50", FormatPrice(24012.5))
	assert.Equal(t, 0.0, PercentChange(0, 10))
	assert.InDelta(t, 10.0, PercentChange(100, 110), 1e-9)
	assert.Equal(t, "+10.00%", FormatChange(10))
	assert.Equal(t, "-0.50%", FormatChange(-0.5))
}

func TestParseTradingDate(t *testing.T) {
	got, err := ParseTradingDate("01 Aug", 2025)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, IST)))

	got, err = ParseTradingDate("07 Aug Exp", 2025)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Day())

	got, err = ParseTradingDate("2024-08-01", 1999)
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())

	_, err = ParseTradingDate("someday", 2025)
	assert.Error(t, err)

	assert.Equal(t, "01 Aug", TradingDateLabel(time.Date(2025, 8, 1, 0, 0, 0, 0, IST)))
}

func TestSummarize(t *testing.T) {
	start := time.Date(2024, 8, 1, 9, 15, 0, 0, IST)
	ticks := []domain.Tick{
		{Timestamp: start.Add(time.Minute), Price: 110, Qty: 5, Turnover: 550},
		{Timestamp: start, Price: 100, Qty: 10, Turnover: 1000},
		{Timestamp: start.Add(2 * time.Minute), Price: 90, Qty: 1, Turnover: 90},
	}
	sum := Summarize("24000CE", "2024-08-01", ticks, nil)
	assert.Equal(t, 3, sum.TickCount)
	assert.Equal(t, 100.0, sum.Open)
	assert.Equal(t, 110.0, sum.High)
	assert.Equal(t, 90.0, sum.Low)
	assert.Equal(t, 90.0, sum.Close)
	assert.Equal(t, int64(16), sum.Volume)
	assert.Equal(t, 1640.0, sum.Turnover)
	assert.InDelta(t, -10.0, sum.ChangePct, 1e-9)
	assert.True(t, sum.FirstTime.Equal(start))

	bars := minuteBars(start, 3)
	sum = Summarize("ABC", "2024-08-01", nil, bars)
	assert.Equal(t, 3, sum.BarCount)
	assert.Equal(t, 100.0, sum.Open)
	assert.Equal(t, 102.25, sum.Close)

	empty := Summarize("ABC", "2024-08-01", nil, nil)
	assert.Zero(t, empty.Open)
}
