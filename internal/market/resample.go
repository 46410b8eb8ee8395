package market

import (
	"fmt"
	"sort"
	"time"

	"intraview/internal/domain"
)

// Resample aggregates finer bars into buckets of granularity g aligned to
// the wall clock of loc (a 1hour bucket starts on the hour, a daily bucket
// at local midnight). Open is the first bar's open, high the max, low the
// min, close the last close, volume and trade count are summed and open
// interest is the last value. Empty buckets are skipped.
func Resample(bars []domain.Bar, g domain.Granularity, loc *time.Location) ([]domain.Bar, error) {
	width := g.Duration()
	if width <= 0 {
		return nil, fmt.Errorf("cannot resample to %q", g)
	}
	if loc == nil {
		loc = IST
	}
	if len(bars) == 0 {
		return nil, nil
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		out      []domain.Bar
		cur      domain.Bar
		curStart time.Time
		notional float64
	)
	flush := func() {
		if cur.Volume > 0 && notional > 0 {
			cur.VWAP = notional / float64(cur.Volume)
		}
		out = append(out, cur)
	}
	for i, b := range sorted {
		start := BucketStart(b.Timestamp, width, loc)
		if i == 0 || !start.Equal(curStart) {
			if i > 0 {
				flush()
			}
			curStart = start
			notional = 0
			cur = domain.Bar{
				Symbol:    b.Symbol,
				Timestamp: start,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
			}
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.TradeCount += b.TradeCount
		cur.OpenInterest = b.OpenInterest
		notional += b.VWAP * float64(b.Volume)
	}
	flush()
	return out, nil
}

// BucketStart returns the start of the width-sized bucket containing t,
// measured from local midnight in loc.
func BucketStart(t time.Time, width time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if width >= 24*time.Hour {
		return midnight
	}
	offset := local.Sub(midnight)
	return midnight.Add(offset - offset%width)
}

// BarsFromTicks builds bars of granularity g from tick prints. Turnover is
// used for VWAP when present.
func BarsFromTicks(ticks []domain.Tick, g domain.Granularity, loc *time.Location) ([]domain.Bar, error) {
	bars := make([]domain.Bar, len(ticks))
	for i, t := range ticks {
		vwap := t.Price
		if t.Qty > 0 && t.Turnover > 0 {
			vwap = t.Turnover / float64(t.Qty)
		}
		bars[i] = domain.Bar{
			Symbol:     t.Symbol,
			Timestamp:  t.Timestamp,
			Open:       t.Price,
			High:       t.Price,
			Low:        t.Price,
			Close:      t.Price,
			Volume:     t.Qty,
			TradeCount: 1,
			VWAP:       vwap,
		}
	}
	return Resample(bars, g, loc)
}
