package market

import (
	"sort"

	"intraview/internal/domain"
)

// Summarize aggregates one symbol's day from its ticks and 1-minute bars.
// Ticks drive price statistics when present; bars fill in otherwise.
func Summarize(symbol, date string, ticks []domain.Tick, bars []domain.Bar) domain.DataSummary {
	sum := domain.DataSummary{
		Symbol:    symbol,
		Date:      date,
		TickCount: len(ticks),
		BarCount:  len(bars),
	}

	switch {
	case len(ticks) > 0:
		ts := make([]domain.Tick, len(ticks))
		copy(ts, ticks)
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].Timestamp.Before(ts[j].Timestamp) })

		sum.Open = ts[0].Price
		sum.High, sum.Low = ts[0].Price, ts[0].Price
		for _, t := range ts {
			if t.Price > sum.High {
				sum.High = t.Price
			}
			if t.Price < sum.Low {
				sum.Low = t.Price
			}
			sum.Volume += t.Qty
			sum.Turnover += t.Turnover
		}
		sum.Close = ts[len(ts)-1].Price
		sum.FirstTime = ts[0].Timestamp
		sum.LastTime = ts[len(ts)-1].Timestamp
	case len(bars) > 0:
		bs := make([]domain.Bar, len(bars))
		copy(bs, bars)
		sort.SliceStable(bs, func(i, j int) bool { return bs[i].Timestamp.Before(bs[j].Timestamp) })

		sum.Open = bs[0].Open
		sum.High, sum.Low = bs[0].High, bs[0].Low
		for _, b := range bs {
			if b.High > sum.High {
				sum.High = b.High
			}
			if b.Low < sum.Low {
				sum.Low = b.Low
			}
			sum.Volume += b.Volume
			sum.Turnover += b.VWAP * float64(b.Volume)
		}
		sum.Close = bs[len(bs)-1].Close
		sum.FirstTime = bs[0].Timestamp
		sum.LastTime = bs[len(bs)-1].Timestamp
	default:
		return sum
	}

	sum.ChangePct = PercentChange(sum.Open, sum.Close)
	return sum
}
