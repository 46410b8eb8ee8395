package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"intraview/internal/domain"
	"intraview/internal/market"
)

// Layout maps the columns of a CSV header. Names are matched after
// lower-casing and trimming; missing columns are -1.
type Layout struct {
	Timestamp int
	Price     int
	Qty       int
	Turnover  int
	Open      int
	High      int
	Low       int
	Close     int
	Volume    int
	OI        int
}

// NewLayout maps header. Alternatives are tried in order: timestamp then
// time for the clock, price then close for ticks, quantity then volume then
// qty for size, trnvr then turnover.
func NewLayout(header []string) Layout {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	find := func(names ...string) int {
		for _, n := range names {
			if i, ok := idx[n]; ok {
				return i
			}
		}
		return -1
	}
	return Layout{
		Timestamp: find("timestamp", "time", "datetime", "date"),
		Price:     find("price", "ltp", "close"),
		Qty:       find("quantity", "volume", "qty"),
		Turnover:  find("trnvr", "turnover"),
		Open:      find("open"),
		High:      find("high"),
		Low:       find("low"),
		Close:     find("close"),
		Volume:    find("volume", "quantity", "qty"),
		OI:        find("oi", "open_interest", "openinterest"),
	}
}

// HasOHLCV reports whether the header carries a full bar.
func (l Layout) HasOHLCV() bool {
	return l.Open >= 0 && l.High >= 0 && l.Low >= 0 && l.Close >= 0 && l.Volume >= 0
}

// Parser turns CSV records of one file into ticks or bars.
type Parser struct {
	Layout
	Symbol string
	// Day is the trading date. Clock-only timestamps are placed on it and
	// rows without a timestamp column are spaced Step apart from 09:15.
	Day      time.Time
	Step     time.Duration
	Location *time.Location
}

// ParseTickLine parses the row-th data record as a tick. Missing turnover
// is computed as price times quantity.
func (p *Parser) ParseTickLine(rec []string, row int) (domain.Tick, error) {
	ts, err := p.timestamp(rec, row)
	if err != nil {
		return domain.Tick{}, err
	}
	price, err := requiredFloat(rec, p.Price, "price")
	if err != nil {
		return domain.Tick{}, err
	}
	qty, err := optionalFloat(rec, p.Qty)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing quantity: %w", err)
	}
	turnover, err := optionalFloat(rec, p.Turnover)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parsing turnover: %w", err)
	}
	if p.Turnover < 0 {
		turnover = price * qty
	}
	return domain.Tick{
		Symbol:    p.Symbol,
		Timestamp: ts,
		Price:     price,
		Qty:       int64(math.Round(qty)),
		Turnover:  turnover,
	}, nil
}

// ParseOHLCVLine parses the row-th data record as a bar.
func (p *Parser) ParseOHLCVLine(rec []string, row int) (domain.Bar, error) {
	ts, err := p.timestamp(rec, row)
	if err != nil {
		return domain.Bar{}, err
	}
	var b domain.Bar
	b.Symbol = p.Symbol
	b.Timestamp = ts
	for _, f := range []struct {
		col  int
		name string
		dst  *float64
	}{
		{p.Open, "open", &b.Open},
		{p.High, "high", &b.High},
		{p.Low, "low", &b.Low},
		{p.Close, "close", &b.Close},
	} {
		if *f.dst, err = requiredFloat(rec, f.col, f.name); err != nil {
			return domain.Bar{}, err
		}
	}
	vol, err := optionalFloat(rec, p.Volume)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume: %w", err)
	}
	oi, err := optionalFloat(rec, p.OI)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing oi: %w", err)
	}
	b.Volume = int64(math.Round(vol))
	b.OpenInterest = int64(math.Round(oi))
	return b, nil
}

func (p *Parser) loc() *time.Location {
	if p.Location == nil {
		return market.IST
	}
	return p.Location
}

func (p *Parser) timestamp(rec []string, row int) (time.Time, error) {
	if p.Timestamp < 0 {
		day := p.Day.In(p.loc())
		open := time.Date(day.Year(), day.Month(), day.Day(), 9, 15, 0, 0, p.loc())
		step := p.Step
		if step <= 0 {
			step = time.Second
		}
		return open.Add(time.Duration(row) * step), nil
	}
	if p.Timestamp >= len(rec) {
		return time.Time{}, fmt.Errorf("row %d: missing timestamp column", row)
	}
	ts, err := ParseTimestamp(rec[p.Timestamp], p.Day, p.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("row %d: %w", row, err)
	}
	return ts, nil
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02",
}

var clockLayouts = []string{
	"15:04:05.999999999",
	"15:04",
}

// ParseTimestamp reads the timestamp spellings found in broker exports:
// RFC 3339, local date-times, clock-only times (placed on day) and Unix
// seconds or milliseconds. Local forms are interpreted in loc.
func ParseTimestamp(s string, day time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range clockLayouts {
		if c, err := time.Parse(layout, s); err == nil {
			d := day.In(loc)
			return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), loc), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).In(loc), nil
		}
		return time.Unix(n, 0).In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func requiredFloat(rec []string, col int, name string) (float64, error) {
	if col < 0 || col >= len(rec) {
		return 0, fmt.Errorf("missing %s column", name)
	}
	s := strings.TrimSpace(rec[col])
	if s == "" {
		return 0, fmt.Errorf("empty %s", name)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", name, s, err)
	}
	return f, nil
}

func optionalFloat(rec []string, col int) (float64, error) {
	if col < 0 || col >= len(rec) {
		return 0, nil
	}
	s := strings.TrimSpace(rec[col])
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
