// Package domain holds the market data types shared across intraview.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies the exchange a symbol trades on.
type Market string

const (
	MarketNSE Market = "nse"
	MarketUS  Market = "us"
)

// DataType classifies a data file by instrument and shape.
type DataType string

const (
	DataTypeEquity       DataType = "equity"
	DataTypeFNOTick      DataType = "fno_tick"
	DataTypeFuturesTick  DataType = "futures_tick"
	DataTypeFNOOHLCV     DataType = "fno_ohlcv"
	DataTypeFuturesOHLCV DataType = "futures_ohlcv"
	DataTypeIndexOHLCV   DataType = "index_ohlcv"
)

// IsTick reports whether files of this type hold tick rows.
func (d DataType) IsTick() bool {
	return d == DataTypeEquity || d == DataTypeFNOTick || d == DataTypeFuturesTick
}

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Granularity is the time resolution of a series.
type Granularity string

const (
	GranularityTick  Granularity = "tick"
	Granularity5Sec  Granularity = "5s"
	Granularity1Min  Granularity = "1min"
	Granularity5Min  Granularity = "5min"
	Granularity15Min Granularity = "15min"
	Granularity1Hour Granularity = "1hour"
	GranularityDaily Granularity = "daily"
)

// Timeframes lists the bar granularities generated from 1-minute data, finest first.
var Timeframes = []Granularity{Granularity1Min, Granularity5Min, Granularity15Min, Granularity1Hour, GranularityDaily}

// Duration returns the bucket width. Tick data has no width and daily bars
// are one calendar day.
func (g Granularity) Duration() time.Duration {
	switch g {
	case Granularity5Sec:
		return 5 * time.Second
	case Granularity1Min:
		return time.Minute
	case Granularity5Min:
		return 5 * time.Minute
	case Granularity15Min:
		return 15 * time.Minute
	case Granularity1Hour:
		return time.Hour
	case GranularityDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ParseGranularity accepts the canonical names plus the common aliases used
// by query strings ("1m", "5m", "15m", "1h", "1d", "day").
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tick", "ticks":
		return GranularityTick, nil
	case "5s", "5sec":
		return Granularity5Sec, nil
	case "1min", "1m", "min", "minute":
		return Granularity1Min, nil
	case "5min", "5m":
		return Granularity5Min, nil
	case "15min", "15m":
		return Granularity15Min, nil
	case "1hour", "1h", "hour", "60min":
		return Granularity1Hour, nil
	case "daily", "1d", "day":
		return GranularityDaily, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// Bar is an OHLCV bar. OpenInterest is zero for instruments without one.
type Bar struct {
	Symbol       string
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	OpenInterest int64
	TradeCount   int64
	VWAP         float64
}

// Tick is a single trade print.
type Tick struct {
	Symbol             string
	Timestamp          time.Time
	Price              float64
	Qty                int64
	Turnover           float64
	CumulativeTurnover float64
}

// SymbolInfo is what a data file tells us about its instrument.
type SymbolInfo struct {
	Symbol      string     `json:"symbol"`
	Name        string     `json:"name"`
	DataType    DataType   `json:"type"`
	Strike      float64    `json:"strike,omitempty"`
	OptionType  OptionType `json:"option_type,omitempty"`
	Expiry      string     `json:"expiry,omitempty"`
	TradingDate string     `json:"trading_date,omitempty"`
	HasTick     bool       `json:"has_tick"`
	HasOHLCV    bool       `json:"has_ohlcv"`
	Timeframes  []string   `json:"timeframes,omitempty"`
}

// DataSummary aggregates one symbol's day.
type DataSummary struct {
	Symbol     string    `json:"symbol"`
	Date       string    `json:"date"`
	TickCount  int       `json:"tick_count"`
	BarCount   int       `json:"bar_count"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	Turnover   float64   `json:"turnover"`
	ChangePct  float64   `json:"change_pct"`
	FirstTime  time.Time `json:"first_time"`
	LastTime   time.Time `json:"last_time"`
	Timeframes []string  `json:"timeframes,omitempty"`
}

// TradingSession is one exchange day's session window.
type TradingSession struct {
	Date    string    `json:"date"`
	PreOpen time.Time `json:"pre_open"`
	Open    time.Time `json:"open"`
	Close   time.Time `json:"close"`
	PostEnd time.Time `json:"post_end"`
}
