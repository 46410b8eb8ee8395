// Package market holds NSE-specific helpers: file name conventions, the
// session clock, bar resampling and display formatting.
package market

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"intraview/internal/domain"
)

var (
	optionTickRe = regexp.MustCompile(`^(\d+)(CE|PE)$`)
	// nse_<underlying><yy><m><dd><strike><ce|pe>_min, m is 1-9 or O/N/D.
	optionBarRe = regexp.MustCompile(`(?i)^nse_([a-z]+?)(\d{2})([1-9ond])(\d{2})(\d+)(ce|pe)_min$`)
	barFileRe   = regexp.MustCompile(`(?i)^nse_([a-z0-9]+?)_?(fut|index)?_min$`)
)

// DataExtensions are the file types the loaders and the explorer accept.
var DataExtensions = map[string]bool{".csv": true, ".parquet": true}

// ParseSymbolFile derives instrument information from a data file path.
// The boolean is false for files that are not csv or parquet data.
func ParseSymbolFile(path string) (domain.SymbolInfo, bool) {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	if !DataExtensions[ext] {
		return domain.SymbolInfo{}, false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return domain.SymbolInfo{}, false
	}

	if m := optionBarRe.FindStringSubmatch(stem); m != nil {
		strike, _ := strconv.ParseFloat(m[5], 64)
		opt := domain.OptionType(strings.ToUpper(m[6]))
		underlying := strings.ToUpper(m[1])
		return domain.SymbolInfo{
			Symbol:     m[5] + string(opt),
			Name:       underlying + " " + m[5] + " " + string(opt),
			DataType:   domain.DataTypeFNOOHLCV,
			Strike:     strike,
			OptionType: opt,
			HasOHLCV:   true,
			Timeframes: []string{string(domain.Granularity5Sec)},
		}, true
	}
	if m := barFileRe.FindStringSubmatch(stem); m != nil {
		underlying := strings.ToUpper(m[1])
		info := domain.SymbolInfo{
			Symbol:     underlying,
			Name:       underlying + " OHLCV",
			DataType:   domain.DataTypeIndexOHLCV,
			HasOHLCV:   true,
			Timeframes: []string{string(domain.Granularity5Sec)},
		}
		if strings.EqualFold(m[2], "fut") {
			info.Symbol = underlying + "FUT"
			info.Name = underlying + " Futures OHLCV"
			info.DataType = domain.DataTypeFuturesOHLCV
		}
		return info, true
	}
	if m := optionTickRe.FindStringSubmatch(stem); m != nil {
		strike, _ := strconv.ParseFloat(m[1], 64)
		return domain.SymbolInfo{
			Symbol:     stem,
			Name:       "NIFTY " + m[1] + " " + m[2],
			DataType:   domain.DataTypeFNOTick,
			Strike:     strike,
			OptionType: domain.OptionType(m[2]),
			HasTick:    true,
			Timeframes: []string{string(domain.GranularityTick)},
		}, true
	}
	if strings.HasSuffix(stem, "FUT") {
		return domain.SymbolInfo{
			Symbol:     stem,
			Name:       stem + " Futures",
			DataType:   domain.DataTypeFuturesTick,
			HasTick:    true,
			Timeframes: []string{string(domain.GranularityTick)},
		}, true
	}

	symbol := strings.TrimSuffix(stem, "_EQ")
	return domain.SymbolInfo{
		Symbol:     symbol,
		Name:       symbol + " Equity",
		DataType:   domain.DataTypeEquity,
		HasTick:    true,
		HasOHLCV:   true,
		Timeframes: timeframeNames(),
	}, true
}

// GranularityFromPath reports the resolution of a data file: files under a
// 5S directory hold 5-second bars, *_min files hold 1-minute bars and
// everything else holds ticks.
func GranularityFromPath(path string) domain.Granularity {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if strings.EqualFold(part, "5S") {
			return domain.Granularity5Sec
		}
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.HasSuffix(strings.ToLower(stem), "_min") {
		return domain.Granularity1Min
	}
	return domain.GranularityTick
}

func timeframeNames() []string {
	out := make([]string, len(domain.Timeframes))
	for i, g := range domain.Timeframes {
		out[i] = string(g)
	}
	return out
}
