package market

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatVolume formats a volume or turnover with B/M/K suffixes.
func FormatVolume(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s%.1fB", sign, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s%.1fM", sign, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s%.1fK", sign, v/1e3)
	default:
		return fmt.Sprintf("%s%.0f", sign, v)
	}
}

// FormatPrice formats a price with two decimals, or "-" for zero or
// non-finite values.
func FormatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) || math.IsInf(p, 0) || p == math.MaxFloat64 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// PercentChange returns the change from prev to cur in percent, 0 when prev
// is 0.
func PercentChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// FormatChange formats a percent change as "+1.23%" or "-0.50%".
func FormatChange(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatTimestamp formats t in exchange time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(IST).Format("2006-01-02 15:04:05")
}

// ParseTradingDate parses the date labels used for expiry and trading-date
// directories ("01 Aug", "07 Aug Exp") in the given year, as well as ISO
// dates ("2024-08-01"). The result is midnight IST.
func ParseTradingDate(label string, year int) (time.Time, error) {
	s := strings.TrimSpace(label)
	if t, err := time.ParseInLocation("2006-01-02", s, IST); err == nil {
		return t, nil
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "Exp"), "EXP"))
	t, err := time.ParseInLocation("02 Jan 2006", fmt.Sprintf("%s %d", s, year), IST)
	if err != nil {
		if t2, err2 := time.ParseInLocation("2 Jan 2006", fmt.Sprintf("%s %d", s, year), IST); err2 == nil {
			return t2, nil
		}
		return time.Time{}, fmt.Errorf("parsing trading date %q: %w", label, err)
	}
	return t, nil
}

// TradingDateLabel formats t the way trading-date directories are named.
func TradingDateLabel(t time.Time) string {
	return t.In(IST).Format("02 Jan")
}
