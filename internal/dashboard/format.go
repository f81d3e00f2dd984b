package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatFixed rounds v half away from zero to places decimals. Non-finite
// values render as "-".
func FormatFixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// FormatPoints formats a points value with two decimals.
func FormatPoints(v float64) string {
	return FormatFixed(v, 2)
}

// FormatPercent formats a percentage value (already scaled to 0-100) as
// "NN.NN%".
func FormatPercent(pct float64) string {
	return FormatFixed(pct, 2) + "%"
}

// FormatChange formats a fractional change as "+X.XX%" or "-X.XX%".
func FormatChange(frac float64) string {
	s := FormatFixed(frac*100, 2)
	if frac > 0 {
		s = "+" + s
	}
	return s + "%"
}

// FormatPrice formats a price with two decimals, or "-" for zero.
func FormatPrice(p float64) string {
	if p == 0 {
		return "-"
	}
	return FormatFixed(p, 2)
}

// FormatTime renders a bar timestamp. Midnight timestamps (daily bars) show
// the date only.
func FormatTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format("2006-01-02 15:04")
}
