// Package indicator computes technical indicator series aligned 1:1 with an
// input price series. Warm-up positions hold NaN.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"duckweb/internal/domain"
)

var (
	ErrInvalidPeriod      = errors.New("indicator period must be positive")
	ErrInvalidMultiplier  = errors.New("indicator multiplier must be positive")
	ErrInvalidMACDPeriods = errors.New("macd fast period must be below slow period")
)

// Defined reports whether v carries an indicator value.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// AnyDefined reports whether at least one value in xs is defined.
func AnyDefined(xs []float64) bool {
	for _, v := range xs {
		if Defined(v) {
			return true
		}
	}
	return false
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// firstDefined returns the index of the first non-NaN value, or len(x).
func firstDefined(x []float64) int {
	for i, v := range x {
		if Defined(v) {
			return i
		}
	}
	return len(x)
}

// SMA is the simple moving average over period points. Leading NaNs in x are
// skipped, so SMA can be chained on another indicator.
func SMA(x []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma period %d: %w", period, ErrInvalidPeriod)
	}
	out := nanSlice(len(x))
	start := firstDefined(x)
	var sum float64
	for i := start; i < len(x); i++ {
		sum += x[i]
		if i-start >= period {
			sum -= x[i-period]
		}
		if i-start >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA uses smoothing 2/(period+1) seeded with the SMA of the first period
// defined values.
func EMA(x []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period %d: %w", period, ErrInvalidPeriod)
	}
	out := nanSlice(len(x))
	start := firstDefined(x)
	seedAt := start + period - 1
	if seedAt >= len(x) {
		return out, nil
	}

	var seed float64
	for i := start; i <= seedAt; i++ {
		seed += x[i]
	}
	out[seedAt] = seed / float64(period)

	k := 2.0 / float64(period+1)
	for i := seedAt + 1; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out, nil
}

// MACD returns the MACD line (fast EMA minus slow EMA) and its signal line
// (EMA of the MACD line).
func MACD(x []float64, fast, slow, signal int) (line, sig []float64, err error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, nil, fmt.Errorf("macd periods %d/%d/%d: %w", fast, slow, signal, ErrInvalidPeriod)
	}
	if fast >= slow {
		return nil, nil, fmt.Errorf("macd %d/%d: %w", fast, slow, ErrInvalidMACDPeriods)
	}

	fastEMA, _ := EMA(x, fast)
	slowEMA, _ := EMA(x, slow)
	line = make([]float64, len(x))
	for i := range x {
		line[i] = fastEMA[i] - slowEMA[i] // NaN propagates through warm-up
	}
	sig, _ = EMA(line, signal)
	return line, sig, nil
}

// ATR is Wilder's average true range. True range starts at bar 1, the first
// ATR value (at index period) is the plain mean of the first period true
// ranges, and later values use Wilder smoothing.
func ATR(bars []domain.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr period %d: %w", period, ErrInvalidPeriod)
	}
	out := nanSlice(len(bars))
	if len(bars) <= period {
		return out, nil
	}

	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr[i] = math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out, nil
}

// SuperTrend returns the SuperTrend line: the final lower band while the
// trend is up and the final upper band while it is down.
func SuperTrend(bars []domain.Bar, period int, multiplier float64) ([]float64, error) {
	if !(multiplier > 0) {
		return nil, fmt.Errorf("supertrend multiplier %v: %w", multiplier, ErrInvalidMultiplier)
	}
	atr, err := ATR(bars, period)
	if err != nil {
		return nil, err
	}
	out := nanSlice(len(bars))
	if len(bars) <= period {
		return out, nil
	}

	var upper, lower float64
	up := false
	for i := period; i < len(bars); i++ {
		hl2 := (bars[i].High + bars[i].Low) / 2
		basicUpper := hl2 + multiplier*atr[i]
		basicLower := hl2 - multiplier*atr[i]

		if i == period {
			upper, lower = basicUpper, basicLower
			up = bars[i].Close > upper
		} else {
			prevClose := bars[i-1].Close
			if basicUpper < upper || prevClose > upper {
				upper = basicUpper
			}
			if basicLower > lower || prevClose < lower {
				lower = basicLower
			}
			if up && bars[i].Close < lower {
				up = false
			} else if !up && bars[i].Close > upper {
				up = true
			}
		}

		if up {
			out[i] = lower
		} else {
			out[i] = upper
		}
	}
	return out, nil
}
