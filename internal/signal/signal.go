// Package signal classifies each bar as bullish, bearish or neither by
// comparing a value series against a reference series, and reduces the
// classification to firing signals at the bars where it changes.
package signal

import (
	"math"

	"duckweb/internal/domain"
)

// Generate classifies bar i as Bullish when value > reference and Bearish
// when value < reference. Equality carries the previous classification
// forward. A NaN on either side yields SignalNone, which also resets the
// carried classification.
//
// value and reference must have equal length; the shorter length wins
// otherwise.
func Generate(value, reference []float64) []domain.Signal {
	n := min(len(value), len(reference))
	out := make([]domain.Signal, n)
	prev := domain.SignalNone
	for i := 0; i < n; i++ {
		v, r := value[i], reference[i]
		switch {
		case math.IsNaN(v) || math.IsNaN(r):
			out[i] = domain.SignalNone
		case v > r:
			out[i] = domain.SignalBullish
		case v < r:
			out[i] = domain.SignalBearish
		default:
			out[i] = prev
		}
		prev = out[i]
	}
	return out
}

// Fire returns, for every bar, the classification if it differs from the
// previous bar's and is not None; SignalNone otherwise. Bar 0 never fires.
func Fire(classes []domain.Signal) []domain.Signal {
	out := make([]domain.Signal, len(classes))
	for i := 1; i < len(classes); i++ {
		if classes[i] != domain.SignalNone && classes[i] != classes[i-1] {
			out[i] = classes[i]
		}
	}
	return out
}

// Firing is a convenience for Fire(Generate(value, reference)).
func Firing(value, reference []float64) []domain.Signal {
	return Fire(Generate(value, reference))
}
