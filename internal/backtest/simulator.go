// Package backtest simulates a single-position, signal-driven strategy over a
// bar series with layered exits (flip, stop, target), and aggregates the
// resulting trades into per-configuration statistics.
package backtest

import (
	"duckweb/internal/domain"
	"duckweb/internal/indicator"
	"duckweb/internal/signal"
)

// SignalSource supplies the per-bar inputs of a simulation. Implementations
// must be safe for concurrent reads; a sweep shares one source across runs.
type SignalSource interface {
	// Classify returns the firing signal at bar i, or SignalNone.
	Classify(i int) domain.Signal
	// StopLevelAt returns the stop level a position entered at bar i uses.
	StopLevelAt(i int) float64
	// Defined reports whether the indicator produced a value on any bar.
	Defined() bool
}

// Series is a precomputed SignalSource.
type Series struct {
	Fired []domain.Signal
	Stops []float64

	// undefined is set when no bar carried both indicator values.
	undefined bool
}

var _ SignalSource = (*Series)(nil)

// NewSeries classifies value against reference and keeps stops as the
// per-bar stop levels.
func NewSeries(value, reference, stops []float64) *Series {
	return &Series{
		Fired:     signal.Firing(value, reference),
		Stops:     stops,
		undefined: !bothDefined(value, reference),
	}
}

func bothDefined(value, reference []float64) bool {
	for i := range min(len(value), len(reference)) {
		if indicator.Defined(value[i]) && indicator.Defined(reference[i]) {
			return true
		}
	}
	return false
}

func (s *Series) Classify(i int) domain.Signal {
	if i < 0 || i >= len(s.Fired) {
		return domain.SignalNone
	}
	return s.Fired[i]
}

func (s *Series) StopLevelAt(i int) float64 { return s.Stops[i] }

func (s *Series) Defined() bool { return !s.undefined }

// Slice drops the first from bars. Firing signals were computed on the full
// history, so warm-up bars before from still shape the classification.
func (s *Series) Slice(from int) *Series {
	from = min(max(from, 0), len(s.Fired))
	return &Series{Fired: s.Fired[from:], Stops: s.Stops[from:], undefined: s.undefined}
}

// Len returns the number of bars covered.
func (s *Series) Len() int { return len(s.Fired) }

// Result is the outcome of one simulation.
type Result struct {
	Trades []domain.Trade
	// Equity starts at 0 and gains one cumulative value per closed trade.
	Equity []float64
	// Insufficient is set when the series had fewer than two bars or the
	// indicator was undefined throughout.
	Insufficient bool
}

// Simulate runs the position state machine over bars. Trading starts at bar
// 1. From flat a firing signal opens at the bar's open with the bar's stop
// level; an open position is evaluated from the next bar on. A position still
// open after the last bar is closed at the last close.
func Simulate(bars []domain.Bar, src SignalSource, rr RiskReward) Result {
	res := Result{Equity: []float64{0}}
	if len(bars) < 2 || !src.Defined() {
		res.Insufficient = true
		return res
	}

	var (
		pos  Position
		open bool
		cum  float64
	)
	record := func(t domain.Trade) {
		cum += t.Points
		res.Trades = append(res.Trades, t)
		res.Equity = append(res.Equity, cum)
	}

	for i := 1; i < len(bars); i++ {
		bar := bars[i]
		fired := src.Classify(i)

		if !open {
			if dir, ok := domain.DirectionOf(fired); ok {
				pos = Position{Direction: dir, EntryTime: bar.Timestamp, EntryPrice: bar.Open, StopLevel: src.StopLevelAt(i)}
				open = true
			}
			continue
		}

		exit, hit := Evaluate(pos, bar, fired, rr)
		if !hit {
			continue
		}
		record(pos.Close(bar.Timestamp, exit.Price, exit.Reason))
		open = false

		if exit.Reason == domain.ExitFlip {
			pos = Position{
				Direction:  pos.Direction.Opposite(),
				EntryTime:  bar.Timestamp,
				EntryPrice: bar.Open,
				StopLevel:  src.StopLevelAt(i),
			}
			open = true
		}
	}

	if open {
		last := bars[len(bars)-1]
		record(pos.Close(last.Timestamp, last.Close, domain.ExitEndOfData))
	}
	return res
}
