// Package domain defines the core value types shared by the backtest engine,
// the storage layer and the service surfaces.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnorderedBars is returned when a bar series is not strictly ascending by
// timestamp.
var ErrUnorderedBars = errors.New("bars not strictly ascending by timestamp")

// Bar is a single OHLCV observation.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// ValidateSeries checks that bars are strictly ascending by timestamp, which
// also guarantees unique timestamps.
func ValidateSeries(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d at %s: %w", i, bars[i].Timestamp.Format(time.RFC3339), ErrUnorderedBars)
		}
	}
	return nil
}

// Closes returns the close prices of bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// ---------------------------------------------------------------------------
// Signals and directions
// ---------------------------------------------------------------------------

// Signal is the per-bar classification of price against an indicator.
type Signal int8

const (
	SignalNone Signal = iota
	SignalBullish
	SignalBearish
)

func (s Signal) String() string {
	switch s {
	case SignalBullish:
		return "bullish"
	case SignalBearish:
		return "bearish"
	default:
		return "none"
	}
}

// Direction is the side of an open position.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// DirectionOf maps a firing signal to the direction it opens. The second
// return value is false for SignalNone.
func DirectionOf(s Signal) (Direction, bool) {
	switch s {
	case SignalBullish:
		return Long, true
	case SignalBearish:
		return Short, true
	default:
		return "", false
	}
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// ExitReason records which rule closed a trade.
type ExitReason string

const (
	ExitFlip      ExitReason = "flip"
	ExitStop      ExitReason = "stop"
	ExitTarget    ExitReason = "target"
	ExitEndOfData ExitReason = "end_of_data"
)

// Trade is a completed round trip.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	Points     float64
	Reason     ExitReason
}

// PointsFor returns the signed profit of a round trip in price units.
func PointsFor(dir Direction, entry, exit float64) float64 {
	if dir == Short {
		return entry - exit
	}
	return exit - entry
}
