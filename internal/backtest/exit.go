package backtest

import (
	"time"

	"duckweb/internal/domain"
)

// Position is the single open position of a run. The stop level is fixed at
// entry and never trails.
type Position struct {
	Direction  domain.Direction
	EntryTime  time.Time
	EntryPrice float64
	StopLevel  float64
}

// Target returns the profit-target price, entry + rr*(entry-stop) for both
// directions. The second return value is false when rr holds until a flip.
// A stop equal to the entry yields a target equal to the entry; this is not
// guarded.
func (p Position) Target(rr RiskReward) (float64, bool) {
	if rr.HoldUntilFlip {
		return 0, false
	}
	return p.EntryPrice + rr.Ratio*(p.EntryPrice-p.StopLevel), true
}

// Close turns the position into a completed trade.
func (p Position) Close(at time.Time, price float64, reason domain.ExitReason) domain.Trade {
	return domain.Trade{
		EntryTime:  p.EntryTime,
		ExitTime:   at,
		Direction:  p.Direction,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		Points:     domain.PointsFor(p.Direction, p.EntryPrice, price),
		Reason:     reason,
	}
}

// ExitDecision is the outcome of a triggered exit rule.
type ExitDecision struct {
	Price  float64
	Reason domain.ExitReason
}

// Evaluate applies the exit rules to an open position for one bar, in fixed
// priority: flip, stop, target. The first rule that triggers wins and the
// second return value reports whether any did.
//
// A flip exits at the bar's open; the caller re-enters in the opposite
// direction at the same price. Stop and target exits fill at exactly the
// stop or target level.
func Evaluate(pos Position, bar domain.Bar, fired domain.Signal, rr RiskReward) (ExitDecision, bool) {
	if dir, ok := domain.DirectionOf(fired); ok && dir != pos.Direction {
		return ExitDecision{Price: bar.Open, Reason: domain.ExitFlip}, true
	}

	switch pos.Direction {
	case domain.Long:
		if bar.Low <= pos.StopLevel {
			return ExitDecision{Price: pos.StopLevel, Reason: domain.ExitStop}, true
		}
	case domain.Short:
		if bar.High >= pos.StopLevel {
			return ExitDecision{Price: pos.StopLevel, Reason: domain.ExitStop}, true
		}
	}

	target, ok := pos.Target(rr)
	if !ok {
		return ExitDecision{}, false
	}
	switch pos.Direction {
	case domain.Long:
		if bar.High >= target {
			return ExitDecision{Price: target, Reason: domain.ExitTarget}, true
		}
	case domain.Short:
		if bar.Low <= target {
			return ExitDecision{Price: target, Reason: domain.ExitTarget}, true
		}
	}
	return ExitDecision{}, false
}
