package backtest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidRiskReward is returned for non-positive or non-finite ratios and
// for labels that do not parse.
var ErrInvalidRiskReward = errors.New("invalid risk-reward")

// UntilFlipLabel is the display label of the hold-until-flip setting.
const UntilFlipLabel = "Until Opposite Signal"

// RiskReward sets the profit target as a multiple of the initial risk. With
// HoldUntilFlip the position has no target and exits only on a flip, a stop
// or the end of data.
type RiskReward struct {
	Ratio         float64
	HoldUntilFlip bool
}

// Ratio returns a fixed-multiple risk-reward setting.
func Ratio(r float64) RiskReward { return RiskReward{Ratio: r} }

// UntilFlip is the hold-until-flip setting.
var UntilFlip = RiskReward{HoldUntilFlip: true}

// DefaultRiskRewards is the standard sweep: 1.0, 1.5, 2.0, 3.0, 4.0, 5.0 and
// hold-until-flip.
func DefaultRiskRewards() []RiskReward {
	return []RiskReward{
		Ratio(1.0), Ratio(1.5), Ratio(2.0), Ratio(3.0), Ratio(4.0), Ratio(5.0),
		UntilFlip,
	}
}

// Validate rejects ratios that are not finite and positive.
func (rr RiskReward) Validate() error {
	if rr.HoldUntilFlip {
		return nil
	}
	if math.IsNaN(rr.Ratio) || math.IsInf(rr.Ratio, 0) || rr.Ratio <= 0 {
		return fmt.Errorf("ratio %v: %w", rr.Ratio, ErrInvalidRiskReward)
	}
	return nil
}

// Label renders the setting the way the summary table shows it: "1.0",
// "1.5", ... or "Until Opposite Signal".
func (rr RiskReward) Label() string {
	if rr.HoldUntilFlip {
		return UntilFlipLabel
	}
	s := strconv.FormatFloat(rr.Ratio, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (rr RiskReward) String() string { return rr.Label() }

// ParseRiskReward accepts a numeric ratio ("2", "2.0", "1:2") or one of the
// hold-until-flip spellings ("Until Opposite Signal", "flip", "until-flip").
func ParseRiskReward(s string) (RiskReward, error) {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case strings.ToLower(UntilFlipLabel), "flip", "until-flip", "until_flip", "hold":
		return UntilFlip, nil
	}
	v = strings.TrimPrefix(v, "1:")
	r, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return RiskReward{}, fmt.Errorf("parse %q: %w", s, ErrInvalidRiskReward)
	}
	rr := Ratio(r)
	if err := rr.Validate(); err != nil {
		return RiskReward{}, err
	}
	return rr, nil
}

// ParseRiskRewards parses a list of labels, stopping at the first error.
func ParseRiskRewards(labels []string) ([]RiskReward, error) {
	out := make([]RiskReward, 0, len(labels))
	for _, l := range labels {
		rr, err := ParseRiskReward(l)
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}
