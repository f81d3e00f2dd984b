package builtins

import (
	"fmt"

	"duckweb/internal/backtest"
	"duckweb/internal/domain"
	"duckweb/internal/indicator"
	"duckweb/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACross)(nil)

// MACross signals when the close crosses its moving average. The average is
// also the stop level of a position entered on that bar.
type MACross struct {
	exponential bool
	period      int
}

// NewMACross builds an SMA or EMA cross from cfg.
func NewMACross(cfg strategy.Config) (strategy.Strategy, error) {
	switch cfg.Indicator {
	case strategy.KindSMA:
		return &MACross{period: cfg.Period}, nil
	case strategy.KindEMA:
		return &MACross{exponential: true, period: cfg.Period}, nil
	default:
		return nil, fmt.Errorf("%w: ma-cross cannot build %q", strategy.ErrUnknownIndicator, cfg.Indicator)
	}
}

// Name returns "ma-cross".
func (s *MACross) Name() string {
	return "ma-cross"
}

// Prepare computes the average of closes and classifies close against it.
func (s *MACross) Prepare(bars []domain.Bar) (*backtest.Series, error) {
	closes := domain.Closes(bars)

	var (
		ma  []float64
		err error
	)
	if s.exponential {
		ma, err = indicator.EMA(closes, s.period)
	} else {
		ma, err = indicator.SMA(closes, s.period)
	}
	if err != nil {
		return nil, err
	}
	return backtest.NewSeries(closes, ma, ma), nil
}
