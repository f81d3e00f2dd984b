package builtins

import (
	"duckweb/internal/backtest"
	"duckweb/internal/domain"
	"duckweb/internal/indicator"
	"duckweb/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SuperTrendCross)(nil)

// SuperTrendCross signals when the close crosses the SuperTrend line, which
// is also the stop level.
type SuperTrendCross struct {
	period     int
	multiplier float64
}

// NewSuperTrendCross builds a SuperTrend cross from cfg.
func NewSuperTrendCross(cfg strategy.Config) (strategy.Strategy, error) {
	return &SuperTrendCross{period: cfg.Period, multiplier: cfg.Multiplier}, nil
}

// Name returns "supertrend-cross".
func (s *SuperTrendCross) Name() string {
	return "supertrend-cross"
}

func (s *SuperTrendCross) Prepare(bars []domain.Bar) (*backtest.Series, error) {
	line, err := indicator.SuperTrend(bars, s.period, s.multiplier)
	if err != nil {
		return nil, err
	}
	return backtest.NewSeries(domain.Closes(bars), line, line), nil
}
