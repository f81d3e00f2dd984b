package builtins

import (
	"duckweb/internal/backtest"
	"duckweb/internal/domain"
	"duckweb/internal/indicator"
	"duckweb/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*MACDCross)(nil)

// MACDCross signals when the MACD line crosses its signal line. The slow EMA
// of closes serves as the stop level. That EMA can sit on the profit side of
// the entry price, so a stop exit is not always a loss and the target can lie
// behind the entry.
type MACDCross struct {
	fast, slow, signal int
}

// NewMACDCross builds a MACD cross from cfg.
func NewMACDCross(cfg strategy.Config) (strategy.Strategy, error) {
	return &MACDCross{fast: cfg.Fast, slow: cfg.Slow, signal: cfg.Signal}, nil
}

// Name returns "macd-cross".
func (s *MACDCross) Name() string {
	return "macd-cross"
}

func (s *MACDCross) Prepare(bars []domain.Bar) (*backtest.Series, error) {
	closes := domain.Closes(bars)
	line, sig, err := indicator.MACD(closes, s.fast, s.slow, s.signal)
	if err != nil {
		return nil, err
	}
	stops, err := indicator.EMA(closes, s.slow)
	if err != nil {
		return nil, err
	}
	return backtest.NewSeries(line, sig, stops), nil
}
