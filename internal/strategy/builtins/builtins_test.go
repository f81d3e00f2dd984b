package builtins

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckweb/internal/domain"
	"duckweb/internal/strategy"
)

func closeBars(closes ...float64) []domain.Bar {
	t0 := time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC)
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c + 0.5, Low: c - 0.5, Close: c,
		}
	}
	return out
}

func TestRegisterAllKinds(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"ema", "macd", "sma", "supertrend"}, r.List())

	bars := closeBars(10, 11, 12, 11, 10, 11, 12, 13, 12, 11, 10, 9, 10, 11, 12, 13, 14, 15, 14, 13,
		12, 11, 12, 13, 14, 15, 16, 15, 14, 13, 12, 11, 12, 13, 14, 15)
	for _, kind := range r.List() {
		s, cfg, err := r.Build(strategy.Config{Indicator: kind})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, cfg.Indicator)

		series, err := s.Prepare(bars)
		require.NoError(t, err, kind)
		assert.Equal(t, len(bars), series.Len(), kind)
		assert.Len(t, series.Stops, len(bars), kind)
		assert.Equal(t, domain.SignalNone, series.Classify(0), kind)
	}
}

func TestSMACrossSignalsAndStops(t *testing.T) {
	s, _, err := NewRegistry().Build(strategy.Config{Indicator: "SMA", Period: 2})
	require.NoError(t, err)
	assert.Equal(t, "ma-cross", s.Name())

	series, err := s.Prepare(closeBars(1, 2, 3, 2, 1, 2, 3))
	require.NoError(t, err)

	want := []domain.Signal{
		domain.SignalNone, domain.SignalBullish, domain.SignalNone,
		domain.SignalBearish, domain.SignalNone, domain.SignalBullish, domain.SignalNone,
	}
	assert.Equal(t, want, series.Fired)

	assert.True(t, math.IsNaN(series.StopLevelAt(0)))
	assert.InDelta(t, 1.5, series.StopLevelAt(1), 1e-12)
	assert.InDelta(t, 2.5, series.StopLevelAt(3), 1e-12)
}

func TestMACDCrossUsesSlowEMAStop(t *testing.T) {
	s, cfg, err := NewRegistry().Build(strategy.Config{Indicator: "macd", Fast: 2, Slow: 3, Signal: 2})
	require.NoError(t, err)
	assert.Equal(t, "MACD(2,3,2)", cfg.Label())
	assert.Equal(t, "macd-cross", s.Name())

	series, err := s.Prepare(closeBars(1, 2, 3, 4, 5, 4, 3, 2, 1))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(series.StopLevelAt(1)))
	// Slow EMA is seeded with the mean of the first three closes.
	assert.InDelta(t, 2.0, series.StopLevelAt(2), 1e-12)

	var fired int
	for _, f := range series.Fired {
		if f != domain.SignalNone {
			fired++
		}
	}
	assert.Positive(t, fired)
}

func TestSuperTrendCrossStopIsLine(t *testing.T) {
	s, _, err := NewRegistry().Build(strategy.Config{Indicator: "supertrend", Period: 3, Multiplier: 1})
	require.NoError(t, err)
	assert.Equal(t, "supertrend-cross", s.Name())

	bars := closeBars(10, 11, 12, 13, 14, 15, 12, 9, 8, 7)
	series, err := s.Prepare(bars)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(series.StopLevelAt(i)))
	}
	for i := 3; i < len(bars); i++ {
		assert.False(t, math.IsNaN(series.StopLevelAt(i)), "bar %d", i)
	}
}

func TestBuildRejectsOutOfRange(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Build(strategy.Config{Indicator: "ema", Period: 500})
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)

	_, _, err = r.Build(strategy.Config{Indicator: "supertrend", Period: 10, Multiplier: 0.5})
	assert.ErrorIs(t, err, strategy.ErrInvalidConfig)

	_, _, err = r.Build(strategy.Config{Indicator: "rsi"})
	assert.ErrorIs(t, err, strategy.ErrUnknownIndicator)
}
