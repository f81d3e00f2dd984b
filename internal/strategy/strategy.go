// Package strategy defines the indicator-cross strategies a backtest can run
// and a Registry that builds them from configuration values.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"duckweb/internal/backtest"
	"duckweb/internal/domain"
	"duckweb/internal/indicator"
)

var (
	// ErrInvalidConfig is returned for out-of-range indicator parameters.
	ErrInvalidConfig = errors.New("invalid strategy config")
	// ErrUnknownIndicator is returned for an indicator kind with no builder.
	ErrUnknownIndicator = errors.New("unknown indicator")
)

// Indicator kinds.
const (
	KindSMA        = "sma"
	KindEMA        = "ema"
	KindMACD       = "macd"
	KindSuperTrend = "supertrend"
)

// Parameter bounds.
const (
	MaxMAPeriod         = 200
	MaxSuperTrendPeriod = 50
	MinMultiplier       = 1.0
	MaxMultiplier       = 10.0
)

// Strategy turns a bar series into the per-bar signals and stop levels the
// simulator consumes.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Prepare computes the indicator over bars. The returned series is
	// aligned 1:1 with bars.
	Prepare(bars []domain.Bar) (*backtest.Series, error)
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config selects an indicator and its parameters.
type Config struct {
	Indicator  string  `json:"indicator" yaml:"indicator"`
	Period     int     `json:"period,omitempty" yaml:"period"`
	Fast       int     `json:"fast,omitempty" yaml:"fast"`
	Slow       int     `json:"slow,omitempty" yaml:"slow"`
	Signal     int     `json:"signal,omitempty" yaml:"signal"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier"`
}

// DefaultConfig returns the default parameters for kind: period 20 for the
// moving averages, 12/26/9 for MACD and 10 × 3.0 for SuperTrend.
func DefaultConfig(kind string) Config {
	switch strings.ToLower(kind) {
	case KindSMA:
		return Config{Indicator: KindSMA, Period: 20}
	case KindMACD:
		return Config{Indicator: KindMACD, Fast: 12, Slow: 26, Signal: 9}
	case KindSuperTrend:
		return Config{Indicator: KindSuperTrend, Period: 10, Multiplier: 3.0}
	default:
		return Config{Indicator: KindEMA, Period: 20}
	}
}

// Normalize lower-cases the kind and fills zero parameters with defaults.
func (c Config) Normalize() Config {
	c.Indicator = strings.ToLower(strings.TrimSpace(c.Indicator))
	if c.Indicator == "" {
		c.Indicator = KindEMA
	}
	d := DefaultConfig(c.Indicator)
	if d.Indicator != c.Indicator {
		return c
	}
	if c.Period == 0 {
		c.Period = d.Period
	}
	if c.Fast == 0 {
		c.Fast = d.Fast
	}
	if c.Slow == 0 {
		c.Slow = d.Slow
	}
	if c.Signal == 0 {
		c.Signal = d.Signal
	}
	if c.Multiplier == 0 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Validate checks the parameters of a normalized config.
func (c Config) Validate() error {
	switch c.Indicator {
	case KindSMA, KindEMA:
		if c.Period < 1 || c.Period > MaxMAPeriod {
			return fmt.Errorf("%w: %s period %d outside 1-%d: %w", ErrInvalidConfig, c.Indicator, c.Period, MaxMAPeriod, indicator.ErrInvalidPeriod)
		}
	case KindMACD:
		for _, p := range []int{c.Fast, c.Slow, c.Signal} {
			if p < 1 || p > MaxMAPeriod {
				return fmt.Errorf("%w: macd period %d outside 1-%d: %w", ErrInvalidConfig, p, MaxMAPeriod, indicator.ErrInvalidPeriod)
			}
		}
		if c.Fast >= c.Slow {
			return fmt.Errorf("%w: macd fast %d >= slow %d: %w", ErrInvalidConfig, c.Fast, c.Slow, indicator.ErrInvalidMACDPeriods)
		}
	case KindSuperTrend:
		if c.Period < 1 || c.Period > MaxSuperTrendPeriod {
			return fmt.Errorf("%w: supertrend period %d outside 1-%d: %w", ErrInvalidConfig, c.Period, MaxSuperTrendPeriod, indicator.ErrInvalidPeriod)
		}
		if c.Multiplier < MinMultiplier || c.Multiplier > MaxMultiplier {
			return fmt.Errorf("%w: supertrend multiplier %v outside %.1f-%.1f: %w", ErrInvalidConfig, c.Multiplier, MinMultiplier, MaxMultiplier, indicator.ErrInvalidMultiplier)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIndicator, c.Indicator)
	}
	return nil
}

// Lookback is the number of bars before the indicator of a normalized config
// is first defined.
func (c Config) Lookback() int {
	switch c.Indicator {
	case KindMACD:
		return c.Slow + c.Signal - 1
	case KindSuperTrend:
		return c.Period + 1
	default:
		return c.Period
	}
}

// Label renders the config for tables, e.g. "EMA(20)" or "MACD(12,26,9)".
func (c Config) Label() string {
	switch c.Indicator {
	case KindSMA, KindEMA:
		return fmt.Sprintf("%s(%d)", strings.ToUpper(c.Indicator), c.Period)
	case KindMACD:
		return fmt.Sprintf("MACD(%d,%d,%d)", c.Fast, c.Slow, c.Signal)
	case KindSuperTrend:
		return fmt.Sprintf("SuperTrend(%d,%.1f)", c.Period, c.Multiplier)
	default:
		return c.Indicator
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Builder constructs a Strategy from a validated config.
type Builder func(cfg Config) (Strategy, error)

// Registry maps indicator kinds to builders. It is filled at startup and
// read concurrently afterwards.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]Builder),
	}
}

// Register adds a builder for kind.
func (r *Registry) Register(kind string, b Builder) {
	r.builders[strings.ToLower(kind)] = b
}

// Get retrieves a builder by kind. The second return value indicates whether
// the kind was found.
func (r *Registry) Get(kind string) (Builder, bool) {
	b, ok := r.builders[strings.ToLower(kind)]
	return b, ok
}

// List returns a sorted slice of all registered kinds.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build normalizes and validates cfg and constructs its strategy.
func (r *Registry) Build(cfg Config) (Strategy, Config, error) {
	cfg = cfg.Normalize()
	b, ok := r.Get(cfg.Indicator)
	if !ok {
		return nil, cfg, fmt.Errorf("%w: %q", ErrUnknownIndicator, cfg.Indicator)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	s, err := b(cfg)
	if err != nil {
		return nil, cfg, err
	}
	return s, cfg, nil
}
