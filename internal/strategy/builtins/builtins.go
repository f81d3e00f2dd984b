// Package builtins provides the indicator-cross strategies that ship with
// duckweb.
package builtins

import (
	"duckweb/internal/strategy"
)

// Register adds every built-in strategy to r.
func Register(r *strategy.Registry) {
	r.Register(strategy.KindSMA, NewMACross)
	r.Register(strategy.KindEMA, NewMACross)
	r.Register(strategy.KindMACD, NewMACDCross)
	r.Register(strategy.KindSuperTrend, NewSuperTrendCross)
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
