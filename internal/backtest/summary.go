package backtest

import (
	"gonum.org/v1/gonum/stat"

	"duckweb/internal/domain"
)

// Summary aggregates the trades of one configuration.
type Summary struct {
	TradeCount int     `json:"trade_count"`
	WinCount   int     `json:"win_count"`
	LossCount  int     `json:"loss_count"`
	WinRate    float64 `json:"win_rate"` // percent
	Expectancy float64 `json:"expectancy"`
	// MaxDrawdown is the largest fall of the equity curve from its running
	// peak, with the peak starting at the first equity value.
	MaxDrawdown   float64 `json:"max_drawdown"`
	CumulativePnL float64 `json:"cumulative_pnl"`
}

// Summarize computes win rate, expectancy, max drawdown and cumulative PnL.
// Wins are trades with positive points; every other trade is a loss. With no
// trades every figure is 0.
func Summarize(trades []domain.Trade, equity []float64) Summary {
	var s Summary
	s.TradeCount = len(trades)

	points := make([]float64, len(trades))
	for i, t := range trades {
		points[i] = t.Points
		if t.Points > 0 {
			s.WinCount++
		}
	}
	s.LossCount = s.TradeCount - s.WinCount

	if s.TradeCount > 0 {
		s.WinRate = 100 * float64(s.WinCount) / float64(s.TradeCount)
		s.Expectancy = stat.Mean(points, nil)
	}

	s.MaxDrawdown = MaxDrawdown(equity)
	if len(equity) > 0 {
		s.CumulativePnL = equity[len(equity)-1]
	}
	return s
}

// MaxDrawdown returns max(peak - value) over the curve, where peak is the
// running maximum starting at the first value. An empty curve yields 0.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	var dd float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak-v > dd {
			dd = peak - v
		}
	}
	return dd
}
