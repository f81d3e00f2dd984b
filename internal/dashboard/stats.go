// Package dashboard turns backtest runs into the display rows shared by the
// CLI table, the HTTP API and the websocket stream.
package dashboard

import (
	"sort"
	"strings"
	"time"

	"duckweb/internal/backtest"
	"duckweb/internal/domain"
)

// SummaryRow is one line of the results table: a risk-reward setting and its
// statistics, formatted for display.
type SummaryRow struct {
	RiskReward    string `json:"rr"`
	WinRate       string `json:"win_rate"`
	Expectancy    string `json:"expectancy"`
	MaxDrawdown   string `json:"max_drawdown"`
	CumulativePnL string `json:"cumulative_pnl"`
	Trades        int    `json:"trades"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	// Insufficient marks a run with too few bars or no indicator values.
	Insufficient bool `json:"insufficient"`

	summary backtest.Summary
}

// Columns are the SummaryRow headers in table order.
var Columns = []string{
	"R:R", "Win Rate", "Expectancy (pts)", "Max Drawdown (pts)",
	"Cumulative PnL (pts)", "Number of Trades", "Winning Trades", "Losing Trades",
}

// NewSummaryRow formats the summary of run.
func NewSummaryRow(run backtest.Run) SummaryRow {
	s := run.Summary
	return SummaryRow{
		RiskReward:    run.RiskReward.Label(),
		WinRate:       FormatPercent(s.WinRate),
		Expectancy:    FormatPoints(s.Expectancy),
		MaxDrawdown:   FormatPoints(s.MaxDrawdown),
		CumulativePnL: FormatPoints(s.CumulativePnL),
		Trades:        s.TradeCount,
		Wins:          s.WinCount,
		Losses:        s.LossCount,
		Insufficient:  run.Result.Insufficient,
		summary:       s,
	}
}

// SummaryRows formats runs in their sweep order.
func SummaryRows(runs []backtest.Run) []SummaryRow {
	rows := make([]SummaryRow, len(runs))
	for i, run := range runs {
		rows[i] = NewSummaryRow(run)
	}
	return rows
}

// Cells returns the row values in Columns order.
func (r SummaryRow) Cells() []string {
	return []string{
		r.RiskReward, r.WinRate, r.Expectancy, r.MaxDrawdown, r.CumulativePnL,
		FormatInt(r.Trades), FormatInt(r.Wins), FormatInt(r.Losses),
	}
}

// SortMode defines the order of summary rows.
const (
	SortSweep      = 0 // sweep order (default)
	SortPnL        = 1 // cumulative PnL desc
	SortWinRate    = 2 // win rate desc
	SortExpectancy = 3 // expectancy desc
	SortDrawdown   = 4 // max drawdown asc
	SortModeCount  = 5
)

// SortModeLabel returns a short label for the given sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortSweep:
		return "R:R"
	case SortPnL:
		return "PNL"
	case SortWinRate:
		return "WIN%"
	case SortExpectancy:
		return "EXP"
	case SortDrawdown:
		return "DD"
	default:
		return "?"
	}
}

// ParseSortMode maps a label back to its mode, ignoring case; unknown labels
// sort in sweep order.
func ParseSortMode(label string) int {
	for m := 0; m < SortModeCount; m++ {
		if strings.EqualFold(SortModeLabel(m), label) {
			return m
		}
	}
	return SortSweep
}

// SortRows orders rows in place. Ties keep their sweep order.
func SortRows(rows []SummaryRow, mode int) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].summary, rows[j].summary
		switch mode {
		case SortPnL:
			return a.CumulativePnL > b.CumulativePnL
		case SortWinRate:
			if a.WinRate != b.WinRate {
				return a.WinRate > b.WinRate
			}
			return a.CumulativePnL > b.CumulativePnL
		case SortExpectancy:
			return a.Expectancy > b.Expectancy
		case SortDrawdown:
			return a.MaxDrawdown < b.MaxDrawdown
		default:
			return false
		}
	})
}

// ---------------------------------------------------------------------------
// Price overview
// ---------------------------------------------------------------------------

// Overview summarises the price action of a loaded range.
type Overview struct {
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
	Bars   int       `json:"bars"`
	Latest float64   `json:"latest"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	// Change is the fractional move from the first open to the last close.
	Change float64 `json:"change"`
}

// ComputeOverview scans bars once. An empty series yields the zero Overview.
func ComputeOverview(bars []domain.Bar) Overview {
	if len(bars) == 0 {
		return Overview{}
	}
	o := Overview{
		First:  bars[0].Timestamp,
		Last:   bars[len(bars)-1].Timestamp,
		Bars:   len(bars),
		Open:   bars[0].Open,
		Latest: bars[len(bars)-1].Close,
		High:   bars[0].High,
		Low:    bars[0].Low,
	}
	for _, b := range bars[1:] {
		o.High = max(o.High, b.High)
		o.Low = min(o.Low, b.Low)
	}
	if o.Open != 0 {
		o.Change = (o.Latest - o.Open) / o.Open
	}
	return o
}
