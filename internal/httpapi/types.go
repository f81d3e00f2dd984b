// Package httpapi provides the HTTP REST and websocket API over the bar
// store and the backtester.
package httpapi

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"duckweb/internal/backtest"
	"duckweb/internal/dashboard"
	"duckweb/internal/store"
	"duckweb/internal/strategy"
	"duckweb/internal/util"
)

// ErrBadRequest marks parameter errors that map to 400.
var ErrBadRequest = errors.New("bad request")

// Defaults fill backtest parameters a request leaves out.
type Defaults struct {
	RiskRewards []backtest.RiskReward
	Workers     int
	// WarmupBars is the number of bars loaded before Start. Zero derives it
	// from the indicator lookback.
	WarmupBars int
}

// BacktestParams are the parameters of a backtest request, shared by the
// query-string API, the websocket stream and the gRPC service.
type BacktestParams struct {
	Index      string   `json:"index"`
	Timeframe  string   `json:"timeframe"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Indicator  string   `json:"indicator,omitempty"`
	Period     int      `json:"period,omitempty"`
	Fast       int      `json:"fast,omitempty"`
	Slow       int      `json:"slow,omitempty"`
	Signal     int      `json:"signal,omitempty"`
	Multiplier float64  `json:"multiplier,omitempty"`
	RR         []string `json:"rr,omitempty"`
	Trades     string   `json:"trades,omitempty"`
	Warmup     *int     `json:"warmup,omitempty"`
	Sort       string   `json:"sort,omitempty"`
}

// ParseQuery reads BacktestParams from a query string. rr may be repeated or
// comma separated.
func ParseQuery(q url.Values) (BacktestParams, error) {
	p := BacktestParams{
		Index:     q.Get("index"),
		Timeframe: q.Get("timeframe"),
		Start:     q.Get("start"),
		End:       q.Get("end"),
		Indicator: q.Get("indicator"),
		Trades:    q.Get("trades"),
		Sort:      q.Get("sort"),
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"period", &p.Period}, {"fast", &p.Fast}, {"slow", &p.Slow}, {"signal", &p.Signal},
	}
	for _, f := range ints {
		if v := q.Get(f.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, fmt.Errorf("%w: %s=%q", ErrBadRequest, f.name, v)
			}
			*f.dst = n
		}
	}
	if v := q.Get("multiplier"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: multiplier=%q", ErrBadRequest, v)
		}
		p.Multiplier = m
	}
	if v := q.Get("warmup"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("%w: warmup=%q", ErrBadRequest, v)
		}
		p.Warmup = &n
	}
	for _, v := range q["rr"] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.RR = append(p.RR, part)
			}
		}
	}
	return p, nil
}

// Config returns the indicator configuration of p, normalized.
func (p BacktestParams) Config() strategy.Config {
	return strategy.Config{
		Indicator:  p.Indicator,
		Period:     p.Period,
		Fast:       p.Fast,
		Slow:       p.Slow,
		Signal:     p.Signal,
		Multiplier: p.Multiplier,
	}.Normalize()
}

// Request converts p into a backtester request.
func (p BacktestParams) Request(d Defaults) (strategy.Request, error) {
	key, err := store.NewSeriesKey(p.Index, p.Timeframe)
	if err != nil {
		return strategy.Request{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	start, end, err := util.ParseDateRange(p.Start, p.End)
	if err != nil {
		return strategy.Request{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	rrs := d.RiskRewards
	if len(p.RR) > 0 {
		rrs, err = backtest.ParseRiskRewards(p.RR)
		if err != nil {
			return strategy.Request{}, err
		}
	}

	cfg := p.Config()
	req := strategy.Request{
		Key:         key,
		Start:       start,
		End:         end,
		Indicators:  []strategy.Config{cfg},
		RiskRewards: rrs,
		Workers:     d.Workers,
	}

	warmup := d.WarmupBars
	if p.Warmup != nil {
		warmup = *p.Warmup
	} else if warmup == 0 {
		warmup = 3 * cfg.Lookback()
	}
	if !start.IsZero() && warmup > 0 {
		if tf, err := util.ParseTimeframe(key.Timeframe); err == nil {
			req.WarmupStart = tf.WarmupStart(start, warmup)
		}
	}
	return req, nil
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// SeriesJSON describes one stored series.
type SeriesJSON struct {
	Name      string `json:"name"`
	Index     string `json:"index"`
	Timeframe string `json:"timeframe"`
}

// DatesJSON holds the first and last bar times of a series.
type DatesJSON struct {
	Series string    `json:"series"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
}

// BarJSON is the wire form of a bar.
type BarJSON struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// IndicatorResultJSON is the summary table of one indicator configuration.
type IndicatorResultJSON struct {
	Indicator string                 `json:"indicator"`
	Strategy  string                 `json:"strategy"`
	Rows      []dashboard.SummaryRow `json:"rows"`
}

// TradesJSON is the trade history of the selected risk-reward setting.
type TradesJSON struct {
	RiskReward string               `json:"rr"`
	Indicator  string               `json:"indicator"`
	Rows       []dashboard.TradeRow `json:"rows"`
}

// BacktestJSON is the response of /api/backtest and the gRPC service.
type BacktestJSON struct {
	RunID    string                `json:"run_id"`
	Series   string                `json:"series"`
	Start    time.Time             `json:"start"`
	End      time.Time             `json:"end"`
	Bars     int                   `json:"bars"`
	Overview dashboard.Overview    `json:"overview"`
	Results  []IndicatorResultJSON `json:"results"`
	Trades   *TradesJSON           `json:"trades,omitempty"`
}

// BuildResponse formats report. The trade history is the run labelled
// p.Trades, or the first risk-reward setting when unset.
func BuildResponse(report *strategy.Report, p BacktestParams) BacktestJSON {
	out := BacktestJSON{
		RunID:    report.RunID,
		Series:   report.Key.String(),
		Start:    report.Start,
		End:      report.End,
		Bars:     report.BarCount,
		Overview: dashboard.ComputeOverview(report.Bars),
	}
	sortMode := dashboard.ParseSortMode(p.Sort)
	for _, ir := range report.Runs {
		rows := dashboard.SummaryRows(ir.Runs)
		dashboard.SortRows(rows, sortMode)
		out.Results = append(out.Results, IndicatorResultJSON{
			Indicator: ir.Label,
			Strategy:  ir.Strategy,
			Rows:      rows,
		})
	}

	if len(report.Runs) == 0 || len(report.Runs[0].Runs) == 0 {
		return out
	}
	label := p.Trades
	if label == "" {
		label = report.Runs[0].Runs[0].RiskReward.Label()
	} else if rr, err := backtest.ParseRiskReward(label); err == nil {
		label = rr.Label()
	}
	if run, ok := report.Find(0, label); ok {
		out.Trades = &TradesJSON{
			RiskReward: label,
			Indicator:  report.Runs[0].Label,
			Rows:       dashboard.TradeRows(run.Result.Trades),
		}
	}
	return out
}
