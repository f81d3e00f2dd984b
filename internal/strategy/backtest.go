package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"duckweb/internal/backtest"
	"duckweb/internal/domain"
	"duckweb/internal/observability"
	"duckweb/internal/store"
)

// ErrNoBars is returned when the requested range holds no bars.
var ErrNoBars = errors.New("no bars in range")

// Request describes one backtest: a series, a date range and the indicator
// configurations to sweep across risk-reward ratios.
type Request struct {
	Key   store.SeriesKey
	Start time.Time // zero: first stored bar
	End   time.Time // zero: last stored bar
	// WarmupStart, when before Start, loads earlier history so indicators
	// are already defined when trading begins at Start.
	WarmupStart time.Time
	Indicators  []Config
	RiskRewards []backtest.RiskReward // nil: backtest.DefaultRiskRewards()
	Workers     int

	// OnRun, if set, is called once per finished risk-reward run. It may be
	// called concurrently.
	OnRun func(indicator int, cfg Config, run backtest.Run)
}

// IndicatorRun holds the sweep of one indicator configuration.
type IndicatorRun struct {
	Config   Config         `json:"config"`
	Label    string         `json:"label"`
	Strategy string         `json:"strategy"`
	Runs     []backtest.Run `json:"runs"`
}

// Report is the outcome of Backtester.Run.
type Report struct {
	RunID    string          `json:"run_id"`
	Key      store.SeriesKey `json:"series"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	BarCount int             `json:"bar_count"`
	Bars     []domain.Bar    `json:"-"`
	Runs     []IndicatorRun  `json:"runs"`
}

// Find returns the run of indicator i with the given risk-reward label.
func (r *Report) Find(i int, label string) (backtest.Run, bool) {
	if i < 0 || i >= len(r.Runs) {
		return backtest.Run{}, false
	}
	for _, run := range r.Runs[i].Runs {
		if run.RiskReward.Label() == label {
			return run, true
		}
	}
	return backtest.Run{}, false
}

// Backtester loads bars from a store, prepares strategies from the registry
// and sweeps them across risk-reward ratios.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	log      *slog.Logger
	metrics  *observability.Metrics
}

// NewBacktester creates a Backtester that reads bars from the given store and
// looks up strategies in the provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		store:    barStore,
		registry: registry,
		log:      log,
	}
}

// SetMetrics enables metric recording.
func (bt *Backtester) SetMetrics(m *observability.Metrics) {
	bt.metrics = m
}

// Registry returns the strategy registry.
func (bt *Backtester) Registry() *Registry {
	return bt.registry
}

// Run executes req. Every indicator configuration and risk-reward ratio is
// validated before any bars are loaded.
func (bt *Backtester) Run(ctx context.Context, req Request) (report *Report, err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		bars := 0
		if report != nil {
			bars = report.BarCount
		}
		bt.metrics.RecordBacktest(status, bars)
	}()

	if err := req.Key.Validate(); err != nil {
		return nil, err
	}

	configs := req.Indicators
	if len(configs) == 0 {
		configs = []Config{DefaultConfig(KindEMA)}
	}
	strategies := make([]Strategy, len(configs))
	resolved := make([]Config, len(configs))
	for i, cfg := range configs {
		s, norm, err := bt.registry.Build(cfg)
		if err != nil {
			return nil, err
		}
		strategies[i], resolved[i] = s, norm
	}

	rrs := req.RiskRewards
	if len(rrs) == 0 {
		rrs = backtest.DefaultRiskRewards()
	}
	for _, rr := range rrs {
		if err := rr.Validate(); err != nil {
			return nil, err
		}
	}

	start, end, err := bt.resolveRange(ctx, req)
	if err != nil {
		return nil, err
	}
	from := start
	if !req.WarmupStart.IsZero() && req.WarmupStart.Before(start) {
		from = req.WarmupStart
	}

	bars, err := bt.store.ReadBars(ctx, req.Key, from, end)
	if err != nil {
		return nil, fmt.Errorf("read bars %s: %w", req.Key, err)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("series %s: %w", req.Key, err)
	}

	offset := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Timestamp.Before(start)
	})
	trading := bars[offset:]

	report = &Report{
		RunID:    uuid.NewString(),
		Key:      req.Key,
		Start:    start,
		End:      end,
		BarCount: len(trading),
		Bars:     trading,
		Runs:     make([]IndicatorRun, len(strategies)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range strategies {
		cfg := resolved[i]
		g.Go(func() error {
			began := time.Now()
			series, err := s.Prepare(bars)
			if err != nil {
				return fmt.Errorf("prepare %s: %w", cfg.Label(), err)
			}
			opts := backtest.SweepOptions{Workers: req.Workers}
			if req.OnRun != nil {
				opts.OnRun = func(_ int, run backtest.Run) { req.OnRun(i, cfg, run) }
			}
			runs, err := backtest.Sweep(gctx, trading, series.Slice(offset), rrs, opts)
			if err != nil {
				return err
			}
			for _, run := range runs {
				for _, t := range run.Result.Trades {
					bt.metrics.RecordTrade(string(t.Reason))
				}
			}
			bt.metrics.ObserveIndicator(cfg.Indicator, time.Since(began))
			report.Runs[i] = IndicatorRun{Config: cfg, Label: cfg.Label(), Strategy: s.Name(), Runs: runs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bt.log.Info("backtest complete",
		"run_id", report.RunID,
		"series", req.Key.String(),
		"bars", report.BarCount,
		"warmup_bars", offset,
		"indicators", len(strategies),
		"risk_rewards", len(rrs),
	)
	return report, nil
}

// resolveRange fills a zero Start or End from the stored date bounds.
func (bt *Backtester) resolveRange(ctx context.Context, req Request) (time.Time, time.Time, error) {
	start, end := req.Start, req.End
	if start.IsZero() || end.IsZero() {
		first, last, err := bt.store.DateBounds(ctx, req.Key)
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", req.Key, ErrNoBars)
		}
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("date bounds %s: %w", req.Key, err)
		}
		if start.IsZero() {
			start = first
		}
		if end.IsZero() {
			end = last
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidConfig, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}
