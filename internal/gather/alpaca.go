package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"duckweb/internal/config"
	"duckweb/internal/domain"
	"duckweb/internal/observability"
	"duckweb/internal/store"
	"duckweb/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ Gatherer = (*AlpacaBarGatherer)(nil)
var _ BarFetcher = (*marketdata.Client)(nil)

// BarFetcher fetches the bars of one symbol. *marketdata.Client implements
// it.
type BarFetcher interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Job maps a provider symbol to the series it is stored under.
type Job struct {
	Symbol string
	Key    store.SeriesKey
}

var nonIdent = regexp.MustCompile(`[^a-z0-9]+`)

// Jobs lists the symbols cfg asks for. gather.symbol is stored under
// gather.index when set; every symbol of gather.symbols is stored under its
// own lower-cased name with punctuation removed, so "BRK.B" becomes "brkb".
func Jobs(cfg config.GatherConfig) ([]Job, error) {
	var jobs []Job
	add := func(symbol, index string) error {
		if index == "" {
			index = nonIdent.ReplaceAllString(strings.ToLower(symbol), "")
		}
		key, err := store.NewSeriesKey(index, cfg.Timeframe)
		if err != nil {
			return fmt.Errorf("symbol %s: %w", symbol, err)
		}
		jobs = append(jobs, Job{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Key: key})
		return nil
	}
	if cfg.Symbol != "" {
		if err := add(cfg.Symbol, cfg.Index); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.Symbols {
		if err := add(s, ""); err != nil {
			return nil, err
		}
	}
	if len(jobs) == 0 {
		return nil, errors.New("no symbols configured")
	}
	return jobs, nil
}

// AlpacaTimeFrame converts a bar timeframe to its Alpaca equivalent.
func AlpacaTimeFrame(tf util.Timeframe) (marketdata.TimeFrame, error) {
	switch tf.Unit {
	case util.Minute:
		if tf.N > 59 {
			return marketdata.TimeFrame{}, fmt.Errorf("%w: alpaca minute bars go up to 59min, got %s", util.ErrInvalidTimeframe, tf)
		}
		return marketdata.NewTimeFrame(tf.N, marketdata.Min), nil
	case util.Hour:
		if tf.N > 23 {
			return marketdata.TimeFrame{}, fmt.Errorf("%w: alpaca hour bars go up to 23hour, got %s", util.ErrInvalidTimeframe, tf)
		}
		return marketdata.NewTimeFrame(tf.N, marketdata.Hour), nil
	case util.Day:
		if tf.N != 1 {
			return marketdata.TimeFrame{}, fmt.Errorf("%w: alpaca has only 1day bars, got %s", util.ErrInvalidTimeframe, tf)
		}
		return marketdata.OneDay, nil
	case util.Week:
		if tf.N != 1 {
			return marketdata.TimeFrame{}, fmt.Errorf("%w: alpaca has only 1week bars, got %s", util.ErrInvalidTimeframe, tf)
		}
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("%w: %s", util.ErrInvalidTimeframe, tf)
}

// ---------------------------------------------------------------------------
// AlpacaBarGatherer
// ---------------------------------------------------------------------------

// AlpacaBarGatherer gathers OHLCV bars for the configured symbols via the
// Alpaca market-data API and upserts them into a BarStore, one chunk of the
// date range at a time.
type AlpacaBarGatherer struct {
	client  BarFetcher
	store   store.BarStore
	jobs    []Job
	tf      util.Timeframe
	atf     marketdata.TimeFrame
	rng     DateRange
	feed    string
	limiter *util.RateLimiter
	metrics *observability.Metrics
	log     *slog.Logger

	// retry policy, overridable in tests
	attempts  int
	baseDelay time.Duration
}

// NewAlpacaBarGatherer creates a gatherer from configuration. An empty end
// date means now; an empty start date means one year before the end.
func NewAlpacaBarGatherer(ac config.Alpaca, gc config.GatherConfig, s store.BarStore, metrics *observability.Metrics) (*AlpacaBarGatherer, error) {
	opts := marketdata.ClientOpts{
		APIKey:    ac.APIKey,
		APISecret: ac.APISecret,
	}
	if ac.DataURL != "" {
		opts.BaseURL = ac.DataURL
	}
	return newAlpacaBarGatherer(marketdata.NewClient(opts), ac.Feed, gc, s, metrics, time.Now())
}

func newAlpacaBarGatherer(client BarFetcher, feed string, gc config.GatherConfig, s store.BarStore, metrics *observability.Metrics, now time.Time) (*AlpacaBarGatherer, error) {
	jobs, err := Jobs(gc)
	if err != nil {
		return nil, err
	}
	tf, err := util.ParseTimeframe(gc.Timeframe)
	if err != nil {
		return nil, err
	}
	atf, err := AlpacaTimeFrame(tf)
	if err != nil {
		return nil, err
	}

	start, end, err := util.ParseDateRange(gc.StartDate, gc.EndDate)
	if err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = now.UTC()
	}
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("gather range: end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	return &AlpacaBarGatherer{
		client:    client,
		store:     s,
		jobs:      jobs,
		tf:        tf,
		atf:       atf,
		rng:       DateRange{Start: start, End: end},
		feed:      feed,
		limiter:   util.NewRateLimiter(gc.RateLimitPerMin),
		metrics:   metrics,
		log:       slog.Default().With("gatherer", "alpaca-bars"),
		attempts:  3,
		baseDelay: 2 * time.Second,
	}, nil
}

// Name returns the gatherer identifier.
func (g *AlpacaBarGatherer) Name() string { return "alpaca-bars" }

// chunkSpan bounds one request window: a year of daily bars, a month of
// intraday bars.
func (g *AlpacaBarGatherer) chunkSpan() time.Duration {
	if g.tf.Intraday() {
		return 30 * 24 * time.Hour
	}
	return 366 * 24 * time.Hour
}

// Run fetches every job over the configured range. A symbol that keeps
// failing is logged and skipped; Run reports an error when any symbol failed.
func (g *AlpacaBarGatherer) Run(ctx context.Context) error {
	g.log.Info("starting gather",
		"symbols", len(g.jobs),
		"timeframe", g.tf.String(),
		"start", g.rng.Start.Format(time.DateOnly),
		"end", g.rng.End.Format(time.DateOnly),
	)

	var failed []string
	for _, job := range g.jobs {
		n, err := g.gatherJob(ctx, job)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			g.metrics.RecordGatherError(job.Symbol)
			g.log.Error("gather failed", "symbol", job.Symbol, "series", job.Key.String(), "error", err)
			failed = append(failed, job.Symbol)
			continue
		}
		g.log.Info("gathered", "symbol", job.Symbol, "series", job.Key.String(), "bars", n)
	}

	if len(failed) > 0 {
		return fmt.Errorf("gather failed for %d of %d symbols: %s", len(failed), len(g.jobs), strings.Join(failed, ", "))
	}
	g.metrics.MarkGatherSuccess(time.Now())
	return nil
}

func (g *AlpacaBarGatherer) gatherJob(ctx context.Context, job Job) (int, error) {
	total := 0
	for _, chunk := range g.rng.Chunks(g.chunkSpan()) {
		bars, err := g.fetch(ctx, job.Symbol, chunk)
		if err != nil {
			return total, err
		}
		if len(bars) == 0 {
			continue
		}
		if err := g.store.WriteBars(ctx, job.Key, bars); err != nil {
			return total, fmt.Errorf("writing %s: %w", job.Key, err)
		}
		total += len(bars)
		g.metrics.RecordGathered(job.Key.String(), len(bars))
	}
	return total, nil
}

func (g *AlpacaBarGatherer) fetch(ctx context.Context, symbol string, r DateRange) ([]domain.Bar, error) {
	var raw []marketdata.Bar
	err := util.Retry(ctx, g.attempts, g.baseDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var err error
		raw, err = g.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: g.atf,
			Start:     r.Start,
			End:       r.End,
			Feed:      marketdata.Feed(g.feed),
		})
		if err != nil {
			g.log.Warn("GetBars failed", "symbol", symbol, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, g.toBar(symbol, ab))
	}
	return bars, nil
}

// toBar converts an Alpaca bar. Daily and weekly bars are stamped at
// midnight UTC of their session date so date-only range filters match them.
func (g *AlpacaBarGatherer) toBar(symbol string, ab marketdata.Bar) domain.Bar {
	ts := ab.Timestamp.UTC()
	if !g.tf.Intraday() {
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return domain.Bar{
		Symbol:     symbol,
		Timestamp:  ts,
		Open:       ab.Open,
		High:       ab.High,
		Low:        ab.Low,
		Close:      ab.Close,
		Volume:     int64(ab.Volume),
		TradeCount: int64(ab.TradeCount),
		VWAP:       ab.VWAP,
	}
}
