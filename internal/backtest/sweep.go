package backtest

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"duckweb/internal/domain"
)

// Run is the simulation and summary of one risk-reward setting.
type Run struct {
	RiskReward RiskReward
	Result     Result
	Summary    Summary
}

// SweepOptions configures Sweep.
type SweepOptions struct {
	// Workers caps concurrent simulations. Zero means GOMAXPROCS.
	Workers int
	// OnRun is called as each run completes, possibly from several
	// goroutines at once.
	OnRun func(index int, run Run)
}

// Sweep simulates every risk-reward setting independently over the same bars
// and signal source. Runs execute concurrently and are joined before Sweep
// returns; the result order matches rrs. bars and src are only read.
func Sweep(ctx context.Context, bars []domain.Bar, src SignalSource, rrs []RiskReward, opts SweepOptions) ([]Run, error) {
	for _, rr := range rrs {
		if err := rr.Validate(); err != nil {
			return nil, err
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	runs := make([]Run, len(rrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rr := range rrs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := Simulate(bars, src, rr)
			runs[i] = Run{RiskReward: rr, Result: res, Summary: Summarize(res.Trades, res.Equity)}
			if opts.OnRun != nil {
				opts.OnRun(i, runs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return runs, nil
}
