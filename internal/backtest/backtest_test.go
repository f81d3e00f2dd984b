package backtest

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckweb/internal/domain"
	"duckweb/internal/indicator"
)

var t0 = time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

type ohlc struct{ o, h, l, c float64 }

func bars(rows ...ohlc) []domain.Bar {
	out := make([]domain.Bar, len(rows))
	for i, r := range rows {
		out[i] = domain.Bar{
			Symbol:    "NIFTY",
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:      r.o, High: r.h, Low: r.l, Close: r.c,
		}
	}
	return out
}

// fixedSource fires the given signals at fixed indexes with a constant stop.
func fixedSource(n int, stops float64, fired map[int]domain.Signal) *Series {
	s := &Series{Fired: make([]domain.Signal, n), Stops: make([]float64, n)}
	for i := range s.Stops {
		s.Stops[i] = stops
	}
	for i, sig := range fired {
		s.Fired[i] = sig
	}
	return s
}

func TestTargetScenario(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100},
		ohlc{104, 106, 102, 105},
		ohlc{105, 113, 104, 110},
	)
	src := fixedSource(3, 100, map[int]domain.Signal{1: domain.SignalBullish})

	res := Simulate(b, src, Ratio(2.0))
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, domain.Long, tr.Direction)
	assert.Equal(t, 104.0, tr.EntryPrice)
	assert.Equal(t, 112.0, tr.ExitPrice)
	assert.Equal(t, 8.0, tr.Points)
	assert.Equal(t, domain.ExitTarget, tr.Reason)
	assert.Equal(t, []float64{0, 8}, res.Equity)

	s := Summarize(res.Trades, res.Equity)
	assert.Equal(t, 100.0, s.WinRate)
	assert.Equal(t, 8.0, s.Expectancy)
	assert.Equal(t, 0.0, s.MaxDrawdown)
	assert.Equal(t, 8.0, s.CumulativePnL)
}

func TestStopBeforeTarget(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100},
		ohlc{104, 106, 102, 105},
		ohlc{105, 113, 99, 110},
	)
	src := fixedSource(3, 100, map[int]domain.Signal{1: domain.SignalBullish})

	res := Simulate(b, src, Ratio(2.0))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 100.0, res.Trades[0].ExitPrice)
	assert.Equal(t, -4.0, res.Trades[0].Points)
	assert.Equal(t, domain.ExitStop, res.Trades[0].Reason)
	assert.Equal(t, []float64{0, -4}, res.Equity)
}

func TestStopAboveLongEntryBooksProfit(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100},
		ohlc{104, 106, 102, 105},
		ohlc{105, 107, 103, 106},
	)
	src := fixedSource(3, 106, map[int]domain.Signal{1: domain.SignalBullish})

	target, ok := Position{Direction: domain.Long, EntryPrice: 104, StopLevel: 106}.Target(Ratio(2))
	require.True(t, ok)
	assert.Equal(t, 100.0, target)

	res := Simulate(b, src, Ratio(2))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.ExitStop, res.Trades[0].Reason)
	assert.Equal(t, 106.0, res.Trades[0].ExitPrice)
	assert.Equal(t, 2.0, res.Trades[0].Points)
}

func TestForcedCloseAtEnd(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100},
		ohlc{104, 106, 102, 105},
		ohlc{105, 107, 103, 106},
		ohlc{106, 108, 104, 107},
	)
	src := fixedSource(4, 100, map[int]domain.Signal{1: domain.SignalBullish})

	res := Simulate(b, src, Ratio(5.0))
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, 107.0, tr.ExitPrice)
	assert.Equal(t, 3.0, tr.Points)
	assert.Equal(t, domain.ExitEndOfData, tr.Reason)
	assert.Equal(t, b[3].Timestamp, tr.ExitTime)
	assert.Equal(t, []float64{0, 3}, res.Equity)
}

func TestFlipReentersSameBar(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100},
		ohlc{104, 106, 102, 105},
		ohlc{103, 104, 101, 102},
		ohlc{101, 102, 100, 101},
	)
	src := &Series{
		Fired: []domain.Signal{domain.SignalNone, domain.SignalBullish, domain.SignalBearish, domain.SignalNone},
		Stops: []float64{0, 95, 110, 110},
	}

	res := Simulate(b, src, UntilFlip)
	require.Len(t, res.Trades, 2)

	first, second := res.Trades[0], res.Trades[1]
	assert.Equal(t, domain.ExitFlip, first.Reason)
	assert.Equal(t, 103.0, first.ExitPrice)
	assert.Equal(t, -1.0, first.Points)

	assert.Equal(t, domain.Short, second.Direction)
	assert.Equal(t, first.ExitTime, second.EntryTime)
	assert.Equal(t, 103.0, second.EntryPrice)
	assert.Equal(t, domain.ExitEndOfData, second.Reason)
	assert.Equal(t, 2.0, second.Points)
}

func TestSameDirectionSignalIsNotFlip(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100},
		ohlc{104, 106, 102, 105},
		ohlc{105, 107, 103, 106},
		ohlc{106, 108, 104, 107},
	)
	src := fixedSource(4, 100, map[int]domain.Signal{1: domain.SignalBullish, 2: domain.SignalBullish})

	res := Simulate(b, src, UntilFlip)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, domain.ExitEndOfData, res.Trades[0].Reason)
}

func TestShortStopAndTarget(t *testing.T) {
	pos := Position{Direction: domain.Short, EntryPrice: 100, StopLevel: 104}

	target, ok := pos.Target(Ratio(1.5))
	require.True(t, ok)
	assert.Equal(t, 94.0, target)

	d, hit := Evaluate(pos, domain.Bar{Open: 99, High: 110, Low: 90}, domain.SignalNone, Ratio(1.5))
	require.True(t, hit)
	assert.Equal(t, ExitDecision{Price: 104, Reason: domain.ExitStop}, d)

	d, hit = Evaluate(pos, domain.Bar{Open: 99, High: 101, Low: 80}, domain.SignalNone, Ratio(1.5))
	require.True(t, hit)
	assert.Equal(t, ExitDecision{Price: 94, Reason: domain.ExitTarget}, d)

	_, hit = Evaluate(pos, domain.Bar{Open: 99, High: 101, Low: 80}, domain.SignalNone, UntilFlip)
	assert.False(t, hit)
}

func TestFlipOutranksStop(t *testing.T) {
	pos := Position{Direction: domain.Long, EntryPrice: 100, StopLevel: 98}
	d, hit := Evaluate(pos, domain.Bar{Open: 99, High: 120, Low: 90}, domain.SignalBearish, Ratio(1))
	require.True(t, hit)
	assert.Equal(t, ExitDecision{Price: 99, Reason: domain.ExitFlip}, d)
}

func TestZeroWidthStop(t *testing.T) {
	pos := Position{Direction: domain.Long, EntryPrice: 100, StopLevel: 100}
	target, ok := pos.Target(Ratio(3))
	require.True(t, ok)
	assert.Equal(t, 100.0, target)
}

func TestInsufficientData(t *testing.T) {
	res := Simulate(bars(ohlc{1, 1, 1, 1}), fixedSource(1, 0, nil), Ratio(1))
	assert.True(t, res.Insufficient)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []float64{0}, res.Equity)

	s := Summarize(res.Trades, res.Equity)
	assert.Equal(t, Summary{}, s)
}

func TestNoSignalsNoTrades(t *testing.T) {
	b := bars(ohlc{1, 2, 0, 1}, ohlc{1, 2, 0, 1}, ohlc{1, 2, 0, 1})
	src := NewSeries(domain.Closes(b), []float64{math.NaN(), math.NaN(), math.NaN()}, []float64{0, 0, 0})

	res := Simulate(b, src, Ratio(1))
	assert.True(t, res.Insufficient)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []float64{0}, res.Equity)
}

func TestWarmupLongerThanSeriesIsInsufficient(t *testing.T) {
	b := bars(
		ohlc{100, 101, 99, 100}, ohlc{101, 102, 100, 101}, ohlc{102, 103, 101, 102},
		ohlc{101, 102, 100, 101}, ohlc{100, 101, 99, 100},
	)
	closes := domain.Closes(b)
	ema, err := indicator.EMA(closes, 20)
	require.NoError(t, err)
	src := NewSeries(closes, ema, ema)
	assert.False(t, src.Defined())
	assert.False(t, src.Slice(2).Defined())

	res := Simulate(b, src, Ratio(2))
	assert.True(t, res.Insufficient)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []float64{0}, res.Equity)
}

func TestDefinedWithoutCrossIsNotInsufficient(t *testing.T) {
	b := bars(ohlc{1, 2, 0, 1}, ohlc{1, 2, 0, 1}, ohlc{1, 2, 0, 1})
	src := NewSeries(domain.Closes(b), []float64{0.5, 0.5, 0.5}, []float64{0, 0, 0})
	assert.True(t, src.Defined())

	res := Simulate(b, src, Ratio(1))
	assert.False(t, res.Insufficient)
	assert.Empty(t, res.Trades)
}

func TestSummarizeDrawdownAndLosses(t *testing.T) {
	trades := []domain.Trade{{Points: 5}, {Points: -3}, {Points: 0}, {Points: -4}, {Points: 6}}
	equity := []float64{0, 5, 2, 2, -2, 4}

	s := Summarize(trades, equity)
	assert.Equal(t, 5, s.TradeCount)
	assert.Equal(t, 2, s.WinCount)
	assert.Equal(t, 3, s.LossCount)
	assert.InDelta(t, 40.0, s.WinRate, 1e-9)
	assert.InDelta(t, 0.8, s.Expectancy, 1e-9)
	assert.Equal(t, 7.0, s.MaxDrawdown)
	assert.Equal(t, 4.0, s.CumulativePnL)
}

func TestMaxDrawdownPeakStartsAtZero(t *testing.T) {
	assert.Equal(t, 5.0, MaxDrawdown([]float64{0, -2, -5, -1}))
	assert.Equal(t, 0.0, MaxDrawdown([]float64{0, 1, 2}))
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

// randomWalk builds a deterministic bar series with an alternating signal
// source, for property checks.
func randomWalk(seed int64, n int) ([]domain.Bar, *Series) {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]ohlc, n)
	price := 100.0
	for i := range rows {
		o := price
		c := o + rng.NormFloat64()
		h := math.Max(o, c) + rng.Float64()
		l := math.Min(o, c) - rng.Float64()
		rows[i] = ohlc{o, h, l, c}
		price = c
	}
	b := bars(rows...)

	ref := make([]float64, n)
	for i := range ref {
		ref[i] = b[i].Close + math.Sin(float64(i)/3)
	}
	closes := domain.Closes(b)
	return b, NewSeries(closes, ref, ref)
}

func TestSimulateProperties(t *testing.T) {
	for _, rr := range DefaultRiskRewards() {
		t.Run(rr.Label(), func(t *testing.T) {
			b, src := randomWalk(42, 400)
			res := Simulate(b, src, rr)
			require.NotEmpty(t, res.Trades)

			var sum float64
			for k, tr := range res.Trades {
				sum += tr.Points
				assert.False(t, tr.ExitTime.Before(tr.EntryTime))
				if tr.Reason == domain.ExitFlip && k+1 < len(res.Trades) {
					assert.Equal(t, tr.ExitTime, res.Trades[k+1].EntryTime)
				}
			}
			assert.InDelta(t, sum, res.Equity[len(res.Equity)-1], 1e-9)
			assert.Len(t, res.Equity, len(res.Trades)+1)

			s := Summarize(res.Trades, res.Equity)
			assert.GreaterOrEqual(t, s.MaxDrawdown, 0.0)
			assert.Equal(t, s.TradeCount, s.WinCount+s.LossCount)

			again := Simulate(b, src, rr)
			assert.Equal(t, res, again)
		})
	}
}

func TestStopExitsFillAtStopLevel(t *testing.T) {
	b, src := randomWalk(7, 300)
	res := Simulate(b, src, Ratio(2))

	entryStop := make(map[time.Time]float64)
	for i := range b {
		entryStop[b[i].Timestamp] = src.StopLevelAt(i)
	}
	for _, tr := range res.Trades {
		stop := entryStop[tr.EntryTime]
		switch tr.Reason {
		case domain.ExitStop:
			assert.Equal(t, stop, tr.ExitPrice)
		case domain.ExitTarget:
			want, _ := Position{EntryPrice: tr.EntryPrice, StopLevel: stop}.Target(Ratio(2))
			assert.Equal(t, want, tr.ExitPrice)
		}
	}
}

func TestSweepKeepsOrder(t *testing.T) {
	b, src := randomWalk(3, 250)
	rrs := DefaultRiskRewards()

	var mu sync.Mutex
	seen := make(map[int]bool)
	runs, err := Sweep(context.Background(), b, src, rrs, SweepOptions{
		Workers: 3,
		OnRun: func(i int, _ Run) {
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.Len(t, runs, len(rrs))
	assert.Len(t, seen, len(rrs))

	for i, run := range runs {
		assert.Equal(t, rrs[i], run.RiskReward)
		want := Simulate(b, src, rrs[i])
		assert.Equal(t, want, run.Result)
		assert.Equal(t, Summarize(want.Trades, want.Equity), run.Summary)
	}
}

func TestSweepRejectsInvalidRatio(t *testing.T) {
	b, src := randomWalk(1, 10)
	_, err := Sweep(context.Background(), b, src, []RiskReward{Ratio(1), Ratio(-2)}, SweepOptions{})
	assert.ErrorIs(t, err, ErrInvalidRiskReward)
}

func TestSweepCancelled(t *testing.T) {
	b, src := randomWalk(1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sweep(ctx, b, src, DefaultRiskRewards(), SweepOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeriesSlice(t *testing.T) {
	s := &Series{
		Fired: []domain.Signal{domain.SignalNone, domain.SignalBullish, domain.SignalNone, domain.SignalBearish},
		Stops: []float64{1, 2, 3, 4},
	}
	sl := s.Slice(2)
	assert.Equal(t, 2, sl.Len())
	assert.Equal(t, domain.SignalBearish, sl.Classify(1))
	assert.Equal(t, 3.0, sl.StopLevelAt(0))
	assert.Equal(t, domain.SignalNone, sl.Classify(5))
}
