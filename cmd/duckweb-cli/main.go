package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"duckweb/internal/config"
	"duckweb/internal/dashboard"
	"duckweb/internal/httpapi"
	"duckweb/internal/store"
	"duckweb/internal/store/backend"
	"duckweb/internal/strategy"
	"duckweb/internal/strategy/builtins"
	"duckweb/pkg/duckweb"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: duckweb-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                              Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  series                               List stored series and their date ranges\n")
	fmt.Fprintf(os.Stderr, "  import <csv> <index> <timeframe>     Load OHLCV bars from a CSV file\n")
	fmt.Fprintf(os.Stderr, "  backtest [options]                   Run a risk-reward sweep on the local store\n")
	fmt.Fprintf(os.Stderr, "  remote [options]                     Run a risk-reward sweep on duckweb-server\n")
	fmt.Fprintf(os.Stderr, "\nRun 'duckweb-cli <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("duckweb-cli %s\n", version)
	case "series":
		err = runSeries(ctx)
	case "import":
		err = runImport(ctx, os.Args[2:])
	case "backtest":
		err = runBacktest(ctx, os.Args[2:])
	case "remote":
		err = runRemote(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openStore loads the config and opens its bar store. Logs go to stderr so
// tables on stdout stay clean.
func openStore(ctx context.Context) (*config.Config, store.BarStore, func() error, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	s, closeFn, err := backend.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, s, closeFn, nil
}

// ---------------------------------------------------------------------------
// series / import
// ---------------------------------------------------------------------------

func runSeries(ctx context.Context) error {
	_, s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	keys, err := s.ListSeries(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("no series stored")
		return nil
	}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		first, last, err := s.DateBounds(ctx, k)
		if err != nil {
			return err
		}
		rows = append(rows, []string{k.String(), dashboard.FormatTime(first), dashboard.FormatTime(last)})
	}
	fmt.Println(renderTable([]string{"Series", "First Bar", "Last Bar"}, rows, nil))
	return nil
}

func runImport(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: duckweb-cli import <csv> <index> <timeframe>")
	}
	key, err := store.NewSeriesKey(args[1], args[2])
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	bars, err := store.ReadCSV(f, strings.ToUpper(key.Index))
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	_, s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := s.WriteBars(ctx, key, bars); err != nil {
		return err
	}
	fmt.Printf("imported %s bars into %s\n", dashboard.FormatInt(len(bars)), key)
	return nil
}

// ---------------------------------------------------------------------------
// backtest / remote
// ---------------------------------------------------------------------------

type backtestFlags struct {
	params httpapi.BacktestParams
	rr     string
	warmup int
	format string
}

func parseBacktestFlags(name string, args []string, extra func(*flag.FlagSet)) (*backtestFlags, error) {
	bf := &backtestFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&bf.params.Index, "index", "", "series index, e.g. nifty")
	fs.StringVar(&bf.params.Timeframe, "timeframe", "", "series timeframe, e.g. 5min")
	fs.StringVar(&bf.params.Start, "start", "", "first trading date (default: first stored bar)")
	fs.StringVar(&bf.params.End, "end", "", "last trading date (default: last stored bar)")
	fs.StringVar(&bf.params.Indicator, "indicator", "", "sma, ema, macd or supertrend")
	fs.IntVar(&bf.params.Period, "period", 0, "MA or SuperTrend period")
	fs.IntVar(&bf.params.Fast, "fast", 0, "MACD fast period")
	fs.IntVar(&bf.params.Slow, "slow", 0, "MACD slow period")
	fs.IntVar(&bf.params.Signal, "signal", 0, "MACD signal period")
	fs.Float64Var(&bf.params.Multiplier, "multiplier", 0, "SuperTrend ATR multiplier")
	fs.StringVar(&bf.rr, "rr", "", "comma-separated risk-reward settings, e.g. 1,2,flip")
	fs.StringVar(&bf.params.Trades, "trades", "", "risk-reward whose trade history is shown")
	fs.StringVar(&bf.params.Sort, "sort", "", "row order: R:R, PNL, WIN%, EXP or DD")
	fs.IntVar(&bf.warmup, "warmup", -1, "bars loaded before start for indicator warm-up (default: 3x lookback)")
	fs.StringVar(&bf.format, "format", "table", "output format: table, csv or markdown")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if bf.params.Index == "" || bf.params.Timeframe == "" {
		return nil, fmt.Errorf("%s: -index and -timeframe are required", name)
	}
	if bf.rr != "" {
		bf.params.RR = strings.Split(bf.rr, ",")
	}
	if bf.warmup >= 0 {
		bf.params.Warmup = &bf.warmup
	}
	return bf, nil
}

func runBacktest(ctx context.Context, args []string) error {
	bf, err := parseBacktestFlags("backtest", args, nil)
	if err != nil {
		return err
	}
	cfg, s, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rrs, err := cfg.Backtest.RiskRewardSettings()
	if err != nil {
		return err
	}
	req, err := bf.params.Request(httpapi.Defaults{
		RiskRewards: rrs,
		Workers:     cfg.Backtest.Workers,
		WarmupBars:  cfg.Backtest.WarmupBars,
	})
	if err != nil {
		return err
	}
	// Without -indicator, sweep every configured indicator.
	if bf.params.Indicator == "" && len(cfg.Backtest.Indicators) > 0 {
		req.Indicators = cfg.Backtest.Indicators
	}

	bt := strategy.NewBacktester(s, builtins.NewRegistry(), slog.Default())
	started := time.Now()
	report, err := bt.Run(ctx, req)
	if err != nil {
		return err
	}
	res := httpapi.BuildResponse(report, bf.params)
	return printResult(os.Stdout, res, bf.format, time.Since(started))
}

func runRemote(ctx context.Context, args []string) error {
	var addr string
	bf, err := parseBacktestFlags("remote", args, func(fs *flag.FlagSet) {
		fs.StringVar(&addr, "addr", "localhost:9090", "duckweb-server gRPC address")
	})
	if err != nil {
		return err
	}
	c, err := duckweb.NewClient("", addr)
	if err != nil {
		return err
	}
	defer c.Close()

	started := time.Now()
	res, err := c.Backtest(ctx, bf.params)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res, bf.format, time.Since(started))
}

func printResult(w io.Writer, res httpapi.BacktestJSON, format string, elapsed time.Duration) error {
	switch strings.ToLower(format) {
	case "csv":
		for _, ir := range res.Results {
			if err := dashboard.RenderCSV(w, ir.Rows); err != nil {
				return err
			}
		}
		return nil
	case "markdown", "md":
		for _, ir := range res.Results {
			fmt.Fprintf(w, "### %s\n\n", ir.Indicator)
			if err := dashboard.RenderMarkdown(w, ir.Rows); err != nil {
				return err
			}
			fmt.Fprintln(w)
		}
		if res.Trades != nil {
			fmt.Fprintf(w, "### Trades: %s @ %s\n\n", res.Trades.Indicator, res.Trades.RiskReward)
			return dashboard.RenderTradesMarkdown(w, res.Trades.Rows)
		}
		return nil
	case "table", "":
		fmt.Fprintln(w, renderReport(res, elapsed))
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
