package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"duckweb/internal/config"
	"duckweb/internal/gather"
	"duckweb/internal/observability"
	"duckweb/internal/store/backend"
	"duckweb/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides gather.symbols")
	timeframe := flag.String("timeframe", "", "bar timeframe, overrides gather.timeframe")
	start := flag.String("start", "", "start date, overrides gather.start_date")
	end := flag.String("end", "", "end date, overrides gather.end_date")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validating config: %v", err)
	}
	if *symbols != "" {
		cfg.Gather.Symbol = ""
		cfg.Gather.Symbols = strings.Split(*symbols, ",")
	}
	if *timeframe != "" {
		cfg.Gather.Timeframe = *timeframe
	}
	if *start != "" {
		cfg.Gather.StartDate = *start
	}
	if *end != "" {
		cfg.Gather.EndDate = *end
	}

	logger := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials missing: set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	barStore, closeStore, err := backend.Open(ctx, cfg.Storage, logger)
	if err != nil {
		log.Fatalf("opening bar store: %v", err)
	}
	defer closeStore()

	metrics := observability.NewMetrics("duckweb")
	g, err := gather.NewAlpacaBarGatherer(cfg.Alpaca, cfg.Gather, backend.Instrument(barStore, metrics), metrics)
	if err != nil {
		log.Fatalf("creating gatherer: %v", err)
	}

	if err := g.Run(ctx); err != nil {
		logger.Error("gather failed", "gatherer", g.Name(), "error", err)
		closeStore()
		os.Exit(1)
	}
	logger.Info("gather complete", "gatherer", g.Name())
}
