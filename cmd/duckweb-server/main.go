package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"duckweb/internal/api"
	"duckweb/internal/config"
	"duckweb/internal/httpapi"
	"duckweb/internal/observability"
	"duckweb/internal/store/backend"
	"duckweb/internal/strategy"
	"duckweb/internal/strategy/builtins"
	"duckweb/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validating config: %v", err)
	}

	logger := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := observability.NewMetrics("duckweb")

	barStore, closeStore, err := backend.Open(ctx, cfg.Storage, logger)
	if err != nil {
		log.Fatalf("opening bar store: %v", err)
	}
	defer closeStore()

	rrs, err := cfg.Backtest.RiskRewardSettings()
	if err != nil {
		log.Fatalf("risk-reward settings: %v", err)
	}

	instrumented := backend.Instrument(barStore, metrics)
	bt := strategy.NewBacktester(instrumented, builtins.NewRegistry(), logger)
	bt.SetMetrics(metrics)

	h := httpapi.NewServer(instrumented, bt, httpapi.Defaults{
		RiskRewards: rrs,
		Workers:     cfg.Backtest.Workers,
		WarmupBars:  cfg.Backtest.WarmupBars,
	}, metrics, logger)

	srv := api.NewServer(cfg.Server, h.Handler(), api.NewBacktestService(h, logger), metrics, logger)

	logger.Info("duckweb-server starting",
		"http", cfg.Server.HTTPAddr(),
		"grpc", cfg.Server.GRPCAddr(),
		"bar_source", cfg.Storage.BarSource,
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("duckweb-server stopped")
}
