// Package backend opens the bar store selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duckweb/internal/config"
	"duckweb/internal/domain"
	"duckweb/internal/observability"
	"duckweb/internal/store"
	"duckweb/internal/store/clickhouse"
	"duckweb/internal/store/postgres"
)

// Open returns the configured BarStore and a function releasing its
// connections. Server-backed stores are migrated before use.
func Open(ctx context.Context, cfg config.Storage, log *slog.Logger) (store.BarStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.BarSource {
	case config.SourceParquet, "":
		log.Info("using parquet bar store", "data_dir", cfg.DataDir)
		return store.NewParquetStore(cfg.DataDir), noop, nil

	case config.SourceSQLite:
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info("using sqlite bar store", "path", cfg.SQLitePath)
		return s, s.Close, nil

	case config.SourceClickHouse:
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := clickhouse.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		log.Info("using clickhouse bar store")
		return clickhouse.NewBarStore(conn), conn.Close, nil

	case config.SourcePostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info("using postgres bar store")
		return postgres.NewBarStore(pool), func() error { pool.Close(); return nil }, nil

	case config.SourceMemory:
		log.Info("using in-memory bar store")
		return store.NewMemoryStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown bar source %q", cfg.BarSource)
	}
}

// ---------------------------------------------------------------------------
// Instrumented store
// ---------------------------------------------------------------------------

// Instrumented records call durations and errors of a BarStore.
type Instrumented struct {
	store.BarStore
	metrics *observability.Metrics
}

// Instrument wraps s. With nil metrics s is returned unchanged.
func Instrument(s store.BarStore, m *observability.Metrics) store.BarStore {
	if m == nil {
		return s
	}
	return &Instrumented{BarStore: s, metrics: m}
}

func (i *Instrumented) WriteBars(ctx context.Context, key store.SeriesKey, bars []domain.Bar) error {
	start := time.Now()
	err := i.BarStore.WriteBars(ctx, key, bars)
	i.metrics.RecordStoreCall("write_bars", time.Since(start), err)
	return err
}

func (i *Instrumented) ReadBars(ctx context.Context, key store.SeriesKey, from, to time.Time) ([]domain.Bar, error) {
	start := time.Now()
	bars, err := i.BarStore.ReadBars(ctx, key, from, to)
	i.metrics.RecordStoreCall("read_bars", time.Since(start), err)
	return bars, err
}

func (i *Instrumented) ListSeries(ctx context.Context) ([]store.SeriesKey, error) {
	start := time.Now()
	keys, err := i.BarStore.ListSeries(ctx)
	i.metrics.RecordStoreCall("list_series", time.Since(start), err)
	return keys, err
}

func (i *Instrumented) DateBounds(ctx context.Context, key store.SeriesKey) (time.Time, time.Time, error) {
	start := time.Now()
	first, last, err := i.BarStore.DateBounds(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		i.metrics.RecordStoreCall("date_bounds", time.Since(start), nil)
	} else {
		i.metrics.RecordStoreCall("date_bounds", time.Since(start), err)
	}
	return first, last, err
}
