package backend

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckweb/internal/config"
	"duckweb/internal/domain"
	"duckweb/internal/observability"
	"duckweb/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOpenFileBackends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Storage
		want any
	}{
		{"parquet", config.Storage{BarSource: config.SourceParquet, DataDir: dir}, &store.ParquetStore{}},
		{"sqlite", config.Storage{BarSource: config.SourceSQLite, SQLitePath: filepath.Join(dir, "bars.db")}, &store.SQLiteStore{}},
		{"memory", config.Storage{BarSource: config.SourceMemory}, &store.MemoryStore{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closeFn, err := Open(context.Background(), tt.cfg, quiet)
			require.NoError(t, err)
			defer closeFn()
			assert.IsType(t, tt.want, s)

			key := store.SeriesKey{Index: "spy", Timeframe: "1day"}
			ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, s.WriteBars(context.Background(), key, []domain.Bar{{Symbol: "SPY", Timestamp: ts, Close: 500}}))
			got, err := s.ReadBars(context.Background(), key, ts, ts)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 500.0, got[0].Close)
		})
	}
}

func TestOpenUnknown(t *testing.T) {
	_, _, err := Open(context.Background(), config.Storage{BarSource: "duckdb"}, quiet)
	assert.Error(t, err)
}

func TestInstrument(t *testing.T) {
	mem := store.NewMemoryStore()
	assert.Same(t, store.BarStore(mem), Instrument(mem, nil))

	m := observability.NewMetrics("")
	s := Instrument(mem, m)
	key := store.SeriesKey{Index: "spy", Timeframe: "1day"}

	_, _, err := s.DateBounds(context.Background(), key)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreQueryErrors.WithLabelValues("date_bounds")))

	require.NoError(t, s.WriteBars(context.Background(), key, nil))
	_, err = s.ListSeries(context.Background())
	require.NoError(t, err)
}

func TestInstrumentReadBars(t *testing.T) {
	m := observability.NewMetrics("")
	s := Instrument(store.NewMemoryStore(), m)
	key := store.SeriesKey{Index: "spy", Timeframe: "1day"}

	assert.Equal(t, 0, testutil.CollectAndCount(m.StoreQueryDuration))
	_, err := s.ReadBars(context.Background(), key, time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(m.StoreQueryDuration))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreQueryErrors.WithLabelValues("read_bars")))
}
