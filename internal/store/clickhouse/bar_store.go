package clickhouse

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"duckweb/internal/domain"
	"duckweb/internal/store"
)

// BarStore implements store.BarStore using ClickHouse. Rewrites of a
// timestamp insert a newer version row; reads use FINAL so only the latest
// version is returned.
type BarStore struct {
	conn    *Conn
	version atomic.Uint64
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	s := &BarStore{conn: conn}
	s.version.Store(uint64(time.Now().UnixNano()))
	return s
}

// Compile-time interface check.
var _ store.BarStore = (*BarStore)(nil)

// WriteBars appends bars in a single batch.
func (s *BarStore) WriteBars(ctx context.Context, key store.SeriesKey, bars []domain.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			series, ts_ms, symbol, open, high, low, close, volume, trade_count, vwap, version
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := s.version.Add(1)
	for _, b := range bars {
		err = batch.Append(
			key.String(), b.Timestamp.UnixMilli(), b.Symbol,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.TradeCount, b.VWAP, version,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// ReadBars retrieves bars within [start, end] (inclusive), ordered by ts ASC.
func (s *BarStore) ReadBars(ctx context.Context, key store.SeriesKey, start, end time.Time) ([]domain.Bar, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ts_ms, symbol, open, high, low, close, volume, trade_count, vwap
		FROM bars FINAL
		WHERE series = ? AND ts_ms >= ? AND ts_ms <= ?
		ORDER BY ts_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, key.String(), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b  domain.Bar
			ts int64
		)
		if err := rows.Scan(&ts, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradeCount, &b.VWAP); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSeries returns the distinct series names that parse as keys.
func (s *BarStore) ListSeries(ctx context.Context) ([]store.SeriesKey, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT series FROM bars ORDER BY series`)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var keys []store.SeriesKey
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan series: %w", err)
		}
		if k, err := store.ParseSeriesKey(name); err == nil {
			keys = append(keys, k)
		}
	}
	store.SortSeries(keys)
	return keys, rows.Err()
}

func (s *BarStore) DateBounds(ctx context.Context, key store.SeriesKey) (time.Time, time.Time, error) {
	if err := key.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	var (
		count       uint64
		first, last int64
	)
	err := s.conn.QueryRow(ctx, `
		SELECT count(), min(ts_ms), max(ts_ms) FROM bars WHERE series = ?
	`, key.String()).Scan(&count, &first, &last)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("query bounds: %w", err)
	}
	if count == 0 {
		return time.Time{}, time.Time{}, store.ErrNotFound
	}
	return time.UnixMilli(first).UTC(), time.UnixMilli(last).UTC(), nil
}
