package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"duckweb/internal/domain"
	"duckweb/internal/store"
)

// BarStore implements store.BarStore using a single "bars" table keyed by
// (series, ts).
type BarStore struct {
	pool *Pool
}

// NewBarStore creates a new BarStore.
func NewBarStore(pool *Pool) *BarStore {
	return &BarStore{pool: pool}
}

// Compile-time interface check.
var _ store.BarStore = (*BarStore)(nil)

// WriteBars upserts bars in one batch.
func (s *BarStore) WriteBars(ctx context.Context, key store.SeriesKey, bars []domain.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO bars (series, ts, symbol, open, high, low, close, volume, trade_count, vwap)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (series, ts) DO UPDATE SET
			symbol = EXCLUDED.symbol, open = EXCLUDED.open, high = EXCLUDED.high,
			low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume,
			trade_count = EXCLUDED.trade_count, vwap = EXCLUDED.vwap
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, key.String(), b.Timestamp.UTC(), b.Symbol,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.TradeCount, b.VWAP)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert bar into %s: %w", key, err)
		}
	}
	return br.Close()
}

// ReadBars retrieves bars within [start, end] (inclusive), ordered by ts ASC.
func (s *BarStore) ReadBars(ctx context.Context, key store.SeriesKey, start, end time.Time) ([]domain.Bar, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ts, symbol, open, high, low, close, volume, trade_count, vwap
		FROM bars
		WHERE series = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, key.String(), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Timestamp, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradeCount, &b.VWAP); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSeries returns the distinct series names that parse as keys.
func (s *BarStore) ListSeries(ctx context.Context) ([]store.SeriesKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT series FROM bars ORDER BY series`)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan series: %w", err)
	}

	var keys []store.SeriesKey
	for _, name := range names {
		if k, err := store.ParseSeriesKey(name); err == nil {
			keys = append(keys, k)
		}
	}
	store.SortSeries(keys)
	return keys, nil
}

func (s *BarStore) DateBounds(ctx context.Context, key store.SeriesKey) (time.Time, time.Time, error) {
	if err := key.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	var first, last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MIN(ts), MAX(ts) FROM bars WHERE series = $1`, key.String()).Scan(&first, &last)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("query bounds: %w", err)
	}
	if first == nil || last == nil {
		return time.Time{}, time.Time{}, store.ErrNotFound
	}
	return first.UTC(), last.UTC(), nil
}
