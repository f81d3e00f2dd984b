package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"duckweb/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ BarStore = (*SQLiteStore)(nil)

// SQLiteStore implements BarStore with one table per series, named
// "<index>_<timeframe>" and keyed by Unix-millisecond timestamp.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createTableSQL(key SeriesKey) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
	ts          INTEGER PRIMARY KEY,
	symbol      TEXT NOT NULL,
	open        REAL NOT NULL,
	high        REAL NOT NULL,
	low         REAL NOT NULL,
	close       REAL NOT NULL,
	volume      INTEGER NOT NULL DEFAULT 0,
	trade_count INTEGER NOT NULL DEFAULT 0,
	vwap        REAL NOT NULL DEFAULT 0
)`, key.String())
}

// WriteBars upserts bars in one transaction, creating the table on first use.
func (s *SQLiteStore) WriteBars(ctx context.Context, key SeriesKey, bars []domain.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableSQL(key)); err != nil {
		return fmt.Errorf("creating table %s: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %q (ts, symbol, open, high, low, close, volume, trade_count, vwap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET
			symbol = excluded.symbol, open = excluded.open, high = excluded.high,
			low = excluded.low, close = excluded.close, volume = excluded.volume,
			trade_count = excluded.trade_count, vwap = excluded.vwap`, key.String()))
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", key, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Timestamp.UnixMilli(), b.Symbol,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.TradeCount, b.VWAP); err != nil {
			return fmt.Errorf("inserting bar into %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// ReadBars returns an empty result when the table does not exist.
func (s *SQLiteStore) ReadBars(ctx context.Context, key SeriesKey, start, end time.Time) ([]domain.Bar, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	ok, err := s.tableExists(ctx, key)
	if err != nil || !ok {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT ts, symbol, open, high, low, close, volume, trade_count, vwap
		FROM %q WHERE ts >= ? AND ts <= ? ORDER BY ts`, key.String()),
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", key, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b  domain.Bar
			ts int64
		)
		if err := rows.Scan(&ts, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradeCount, &b.VWAP); err != nil {
			return nil, err
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSeries returns every table whose name parses as a series key and that
// holds at least one row.
func (s *SQLiteStore) ListSeries(ctx context.Context) ([]SeriesKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var keys []SeriesKey
	for _, name := range names {
		k, err := ParseSeriesKey(name)
		if err != nil {
			continue
		}
		var n int
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&n); err != nil {
			return nil, err
		}
		if n > 0 {
			keys = append(keys, k)
		}
	}
	SortSeries(keys)
	return keys, nil
}

func (s *SQLiteStore) DateBounds(ctx context.Context, key SeriesKey) (time.Time, time.Time, error) {
	if err := key.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	ok, err := s.tableExists(ctx, key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		return time.Time{}, time.Time{}, ErrNotFound
	}

	var first, last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT MIN(ts), MAX(ts) FROM %q`, key.String())).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !first.Valid {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	return time.UnixMilli(first.Int64).UTC(), time.UnixMilli(last.Int64).UTC(), nil
}

func (s *SQLiteStore) tableExists(ctx context.Context, key SeriesKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, key.String()).Scan(&n)
	return n > 0, err
}
