package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"duckweb/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk, one file per
// series and calendar year.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

func toRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     b.Symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func (r BarRecord) toBar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars grouped by year, merging with any existing file:
//
//	<DataDir>/<index>/<timeframe>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, key SeriesKey, bars []domain.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		y := b.Timestamp.UTC().Year()
		groups[y] = append(groups[y], toRecord(b))
	}

	for year, records := range groups {
		path := s.barPath(key, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", key, year, err)
		}
	}
	return nil
}

// ReadBars reads the year files overlapping [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, key SeriesKey, start, end time.Time) ([]domain.Bar, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	years, err := s.years(key)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for _, year := range years {
		if year < start.UTC().Year() || year > end.UTC().Year() {
			continue
		}
		records, err := readParquetFile[BarRecord](s.barPath(key, year))
		if err != nil {
			return nil, fmt.Errorf("reading %s/%d: %w", key, year, err)
		}
		for _, r := range records {
			b := r.toBar()
			if inRange(b.Timestamp, start, end) {
				bars = append(bars, b)
			}
		}
	}
	return bars, nil
}

// ListSeries walks <DataDir>/<index>/<timeframe> directories that hold at
// least one year file.
func (s *ParquetStore) ListSeries(_ context.Context) ([]SeriesKey, error) {
	indexes, err := os.ReadDir(s.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []SeriesKey
	for _, ie := range indexes {
		if !ie.IsDir() {
			continue
		}
		tfs, err := os.ReadDir(filepath.Join(s.DataDir, ie.Name()))
		if err != nil {
			return nil, err
		}
		for _, te := range tfs {
			k := SeriesKey{Index: ie.Name(), Timeframe: te.Name()}
			if !te.IsDir() || k.Validate() != nil {
				continue
			}
			if years, _ := s.years(k); len(years) > 0 {
				keys = append(keys, k)
			}
		}
	}
	SortSeries(keys)
	return keys, nil
}

// DateBounds reads the first and last year files.
func (s *ParquetStore) DateBounds(_ context.Context, key SeriesKey) (time.Time, time.Time, error) {
	if err := key.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	years, err := s.years(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(years) == 0 {
		return time.Time{}, time.Time{}, ErrNotFound
	}

	first, err := readParquetFile[BarRecord](s.barPath(key, years[0]))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	last := first
	if len(years) > 1 {
		if last, err = readParquetFile[BarRecord](s.barPath(key, years[len(years)-1])); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if len(first) == 0 || len(last) == 0 {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	// Files are written sorted by mergeBarRecords.
	return first[0].toBar().Timestamp, last[len(last)-1].toBar().Timestamp, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<index>/<timeframe>/<YYYY>.parquet
func (s *ParquetStore) barPath(key SeriesKey, year int) string {
	return filepath.Join(s.DataDir, key.Index, key.Timeframe, strconv.Itoa(year)+".parquet")
}

// years lists the year files of a series, ascending.
func (s *ParquetStore) years(key SeriesKey) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, key.Index, key.Timeframe))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if !ok || e.IsDir() {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
