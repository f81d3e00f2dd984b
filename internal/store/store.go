// Package store defines the bar storage interface and its file-backed and
// embedded implementations. Each series is addressed by an index name and a
// timeframe, e.g. nifty/5min, and is kept ascending by timestamp with one bar
// per timestamp.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"duckweb/internal/domain"
)

var (
	// ErrNotFound is returned when a requested series does not exist.
	ErrNotFound = errors.New("series not found")

	// ErrInvalidSeries is returned for series keys that are not plain
	// lower-case identifiers.
	ErrInvalidSeries = errors.New("invalid series key")
)

var identRe = regexp.MustCompile(`^[a-z0-9]+$`)

// SeriesKey addresses one bar series.
type SeriesKey struct {
	Index     string `json:"index"`
	Timeframe string `json:"timeframe"`
}

// NewSeriesKey lower-cases and validates index and timeframe.
func NewSeriesKey(index, timeframe string) (SeriesKey, error) {
	k := SeriesKey{Index: strings.ToLower(strings.TrimSpace(index)), Timeframe: strings.ToLower(strings.TrimSpace(timeframe))}
	return k, k.Validate()
}

// ParseSeriesKey parses "<index>_<timeframe>".
func ParseSeriesKey(s string) (SeriesKey, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 {
		return SeriesKey{}, fmt.Errorf("%w: %q", ErrInvalidSeries, s)
	}
	return NewSeriesKey(s[:i], s[i+1:])
}

// Validate checks that both parts are non-empty [a-z0-9] identifiers. Keys
// are used verbatim as table names and path segments.
func (k SeriesKey) Validate() error {
	if !identRe.MatchString(k.Index) || !identRe.MatchString(k.Timeframe) {
		return fmt.Errorf("%w: %q/%q", ErrInvalidSeries, k.Index, k.Timeframe)
	}
	return nil
}

// String returns "<index>_<timeframe>", the table name of the series.
func (k SeriesKey) String() string {
	return k.Index + "_" + k.Timeframe
}

// BarStore persists and retrieves OHLCV bar series.
type BarStore interface {
	// WriteBars upserts bars into the series, keyed by timestamp.
	WriteBars(ctx context.Context, key SeriesKey, bars []domain.Bar) error

	// ReadBars returns the bars of the series within [start, end], ascending.
	// A missing series yields an empty result.
	ReadBars(ctx context.Context, key SeriesKey, start, end time.Time) ([]domain.Bar, error)

	// ListSeries returns all series with at least one bar, sorted.
	ListSeries(ctx context.Context) ([]SeriesKey, error)

	// DateBounds returns the first and last bar timestamps of the series, or
	// ErrNotFound.
	DateBounds(ctx context.Context, key SeriesKey) (first, last time.Time, err error)
}

// SortSeries orders keys by index, then timeframe.
func SortSeries(keys []SeriesKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Index != keys[j].Index {
			return keys[i].Index < keys[j].Index
		}
		return keys[i].Timeframe < keys[j].Timeframe
	})
}

// MergeBars deduplicates by timestamp, preferring incoming bars, and returns
// the result ascending.
func MergeBars(existing, incoming []domain.Bar) []domain.Bar {
	seen := make(map[int64]domain.Bar, len(existing)+len(incoming))
	for _, b := range existing {
		seen[b.Timestamp.UnixMilli()] = b
	}
	for _, b := range incoming {
		seen[b.Timestamp.UnixMilli()] = b
	}

	merged := make([]domain.Bar, 0, len(seen))
	for _, b := range seen {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// inRange reports whether t lies in [start, end].
func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
