package store

import (
	"context"
	"sync"
	"time"

	"duckweb/internal/domain"
)

var _ BarStore = (*MemoryStore)(nil)

// MemoryStore is an in-process BarStore, used for tests and CSV-only runs.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[SeriesKey][]domain.Bar
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[SeriesKey][]domain.Bar)}
}

func (s *MemoryStore) WriteBars(_ context.Context, key SeriesKey, bars []domain.Bar) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[key] = MergeBars(s.series[key], bars)
	return nil
}

func (s *MemoryStore) ReadBars(_ context.Context, key SeriesKey, start, end time.Time) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Bar
	for _, b := range s.series[key] {
		if inRange(b.Timestamp, start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListSeries(_ context.Context) ([]SeriesKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]SeriesKey, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	SortSeries(keys)
	return keys, nil
}

func (s *MemoryStore) DateBounds(_ context.Context, key SeriesKey) (time.Time, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bars := s.series[key]
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	return bars[0].Timestamp, bars[len(bars)-1].Timestamp, nil
}
