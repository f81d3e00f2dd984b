// Package gather fetches bar series from market-data providers into a
// BarStore.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches everything the gatherer is configured for. It returns when
	// done or when ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Chunks splits r into consecutive windows of at most step. Windows share no
// instant: each starts right after the previous one ends.
func (r DateRange) Chunks(step time.Duration) []DateRange {
	if step <= 0 || !r.End.After(r.Start) {
		return []DateRange{r}
	}
	var out []DateRange
	for s := r.Start; !s.After(r.End); {
		e := s.Add(step - time.Nanosecond)
		if e.After(r.End) {
			e = r.End
		}
		out = append(out, DateRange{Start: s, End: e})
		s = e.Add(time.Nanosecond)
	}
	return out
}
