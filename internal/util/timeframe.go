package util

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeframe is returned for timeframe names that do not parse.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// TimeUnit is the unit of a bar timeframe.
type TimeUnit string

const (
	Minute TimeUnit = "min"
	Hour   TimeUnit = "hour"
	Day    TimeUnit = "day"
	Week   TimeUnit = "week"
)

// Timeframe is a bar width such as 5min or 1day.
type Timeframe struct {
	N    int
	Unit TimeUnit
}

var timeframeRe = regexp.MustCompile(`^(\d+)\s*(m|min|mins|minute|minutes|h|hr|hour|hours|d|day|days|daily|w|wk|week|weeks)$`)

// ParseTimeframe accepts names like "1min", "5min", "1hour", "1day", "1d",
// "1w" and the bare words "daily" and "weekly".
func ParseTimeframe(s string) (Timeframe, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "daily":
		return Timeframe{N: 1, Unit: Day}, nil
	case "weekly":
		return Timeframe{N: 1, Unit: Week}, nil
	}
	m := timeframeRe.FindStringSubmatch(v)
	if m == nil {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	var unit TimeUnit
	switch m[2][0] {
	case 'm':
		unit = Minute
	case 'h':
		unit = Hour
	case 'd':
		unit = Day
	default:
		unit = Week
	}
	return Timeframe{N: n, Unit: unit}, nil
}

// String renders the canonical series name, e.g. "5min" or "1day".
func (tf Timeframe) String() string {
	return fmt.Sprintf("%d%s", tf.N, tf.Unit)
}

// Duration is the nominal width of one bar.
func (tf Timeframe) Duration() time.Duration {
	var unit time.Duration
	switch tf.Unit {
	case Minute:
		unit = time.Minute
	case Hour:
		unit = time.Hour
	case Day:
		unit = 24 * time.Hour
	default:
		unit = 7 * 24 * time.Hour
	}
	return time.Duration(tf.N) * unit
}

// Intraday reports whether bars are narrower than a day.
func (tf Timeframe) Intraday() bool {
	return tf.Unit == Minute || tf.Unit == Hour
}

// WarmupStart returns a start time early enough that at least bars bars of
// this timeframe precede start. Markets trade about five days in seven and
// intraday sessions cover roughly a quarter of the day, so the lookback is
// padded accordingly.
func (tf Timeframe) WarmupStart(start time.Time, bars int) time.Time {
	if bars <= 0 {
		return start
	}
	span := time.Duration(bars) * tf.Duration()
	if tf.Intraday() {
		span *= 4
	}
	span = span * 7 / 5
	return start.Add(-span - 7*24*time.Hour)
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", time.DateOnly}

// ParseDate parses RFC3339, "2006-01-02 15:04:05" or "2006-01-02" in UTC.
// The second result is true when s carried only a date.
func ParseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), layout == time.DateOnly, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse date %q", s)
}

// ParseDateRange parses optional start and end strings. An empty string
// yields the zero time. A date-only end extends to the last nanosecond of
// that day so the whole day is included.
func ParseDateRange(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	if start != "" {
		t, _, err := ParseDate(start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	if end != "" {
		t, dateOnly, err := ParseDate(end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if dateOnly {
			t = EndOfDay(t)
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s before start %s", end, start)
	}
	return from, to, nil
}

// EndOfDay returns the last nanosecond of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
