package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"duckweb/internal/domain"
)

var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadCSV parses OHLCV rows into an ascending, de-duplicated series. Columns
// are matched by header name (datetime/date/timestamp/time, open, high, low,
// close, volume) when a header row is present, and taken in that order
// otherwise. Timestamps may be in any of csvTimeLayouts (read as UTC) or Unix
// seconds or milliseconds. UTF-8 and UTF-16 byte-order marks are honoured.
func ReadCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	cols := map[string]int{"ts": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}
	var bars []domain.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line == 1 && isHeader(rec) {
			cols = headerColumns(rec)
			continue
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		b, err := parseCSVBar(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		b.Symbol = symbol
		bars = append(bars, b)
	}
	return MergeBars(nil, bars), nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := parseCSVTime(rec[0])
	return err != nil
}

func headerColumns(rec []string) map[string]int {
	cols := make(map[string]int)
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "datetime", "date", "timestamp", "timestamp_ms", "time", "ts":
			if _, ok := cols["ts"]; !ok {
				cols["ts"] = i
			}
		case "open", "o":
			cols["open"] = i
		case "high", "h":
			cols["high"] = i
		case "low", "l":
			cols["low"] = i
		case "close", "c":
			cols["close"] = i
		case "volume", "vol", "v":
			cols["volume"] = i
		}
	}
	return cols
}

func parseCSVBar(rec []string, cols map[string]int) (domain.Bar, error) {
	field := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}

	var b domain.Bar
	ts, ok := field("ts")
	if !ok {
		return b, errors.New("missing timestamp column")
	}
	t, err := parseCSVTime(ts)
	if err != nil {
		return b, err
	}
	b.Timestamp = t

	for _, f := range []struct {
		name string
		dst  *float64
	}{{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}} {
		s, ok := field(f.name)
		if !ok {
			return b, fmt.Errorf("missing %s column", f.name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("parsing %s %q: %w", f.name, s, err)
		}
		*f.dst = v
	}

	if s, ok := field("volume"); ok && s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("parsing volume %q: %w", s, err)
		}
		b.Volume = int64(v)
	}
	return b, nil
}

func parseCSVTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
