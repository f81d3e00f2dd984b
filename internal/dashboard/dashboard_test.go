package dashboard

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"duckweb/internal/backtest"
	"duckweb/internal/domain"
)

func sampleRuns() []backtest.Run {
	return []backtest.Run{
		{RiskReward: backtest.Ratio(1), Summary: backtest.Summary{
			TradeCount: 3, WinCount: 2, LossCount: 1, WinRate: 200.0 / 3,
			Expectancy: 1.005, MaxDrawdown: 4, CumulativePnL: 3.015,
		}},
		{RiskReward: backtest.Ratio(2), Summary: backtest.Summary{
			TradeCount: 1234, WinCount: 600, LossCount: 634, WinRate: 48.62,
			Expectancy: -0.5, MaxDrawdown: 1.5, CumulativePnL: 10,
		}},
		{RiskReward: backtest.UntilFlip},
	}
}

func TestFormatInt(t *testing.T) {
	tests := map[int]string{0: "0", 999: "999", 1000: "1,000", 1234567: "1,234,567", -45000: "-45,000"}
	for in, want := range tests {
		if got := FormatInt(in); got != want {
			t.Errorf("FormatInt(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatFixed(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.005, "1.01"},
		{-0.5, "-0.50"},
		{2, "2.00"},
		{math.NaN(), "-"},
	}
	for _, tt := range tests {
		if got := FormatPoints(tt.in); got != tt.want {
			t.Errorf("FormatPoints(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatPercent(200.0 / 3); got != "66.67%" {
		t.Errorf("FormatPercent = %q, want %q", got, "66.67%")
	}
	if got := FormatChange(0.0125); got != "+1.25%" {
		t.Errorf("FormatChange = %q, want %q", got, "+1.25%")
	}
}

func TestSummaryRows(t *testing.T) {
	rows := SummaryRows(sampleRuns())
	if len(rows) != 3 {
		t.Fatalf("SummaryRows returned %d rows, want 3", len(rows))
	}

	r := rows[0]
	if r.RiskReward != "1.0" || r.WinRate != "66.67%" || r.Expectancy != "1.01" || r.CumulativePnL != "3.02" {
		t.Errorf("row 0 = %+v", r)
	}
	if rows[1].Cells()[5] != "1,234" {
		t.Errorf("trade count cell = %q, want %q", rows[1].Cells()[5], "1,234")
	}
	if rows[2].RiskReward != backtest.UntilFlipLabel || rows[2].WinRate != "0.00%" {
		t.Errorf("zero-trade row = %+v", rows[2])
	}
}

func TestSummaryRowInsufficient(t *testing.T) {
	run := backtest.Run{
		RiskReward: backtest.Ratio(2),
		Result:     backtest.Result{Equity: []float64{0}, Insufficient: true},
	}
	r := NewSummaryRow(run)
	if !r.Insufficient {
		t.Errorf("row %+v not marked insufficient", r)
	}
	if r.Trades != 0 || r.WinRate != "0.00%" {
		t.Errorf("insufficient row = %+v", r)
	}
	if rows := SummaryRows(sampleRuns()); rows[0].Insufficient {
		t.Errorf("row 0 unexpectedly insufficient")
	}
}

func TestSortRows(t *testing.T) {
	rows := SummaryRows(sampleRuns())
	SortRows(rows, SortPnL)
	if rows[0].RiskReward != "2.0" {
		t.Errorf("PnL sort first = %q, want %q", rows[0].RiskReward, "2.0")
	}

	SortRows(rows, SortDrawdown)
	if rows[0].RiskReward != backtest.UntilFlipLabel {
		t.Errorf("drawdown sort first = %q", rows[0].RiskReward)
	}

	if ParseSortMode("WIN%") != SortWinRate || ParseSortMode("bogus") != SortSweep {
		t.Error("ParseSortMode mismatch")
	}
}

func TestTradeRows(t *testing.T) {
	entry := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	rows := TradeRows([]domain.Trade{{
		EntryTime: entry, ExitTime: entry.Add(15 * time.Minute),
		Direction: domain.Long, EntryPrice: 100, ExitPrice: 104.5, Points: 4.5,
		Reason: domain.ExitTarget,
	}})
	want := TradeRow{
		EntryTime: "2024-02-01 09:30", ExitTime: "2024-02-01 09:45", Direction: "long",
		EntryPrice: "100.00", ExitPrice: "104.50", Points: "4.50", Reason: "target",
	}
	if rows[0] != want {
		t.Errorf("TradeRows = %+v, want %+v", rows[0], want)
	}
	if got := FormatTime(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)); got != "2024-02-01" {
		t.Errorf("FormatTime(daily) = %q", got)
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderCSV(&buf, SummaryRows(sampleRuns())[:2]); err != nil {
		t.Fatalf("RenderCSV error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("RenderCSV wrote %d lines, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[0], "R:R,Win Rate,") {
		t.Errorf("header = %q", lines[0])
	}
	if lines[2] != "2.0,48.62%,-0.50,1.50,10.00,1234,600,634" {
		t.Errorf("row = %q", lines[2])
	}
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderMarkdown(&buf, SummaryRows(sampleRuns())[2:]); err != nil {
		t.Fatalf("RenderMarkdown error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("RenderMarkdown wrote %d lines, want 3", len(lines))
	}
	if !strings.HasPrefix(lines[1], "| --- |") {
		t.Errorf("separator = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "| Until Opposite Signal | 0.00% |") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestComputeOverview(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	o := ComputeOverview([]domain.Bar{
		{Timestamp: t0, Open: 100, High: 105, Low: 98, Close: 102},
		{Timestamp: t0.AddDate(0, 0, 1), Open: 102, High: 110, Low: 101, Close: 108},
		{Timestamp: t0.AddDate(0, 0, 2), Open: 108, High: 109, Low: 95, Close: 105},
	})
	if o.Bars != 3 || o.High != 110 || o.Low != 95 || o.Latest != 105 {
		t.Errorf("ComputeOverview = %+v", o)
	}
	if math.Abs(o.Change-0.05) > 1e-12 {
		t.Errorf("Change = %v, want 0.05", o.Change)
	}
	if (ComputeOverview(nil) != Overview{}) {
		t.Error("empty overview should be zero")
	}
}
