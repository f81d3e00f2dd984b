package dashboard

import (
	"duckweb/internal/domain"
)

// TradeRow is one line of the trade history of a selected configuration.
type TradeRow struct {
	EntryTime  string `json:"entry_time"`
	ExitTime   string `json:"exit_time"`
	Direction  string `json:"direction"`
	EntryPrice string `json:"entry_price"`
	ExitPrice  string `json:"exit_price"`
	Points     string `json:"points"`
	Reason     string `json:"reason"`
}

// TradeColumns are the TradeRow headers in table order.
var TradeColumns = []string{"Entry Time", "Exit Time", "Direction", "Entry Price", "Exit Price", "Points", "Exit"}

// TradeRows formats trades in chronological order.
func TradeRows(trades []domain.Trade) []TradeRow {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			EntryTime:  FormatTime(t.EntryTime),
			ExitTime:   FormatTime(t.ExitTime),
			Direction:  string(t.Direction),
			EntryPrice: FormatPoints(t.EntryPrice),
			ExitPrice:  FormatPoints(t.ExitPrice),
			Points:     FormatPoints(t.Points),
			Reason:     string(t.Reason),
		}
	}
	return rows
}

// Cells returns the row values in TradeColumns order.
func (r TradeRow) Cells() []string {
	return []string{r.EntryTime, r.ExitTime, r.Direction, r.EntryPrice, r.ExitPrice, r.Points, r.Reason}
}
