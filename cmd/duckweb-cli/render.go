package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"duckweb/internal/dashboard"
	"duckweb/internal/httpapi"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	colHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	gainStyle      = cellStyle.Foreground(lipgloss.Color("10"))
	lossStyle      = cellStyle.Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	borderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

// signedCols marks columns whose sign is colored.
type signedCols map[int]bool

// renderTable draws rows under header. Cells in signed columns render green
// when positive and red when negative.
func renderTable(header []string, rows [][]string, signed signedCols) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(header...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return colHeaderStyle
			}
			if signed[col] && row >= 0 && row < len(rows) {
				return signStyle(rows[row][col])
			}
			return cellStyle
		})
	return t.Render()
}

func signStyle(v string) lipgloss.Style {
	switch {
	case strings.HasPrefix(v, "-"):
		return lossStyle
	case v == "0.00" || v == "-":
		return cellStyle
	default:
		return gainStyle
	}
}

// Summary columns: Expectancy and Cumulative PnL.
var summarySigned = signedCols{2: true, 4: true}

// Trade columns: Points.
var tradeSigned = signedCols{5: true}

func renderReport(res httpapi.BacktestJSON, elapsed time.Duration) string {
	var b strings.Builder

	o := res.Overview
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %s → %s", res.Series,
		dashboard.FormatTime(res.Start), dashboard.FormatTime(res.End))))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"%s bars · latest %s (%s) · high %s · low %s · run %s in %s",
		dashboard.FormatInt(res.Bars), dashboard.FormatPrice(o.Latest), dashboard.FormatChange(o.Change),
		dashboard.FormatPrice(o.High), dashboard.FormatPrice(o.Low), res.RunID, elapsed.Round(time.Millisecond),
	)))
	b.WriteString("\n\n")

	for _, ir := range res.Results {
		b.WriteString(sectionStyle.Render(ir.Indicator))
		b.WriteString("\n")
		rows := make([][]string, len(ir.Rows))
		for i, r := range ir.Rows {
			rows[i] = r.Cells()
		}
		b.WriteString(renderTable(dashboard.Columns, rows, summarySigned))
		b.WriteString("\n")
		if len(ir.Rows) > 0 && ir.Rows[0].Insufficient {
			b.WriteString(dimStyle.Render("insufficient data: too few bars or no indicator values in range"))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if res.Trades != nil {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Trades: %s @ %s", res.Trades.Indicator, res.Trades.RiskReward)))
		b.WriteString("\n")
		if len(res.Trades.Rows) == 0 {
			b.WriteString(dimStyle.Render("no trades"))
		} else {
			rows := make([][]string, len(res.Trades.Rows))
			for i, r := range res.Trades.Rows {
				rows[i] = r.Cells()
			}
			b.WriteString(renderTable(dashboard.TradeColumns, rows, tradeSigned))
		}
	}
	return b.String()
}
