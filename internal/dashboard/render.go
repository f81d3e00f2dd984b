package dashboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// RenderCSV writes rows with a header line.
func RenderCSV(w io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		// Raw counts, no thousands separators.
		rec := r.Cells()
		rec[5], rec[6], rec[7] = fmt.Sprint(r.Trades), fmt.Sprint(r.Wins), fmt.Sprint(r.Losses)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RenderMarkdown writes rows as a GitHub-flavoured markdown table.
func RenderMarkdown(w io.Writer, rows []SummaryRow) error {
	lines := make([][]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.Cells())
	}
	return renderMarkdownTable(w, Columns, lines)
}

// RenderTradesMarkdown writes a trade history as a markdown table.
func RenderTradesMarkdown(w io.Writer, rows []TradeRow) error {
	lines := make([][]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, r.Cells())
	}
	return renderMarkdownTable(w, TradeColumns, lines)
}

func renderMarkdownTable(w io.Writer, header []string, rows [][]string) error {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, c := range cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(c, "|", `\|`))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(header)
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows {
		writeRow(r)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
