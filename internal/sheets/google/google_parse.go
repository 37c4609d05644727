package google

import (
	"fmt"
	"math"
	"strings"

	"optreturns/internal/core"
	"optreturns/internal/tradebook"
)

// Summary sheet headers.
const (
	SummaryHeaderKey   = "Month-Year"
	SummaryHeaderValue = "Average Realized P&L Pct."
)

// parseTradebook converts a values matrix (as returned by Sheets API) into
// trade records. Rows that are entirely blank are skipped.
func parseTradebook(values [][]interface{}) ([]core.TradeRecord, error) {
	if len(values) == 0 {
		return nil, nil
	}
	colSymbol, colPct, err := tradebook.Columns(toStrings(values[0]))
	if err != nil {
		return nil, err
	}
	var out []core.TradeRecord
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		rec, err := tradebook.ParseRow(row, colSymbol, colPct)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// tradebookRows lays records out under an existing header row. An empty
// sheet gets the two standard columns.
func tradebookRows(header []interface{}, records []core.TradeRecord) ([][]interface{}, error) {
	colSymbol, colPct := 0, 1
	if len(header) > 0 {
		var err error
		colSymbol, colPct, err = tradebook.Columns(toStrings(header))
		if err != nil {
			return nil, err
		}
	}
	width := max(colSymbol, colPct) + 1

	rows := make([][]interface{}, 0, len(records)+1)
	if len(header) == 0 {
		rows = append(rows, []interface{}{tradebook.ColumnSymbol, tradebook.ColumnRealizedPnLPct})
	}
	for _, rec := range records {
		row := make([]interface{}, width)
		for i := range row {
			row[i] = ""
		}
		row[colSymbol] = rec.Symbol
		row[colPct] = tradebook.FormatPercent(rec.RealizedPnLPct)
		rows = append(rows, row)
	}
	return rows, nil
}

// summaryValues renders the series as a two-column table with a header row.
// Non-finite values cannot travel as JSON numbers and are written as text.
func summaryValues(returns core.MonthlyReturns) [][]interface{} {
	out := make([][]interface{}, 0, len(returns.Entries)+1)
	out = append(out, []interface{}{SummaryHeaderKey, SummaryHeaderValue})
	for _, e := range returns.Entries {
		var v interface{} = e.Value
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			v = fmt.Sprint(e.Value)
		}
		out = append(out, []interface{}{e.Key, v})
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
