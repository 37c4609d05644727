// Package tradebook reads and writes tradebook tables: CSV files whose header
// row names at least the "Symbol" and "Realized P&L Pct." columns.
package tradebook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"optreturns/internal/core"
)

// Column headers of a tradebook.
const (
	ColumnSymbol         = "Symbol"
	ColumnRealizedPnLPct = "Realized P&L Pct."
)

var (
	ErrMissingColumn  = errors.New("missing column")
	ErrInvalidPercent = errors.New("invalid percentage")
)

// thousandsGrouped matches numbers whose commas separate groups of three
// integer digits, e.g. "1,234.5". Decimal commas such as "12,5" do not match.
var thousandsGrouped = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d*)?$`)

// Decode parses a CSV tradebook. Columns are located by header name and
// every other column is ignored.
func Decode(r io.Reader) ([]core.TradeRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, ColumnSymbol)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colSymbol, colPct, err := Columns(header)
	if err != nil {
		return nil, err
	}

	var records []core.TradeRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		rec, err := ParseRow(row, colSymbol, colPct)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Columns finds the symbol and realized-return columns in a header row.
// Header names are matched after trimming, case-insensitively.
func Columns(header []string) (symbol, pct int, err error) {
	symbol = indexOf(header, ColumnSymbol)
	pct = indexOf(header, ColumnRealizedPnLPct)
	var missing []string
	if symbol == -1 {
		missing = append(missing, ColumnSymbol)
	}
	if pct == -1 {
		missing = append(missing, ColumnRealizedPnLPct)
	}
	if len(missing) > 0 {
		return -1, -1, fmt.Errorf("%w: %s; got headers=%v", ErrMissingColumn, strings.Join(missing, ","), header)
	}
	return symbol, pct, nil
}

// ParseRow builds a record from one data row given the column positions.
// Short rows yield an empty symbol or an absent return.
func ParseRow(row []string, colSymbol, colPct int) (core.TradeRecord, error) {
	pct, err := ParsePercent(safeGet(row, colPct))
	if err != nil {
		return core.TradeRecord{}, err
	}
	return core.TradeRecord{
		Symbol:         strings.TrimSpace(safeGet(row, colSymbol)),
		RealizedPnLPct: pct,
	}, nil
}

// ParsePercent parses a realized return cell. Blank and null-like cells are
// absent. A trailing "%" and comma thousands separators are accepted; a
// decimal comma is rejected with ErrInvalidPercent.
func ParsePercent(s string) (core.OptionalPct, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-", "nan", "null", "none", "n/a":
		return core.NoPct(), nil
	}
	clean := strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if strings.Contains(clean, ",") {
		if !thousandsGrouped.MatchString(clean) {
			return core.OptionalPct{}, fmt.Errorf("%w %q", ErrInvalidPercent, s)
		}
		clean = strings.ReplaceAll(clean, ",", "")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return core.OptionalPct{}, fmt.Errorf("%w %q", ErrInvalidPercent, s)
	}
	return core.Pct(d.InexactFloat64()), nil
}

// Encode writes records as a two-column tradebook.
func Encode(w io.Writer, records []core.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnSymbol, ColumnRealizedPnLPct}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write([]string{rec.Symbol, FormatPercent(rec.RealizedPnLPct)}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatPercent renders a cell value; absent values are empty.
func FormatPercent(p core.OptionalPct) string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatFloat(p.Value, 'f', -1, 64)
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		// Excel exports may prefix the first header with a BOM.
		v = strings.TrimPrefix(v, "\ufeff")
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
