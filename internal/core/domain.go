package core

import (
	"errors"
	"strings"
)

type (
	// OptionalPct is a realized percentage return that may be absent
	// (open or non-closing trades carry no realized value).
	OptionalPct struct {
		Value float64
		Valid bool
	}

	// TradeRecord is one row of the tradebook.
	TradeRecord struct {
		Symbol         string
		RealizedPnLPct OptionalPct
	}
)

var (
	// ErrNoMonthlyReturns is returned when no month survives filtering and
	// aggregation, so neither summary statistic is defined.
	ErrNoMonthlyReturns = errors.New("no monthly returns")
	ErrEmptySymbol      = errors.New("empty symbol")
)

// Pct returns a present percentage value.
func Pct(v float64) OptionalPct {
	return OptionalPct{Value: v, Valid: true}
}

// NoPct returns an absent percentage value.
func NoPct() OptionalPct {
	return OptionalPct{}
}

// IsOption reports whether the symbol names a call (CE) or put (PE) contract.
// The match is a case-sensitive suffix check.
func (t TradeRecord) IsOption() bool {
	return strings.HasSuffix(t.Symbol, "CE") || strings.HasSuffix(t.Symbol, "PE")
}

// Validate is used by writers that refuse rows without a symbol. Aggregation
// never calls it: malformed rows degrade instead of failing.
func (t TradeRecord) Validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return ErrEmptySymbol
	}
	return nil
}
