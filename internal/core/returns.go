package core

import (
	"math"
	"sort"
)

// Synthetic keys appended after the fiscal months.
const (
	OverallKey       = "Overall"
	GeometricMeanKey = "Geometric Mean"
)

// The reporting year starts in April.
var fiscalMonths = [12]string{
	"Apr", "May", "Jun", "Jul", "Aug", "Sep",
	"Oct", "Nov", "Dec", "Jan", "Feb", "Mar",
}

type (
	// MonthlyReturn is one labelled value of the series.
	MonthlyReturn struct {
		Key   string
		Value float64
	}

	// MonthlyReturns holds per-month average realized returns in fiscal order
	// followed by the Overall and Geometric Mean entries.
	MonthlyReturns struct {
		Entries       []MonthlyReturn
		Overall       float64
		GeometricMean float64
	}
)

// Months returns the per-month entries without the two summary entries.
func (m MonthlyReturns) Months() []MonthlyReturn {
	if len(m.Entries) < 2 {
		return nil
	}
	return m.Entries[:len(m.Entries)-2]
}

// Value looks up an entry by key.
func (m MonthlyReturns) Value(key string) (float64, bool) {
	for _, e := range m.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return 0, false
}

// Keys returns the entry labels in order.
func (m MonthlyReturns) Keys() []string {
	keys := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		keys[i] = e.Key
	}
	return keys
}

type accumulator struct {
	sum   float64
	count int
}

// ComputeMonthlyReturns filters option trades with a realized return, averages
// them per expiry month, orders the months fiscally (Apr..Mar per year) and
// appends the arithmetic and geometric means of the monthly averages.
//
// Months whose average is exactly zero are dropped, as are keys that do not
// fit the fiscal ordering (unknown month codes). If nothing survives,
// ErrNoMonthlyReturns is returned.
func ComputeMonthlyReturns(records []TradeRecord) (MonthlyReturns, error) {
	groups := make(map[string]*accumulator)
	yearSet := make(map[string]struct{})

	for _, rec := range records {
		if !rec.IsOption() {
			continue
		}
		key := MonthYearKey(rec.Symbol)
		if !rec.RealizedPnLPct.Valid {
			continue
		}
		yearSet[keyYear(key)] = struct{}{}

		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.sum += rec.RealizedPnLPct.Value
		acc.count++
	}

	years := make([]string, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Strings(years)

	var months []MonthlyReturn
	for _, key := range FiscalOrder(years) {
		acc, ok := groups[key]
		if !ok {
			continue
		}
		mean := acc.sum / float64(acc.count)
		if mean == 0 || math.IsNaN(mean) {
			continue
		}
		months = append(months, MonthlyReturn{Key: key, Value: mean})
	}
	if len(months) == 0 {
		return MonthlyReturns{}, ErrNoMonthlyReturns
	}

	values := make([]float64, len(months))
	for i, m := range months {
		values[i] = m.Value
	}
	overall := Mean(values)
	geometric := GeometricMean(values)

	entries := append(months,
		MonthlyReturn{Key: OverallKey, Value: overall},
		MonthlyReturn{Key: GeometricMeanKey, Value: geometric},
	)
	return MonthlyReturns{
		Entries:       entries,
		Overall:       overall,
		GeometricMean: geometric,
	}, nil
}

// FiscalOrder expands each year into its twelve fiscal month keys. Years are
// used in the order given.
func FiscalOrder(years []string) []string {
	keys := make([]string, 0, len(years)*len(fiscalMonths))
	for _, y := range years {
		for _, m := range fiscalMonths {
			keys = append(keys, m+"-"+y)
		}
	}
	return keys
}

// Mean is the arithmetic mean; NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// GeometricMean compounds percentage returns:
// ((prod(1 + r/100))^(1/n) - 1) * 100. NaN for an empty slice, and NaN when
// the product is negative (a period below -100%).
func GeometricMean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	prod := 1.0
	for _, v := range values {
		prod *= 1 + v/100
	}
	return (math.Pow(prod, 1/float64(len(values))) - 1) * 100
}
