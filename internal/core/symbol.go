package core

import "strings"

// Positions of the expiry fields inside an option symbol, e.g.
// "NIFTY25MAY24000CE": year at runes 5-6, month code at runes 7-9.
const (
	yearStart  = 5
	yearEnd    = 7
	monthStart = 7
	monthEnd   = 10
)

// UnknownMonth is the month name used for codes outside monthNames.
const UnknownMonth = "Unknown"

var monthNames = map[string]string{
	"JAN": "January", "FEB": "February", "MAR": "March",
	"APR": "April", "MAY": "May", "JUN": "June",
	"JUL": "July", "AUG": "August", "SEP": "September",
	"OCT": "October", "NOV": "November", "DEC": "December",
}

// MonthYearKey decodes the "<Mon>-<YY>" label from the fixed offsets of an
// option symbol. Decoding is purely positional: short or malformed symbols
// produce truncated fields and an "Unk" month rather than an error.
func MonthYearKey(symbol string) string {
	runes := []rune(symbol)
	code := strings.ToUpper(sliceRunes(runes, monthStart, monthEnd))
	year := sliceRunes(runes, yearStart, yearEnd)

	month, ok := monthNames[code]
	if !ok {
		month = UnknownMonth
	}
	return month[:3] + "-" + year
}

// keyYear returns the last two characters of a key, which is the year part
// for well-formed keys.
func keyYear(key string) string {
	runes := []rune(key)
	return sliceRunes(runes, len(runes)-2, len(runes))
}

// sliceRunes behaves like a clamped sequence slice: out-of-range bounds
// shrink the result instead of panicking.
func sliceRunes(r []rune, from, to int) string {
	if from < 0 {
		from = 0
	}
	if to > len(r) {
		to = len(r)
	}
	if from >= to {
		return ""
	}
	return string(r[from:to])
}
