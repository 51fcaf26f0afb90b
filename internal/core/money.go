// Package core holds the ledger domain: accounts, transactions, money
// parsing, totals and the expense report selector.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a decimal string to cents with half-up rounding on
// the third decimal place. Both dot (12.34) and comma (12,34) separators
// are accepted. Anything that is not a plain positive decimal (empty
// input, signs, exponents, NaN, infinities) fails with ErrInvalidAmount,
// so no transaction can ever carry a non-positive or non-finite amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234, nil
//	ParseAmount("12,34")  -> 1234, nil
//	ParseAmount("12.346") -> 1235, nil (rounds up)
//	ParseAmount("0")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return Money{}, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, ErrInvalidAmount
	}
	// Take the first two fractional digits; half-up rounding on the third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents}, nil
}

// Units returns the whole-currency value as a float64 for display purposes.
// Calculations stay in cents to avoid floating-point drift.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}
