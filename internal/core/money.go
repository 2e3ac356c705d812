// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals in the domain and integer minor units (cents)
// at rest, so storage-side arithmetic never touches floating point.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountPrecision = errors.New("amount has more than two decimal places")
	ErrAmountOverflow  = errors.New("amount out of range")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(1<<62 - 1)
)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// zero and more than two fractional digits are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("12.345") -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if _, err := ToCents(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ToCents converts an amount to minor units. Signed values are allowed so
// balances and deltas round-trip.
func ToCents(d decimal.Decimal) (int64, error) {
	c := d.Mul(hundred)
	if !c.Equal(c.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	if c.Abs().GreaterThan(maxCents) {
		return 0, ErrAmountOverflow
	}
	return c.IntPart(), nil
}

// MustCents is ToCents for values that already passed validation.
func MustCents(d decimal.Decimal) int64 {
	c, err := ToCents(d)
	if err != nil {
		panic(err)
	}
	return c
}

func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// FormatAmount renders an amount with exactly two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
