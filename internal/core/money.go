// Package core provides money parsing and handling utilities.
//
// Amounts are exact decimals rounded to two places. Everything that is
// stored or compared goes through RoundMoney first so no binary floating
// point ever touches a balance.
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is an exact two-decimal monetary value. The zero value is 0.00.
type Money struct {
	value decimal.Decimal
}

// RoundMoney rounds d to two decimal places, ties away from zero.
func RoundMoney(d decimal.Decimal) Money {
	return Money{value: d.Round(2)}
}

// NewMoney builds a Money from a float literal. Intended for tests and
// constants; parse user input with ParseAmount.
func NewMoney(f float64) Money {
	return RoundMoney(decimal.NewFromFloat(f))
}

// MoneyFromCents converts minor units to Money.
func MoneyFromCents(cents int64) Money {
	return Money{value: decimal.New(cents, -2)}
}

// ParseAmount converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Signs are rejected; the sign of a transaction comes from its kind.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35 (rounds up)
//	ParseAmount("-1")     -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return RoundMoney(d), nil
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.value }

// Cents returns the value in minor units. Money is always rounded to two
// places so the conversion is exact.
func (m Money) Cents() int64 { return m.value.Shift(2).IntPart() }

func (m Money) Add(n Money) Money               { return Money{value: m.value.Add(n.value)} }
func (m Money) Sub(n Money) Money               { return Money{value: m.value.Sub(n.value)} }
func (m Money) Neg() Money                      { return Money{value: m.value.Neg()} }
func (m Money) Equal(n Money) bool              { return m.value.Equal(n.value) }
func (m Money) IsZero() bool                    { return m.value.IsZero() }
func (m Money) IsPositive() bool                { return m.value.IsPositive() }
func (m Money) IsNegative() bool                { return m.value.IsNegative() }
func (m Money) LessThan(n Money) bool           { return m.value.LessThan(n.value) }
func (m Money) LessThanOrEqual(n Money) bool    { return m.value.LessThanOrEqual(n.value) }
func (m Money) GreaterThan(n Money) bool        { return m.value.GreaterThan(n.value) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.value.GreaterThanOrEqual(n.value) }

// MulRatio multiplies by a plain decimal factor without rounding. The
// result is used for comparisons only, never persisted.
func (m Money) MulRatio(f decimal.Decimal) decimal.Decimal { return m.value.Mul(f) }

// String returns the plain value with exactly two decimals, e.g. "-20.00".
func (m Money) String() string { return m.value.StringFixed(2) }

// Format renders the value with the currency's symbol and grouping, e.g.
// "€1,000.00". Unknown currency codes fall back to the bare code.
func (m Money) Format(currency string) string {
	return money.New(m.Cents(), currency).Display()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both JSON numbers and strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	*m = RoundMoney(d)
	return nil
}
