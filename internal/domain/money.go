package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an exact base-10 monetary value. It carries whatever precision the
// source recorded (bank exports sometimes include sub-cent digits), and all
// balance comparisons go through Quantize so that equality is always decided
// on whole cents.
//
// Arithmetic is exact decimal arithmetic; no float64 is ever accumulated.
type Money struct {
	dec decimal.Decimal
}

var half = decimal.New(5, -1) // 0.5

// NewMoneyFromString parses an exact decimal amount, e.g. "-1234.567".
func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid monetary amount %q: %w", s, err)
	}
	return Money{dec: d}, nil
}

// MustMoney parses an exact decimal amount and panics on malformed input.
// Intended for constants and tests.
func MustMoney(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// NewMoneyFromFloat converts a float64 to Money through its shortest decimal
// representation. Only used for synthetic data; ledger amounts are always
// parsed from strings.
func NewMoneyFromFloat(f float64) Money {
	return Money{dec: decimal.NewFromFloat(f)}
}

// Add returns m + o exactly.
func (m Money) Add(o Money) Money {
	return Money{dec: m.dec.Add(o.dec)}
}

// Sub returns m - o exactly.
func (m Money) Sub(o Money) Money {
	return Money{dec: m.dec.Sub(o.dec)}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{dec: m.dec.Neg()}
}

// Quantize rounds to whole cents using half-up rounding toward positive
// infinity: 1.005 -> 1.01 and -1.005 -> -1.00. Ties always move up the
// number line, on both sides of zero.
func (m Money) Quantize() Money {
	// Shift keeps the arithmetic exact: scale to cents, floor the 0.5-biased
	// value, scale back.
	cents := m.dec.Shift(2).Add(half).Floor()
	return Money{dec: cents.Shift(-2)}
}

// Equals reports whether two values represent the same amount of whole
// cents. Both sides are quantized first; comparing unquantized values is how
// false mismatches creep in, so this is the only equality the package offers.
func (m Money) Equals(o Money) bool {
	return m.Quantize().dec.Equal(o.Quantize().dec)
}

// IsZero reports whether the value quantizes to 0.00.
func (m Money) IsZero() bool {
	return m.Quantize().dec.IsZero()
}

// Cmp compares quantized values: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int {
	return m.Quantize().dec.Cmp(o.Quantize().dec)
}

// String returns the exact (unquantized) decimal representation.
func (m Money) String() string {
	return m.dec.String()
}

// Display returns the cent-quantized fixed representation, e.g. "-12.30".
func (m Money) Display() string {
	return m.Quantize().dec.StringFixed(2)
}

// SumMoney adds a slice of values exactly. Order does not affect the result.
func SumMoney(values []Money) Money {
	total := Money{}
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
