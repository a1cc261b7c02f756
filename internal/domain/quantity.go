package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of decimal places kept when a quantity is derived by division
const QuantityScale = 8

// DivisionPrecision is the number of decimal places every quotient and ratio is rounded
// to, half away from zero. Split, merger and wash-sale arithmetic all divide through it.
const DivisionPrecision int32 = 16

// Quantity is an immutable share or unit count, possibly fractional
type Quantity struct {
	value decimal.Decimal
}

// NewQuantity wraps an exact decimal
func NewQuantity(value decimal.Decimal) Quantity {
	return Quantity{value: value}
}

// QuantityOf creates a Quantity from any Go number
func QuantityOf[T Numeric](value T) Quantity {
	return Quantity{value: toDecimal(value)}
}

// NewQuantityFromString parses an exact decimal string
func NewQuantityFromString(value string) (Quantity, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: quantity %q", ErrInvalidAmount, value)
	}
	return Quantity{value: d}, nil
}

// ZeroQuantity is the empty quantity
var ZeroQuantity = Quantity{value: decimal.Zero}

func (q Quantity) Decimal() decimal.Decimal             { return q.value }
func (q Quantity) Add(other Quantity) Quantity          { return Quantity{value: q.value.Add(other.value)} }
func (q Quantity) Sub(other Quantity) Quantity          { return Quantity{value: q.value.Sub(other.value)} }
func (q Quantity) Mul(factor decimal.Decimal) Quantity  { return Quantity{value: q.value.Mul(factor)} }
func (q Quantity) Div(divisor decimal.Decimal) Quantity { return Quantity{value: q.value.DivRound(divisor, DivisionPrecision)} }
func (q Quantity) Ratio(other Quantity) decimal.Decimal { return q.value.DivRound(other.value, DivisionPrecision) }
func (q Quantity) Cmp(other Quantity) int               { return q.value.Cmp(other.value) }
func (q Quantity) Equal(other Quantity) bool            { return q.value.Equal(other.value) }
func (q Quantity) LessThan(other Quantity) bool         { return q.value.LessThan(other.value) }
func (q Quantity) GreaterThan(other Quantity) bool      { return q.value.GreaterThan(other.value) }
func (q Quantity) IsZero() bool                         { return q.value.IsZero() }
func (q Quantity) IsPositive() bool                     { return q.value.IsPositive() }
func (q Quantity) IsNegative() bool                     { return q.value.IsNegative() }
func (q Quantity) String() string                       { return q.value.String() }

// Truncate drops digits beyond the given number of decimal places
func (q Quantity) Truncate(places int32) Quantity {
	return Quantity{value: q.value.Truncate(places)}
}

// MinQuantity returns the smaller of two quantities
func MinQuantity(a, b Quantity) Quantity {
	if a.LessThan(b) {
		return a
	}
	return b
}
