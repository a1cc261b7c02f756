package domain

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 currency code known to the go-money currency table
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

// ParseCurrency normalizes and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" || money.GetCurrency(normalized) == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return Currency(normalized), nil
}

// Fraction returns the number of minor-unit digits of the currency (2 for USD, 0 for JPY)
func (c Currency) Fraction() int32 {
	if cur := money.GetCurrency(string(c)); cur != nil {
		return int32(cur.Fraction)
	}
	return 2
}

func (c Currency) String() string { return string(c) }

// Numeric lists the Go number types accepted by the generic constructors
type Numeric interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64
}

// toDecimal coerces any numeric representation into an exact decimal
func toDecimal[T Numeric](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	default:
		// named types over the base kinds
		return decimal.RequireFromString(fmt.Sprint(v))
	}
}

// Money is an immutable currency-tagged exact decimal amount
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates a Money value, validating the currency code
func NewMoney(amount decimal.Decimal, code string) (Money, error) {
	cur, err := ParseCurrency(code)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: cur}, nil
}

// NewMoneyFromString parses an exact decimal string such as "1234.5678"
func NewMoneyFromString(amount, code string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return NewMoney(d, code)
}

// MoneyOf creates a Money value from any Go number
func MoneyOf[T Numeric](amount T, code string) (Money, error) {
	return NewMoney(toDecimal(amount), code)
}

// MustMoney is MoneyOf for literals known to be valid; it panics otherwise
func MustMoney[T Numeric](amount T, code string) Money {
	m, err := MoneyOf(amount, code)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyIn builds a Money in a currency that was already validated
func MoneyIn(amount decimal.Decimal, cur Currency) Money {
	return Money{amount: amount, currency: cur}
}

// ZeroMoney returns a zero amount in the given currency
func ZeroMoney(cur Currency) Money {
	return Money{amount: decimal.Zero, currency: cur}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }
func (m Money) IsNegative() bool        { return m.amount.IsNegative() }
func (m Money) Neg() Money              { return Money{amount: m.amount.Neg(), currency: m.currency} }
func (m Money) Abs() Money              { return Money{amount: m.amount.Abs(), currency: m.currency} }

// Mul multiplies by a scalar
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// MulQuantity multiplies a per-unit price by a quantity
func (m Money) MulQuantity(q Quantity) Money {
	return m.Mul(q.value)
}

// Div divides by a non-zero scalar, rounding to DivisionPrecision places
func (m Money) Div(divisor decimal.Decimal) Money {
	return Money{amount: m.amount.DivRound(divisor, DivisionPrecision), currency: m.currency}
}

// DivQuantity returns the per-unit amount
func (m Money) DivQuantity(q Quantity) Money {
	return m.Div(q.value)
}

// Round rounds half away from zero to the given number of decimal places
func (m Money) Round(places int32) Money {
	return Money{amount: m.amount.Round(places), currency: m.currency}
}

// RoundToMinor rounds to the currency's minor unit
func (m Money) RoundToMinor() Money {
	return m.Round(m.currency.Fraction())
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// Add returns m + other; both must share a currency
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other; both must share a currency
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Cmp returns -1, 0 or +1; both must share a currency
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Equal reports exact equality of amount and currency
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String renders the exact amount followed by the currency code
func (m Money) String() string {
	return m.amount.String() + " " + string(m.currency)
}

// Display renders the amount with the currency's symbol and grouping, rounded to minor units
func (m Money) Display() string {
	cur := money.GetCurrency(string(m.currency))
	if cur == nil {
		return m.String()
	}
	minor := m.amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// MinMoney returns the smaller of two same-currency amounts
func MinMoney(a, b Money) (Money, error) {
	c, err := a.Cmp(b)
	if err != nil {
		return Money{}, err
	}
	if c <= 0 {
		return a, nil
	}
	return b, nil
}

// SumMoney adds amounts that must all share cur; an empty list sums to zero
func SumMoney(cur Currency, amounts ...Money) (Money, error) {
	total := ZeroMoney(cur)
	for _, amount := range amounts {
		var err error
		total, err = total.Add(amount)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
