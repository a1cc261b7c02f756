package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		want    Currency
		wantErr bool
	}{
		{name: "Upper case code", code: "USD", want: USD},
		{name: "Lower case code is normalized", code: " eur ", want: EUR},
		{name: "Unknown code fails", code: "XYZ", wantErr: true},
		{name: "Empty code fails", code: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCurrency(tt.code)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCurrency)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := usd("10.10")
	b := usd("0.20")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "10.3 USD", sum.String())

	diff, err := b.Sub(a)
	require.NoError(t, err)
	assert.True(t, diff.IsNegative())
	assert.True(t, diff.Neg().Equal(usd("9.90")))

	assert.True(t, a.Mul(decimal.NewFromInt(3)).Equal(usd("30.30")))
	assert.True(t, a.MulQuantity(QuantityOf(2.5)).Equal(usd("25.25")))

	c, err := a.Cmp(b)
	require.NoError(t, err)
	assert.Equal(t, 1, c)
}

func TestMoney_CurrencyMismatch(t *testing.T) {
	_, err := usd("1").Add(eur("1"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd("1").Sub(eur("1"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd("1").Cmp(eur("1"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = SumMoney(USD, usd("1"), eur("2"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.False(t, usd("1").Equal(eur("1")))
}

func TestMoney_ExactDecimal(t *testing.T) {
	// 0.1 + 0.2 is exactly 0.3 with decimals
	m, err := MoneyOf(0.1, "USD")
	require.NoError(t, err)
	sum, err := m.Add(MustMoney(0.2, "USD"))
	require.NoError(t, err)
	assert.True(t, sum.Equal(usd("0.3")))

	fromInt := MustMoney(7, "usd")
	assert.Equal(t, USD, fromInt.Currency())
	assert.True(t, fromInt.Amount().Equal(decimal.NewFromInt(7)))

	_, err = MoneyOf(1, "NOPE")
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = NewMoneyFromString("abc", "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoney_Predicates(t *testing.T) {
	assert.True(t, ZeroMoney(USD).IsZero())
	assert.True(t, usd("0.00000001").IsPositive())
	assert.False(t, usd("0.00000001").IsZero())
	assert.True(t, usd("-0.01").IsNegative())
	assert.True(t, usd("-3").Abs().Equal(usd("3")))
}

func TestMoney_RoundingAndDisplay(t *testing.T) {
	assert.True(t, usd("10.005").RoundToMinor().Equal(usd("10.01")))
	assert.Equal(t, int32(0), Currency("JPY").Fraction())
	assert.Equal(t, "$1,234.50", usd("1234.5").Display())
}

func TestQuantity(t *testing.T) {
	q, err := NewQuantityFromString("100.5")
	require.NoError(t, err)

	assert.True(t, q.Add(QuantityOf(0.5)).Equal(QuantityOf(101)))
	assert.True(t, q.Sub(QuantityOf(100.5)).IsZero())
	assert.True(t, QuantityOf(10).Mul(decimal.NewFromInt(3)).Div(decimal.NewFromInt(2)).Equal(QuantityOf(15)))
	assert.True(t, QuantityOf(1).LessThan(QuantityOf(2)))
	assert.True(t, MinQuantity(QuantityOf(1), QuantityOf(2)).Equal(QuantityOf(1)))
	assert.True(t, QuantityOf(-1).IsNegative())

	_, err = NewQuantityFromString("ten")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDivisionPrecision(t *testing.T) {
	third := QuantityOf(1).Ratio(QuantityOf(3))
	assert.Equal(t, "0.3333333333333333", third.String())
	assert.Equal(t, "0.6666666666666667", QuantityOf(2).Div(decimal.NewFromInt(3)).String())
	assert.Equal(t, "33.3333333333333333", usd("100").DivQuantity(QuantityOf(3)).Amount().String())
}
