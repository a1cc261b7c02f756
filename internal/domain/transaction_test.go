package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(amount string) Money {
	m, err := NewMoneyFromString(amount, "USD")
	if err != nil {
		panic(err)
	}
	return m
}

func eur(amount string) Money {
	m, err := NewMoneyFromString(amount, "EUR")
	if err != nil {
		panic(err)
	}
	return m
}

func TestTransaction_Validate(t *testing.T) {
	cash := uuid.New()
	equity := uuid.New()
	date := NewDate(2024, time.March, 1)

	tests := []struct {
		name    string
		tx      Transaction
		wantErr error
	}{
		{
			name: "Balanced single-currency transaction should pass",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					NewDebit(cash, usd("100.00"), ""),
					NewCredit(equity, usd("100.00"), ""),
				},
			},
		},
		{
			name: "Balanced per currency should pass",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					NewDebit(cash, usd("100"), ""),
					NewCredit(equity, usd("100"), ""),
					NewDebit(cash, eur("90"), ""),
					NewCredit(equity, eur("90"), ""),
				},
			},
		},
		{
			name: "Totals equal across currencies but not per currency should fail",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					NewDebit(cash, usd("100"), ""),
					NewCredit(equity, eur("100"), ""),
				},
			},
			wantErr: ErrUnbalancedTransaction,
		},
		{
			name: "Unbalanced transaction should fail",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					NewDebit(cash, usd("100"), ""),
					NewCredit(equity, usd("50"), ""),
				},
			},
			wantErr: ErrUnbalancedTransaction,
		},
		{
			name:    "Transaction without entries should fail",
			tx:      Transaction{ID: uuid.New(), TransactionDate: date},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "Transaction without date should fail",
			tx: Transaction{
				ID: uuid.New(),
				Entries: []Entry{
					NewDebit(cash, usd("1"), ""),
					NewCredit(equity, usd("1"), ""),
				},
			},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "Entry with both debit and credit should fail",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					{ID: uuid.New(), AccountID: cash, DebitAmount: usd("10"), CreditAmount: usd("10")},
				},
			},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "Negative amount should fail",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					NewDebit(cash, usd("-10"), ""),
					NewCredit(equity, usd("-10"), ""),
				},
			},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "Zero entry should fail",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					NewDebit(cash, usd("0"), ""),
				},
			},
			wantErr: ErrInvalidTransaction,
		},
		{
			name: "Entry mixing currencies should fail",
			tx: Transaction{
				ID:              uuid.New(),
				TransactionDate: date,
				Entries: []Entry{
					{ID: uuid.New(), AccountID: cash, DebitAmount: usd("10"), CreditAmount: ZeroMoney(EUR)},
				},
			},
			wantErr: ErrCurrencyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if tt.wantErr != nil {
				assert.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.True(t, tt.tx.IsBalanced())
			}
		})
	}
}

func TestTransaction_UnbalancedErrorCarriesTotals(t *testing.T) {
	tx := Transaction{
		ID:              uuid.New(),
		TransactionDate: NewDate(2024, time.January, 2),
		Entries: []Entry{
			NewDebit(uuid.New(), usd("100"), ""),
			NewDebit(uuid.New(), usd("25.50"), ""),
			NewCredit(uuid.New(), usd("100"), ""),
		},
	}

	err := tx.Validate()
	var unbalanced *UnbalancedTransactionError
	require.True(t, errors.As(err, &unbalanced))
	assert.Equal(t, USD, unbalanced.Currency)
	assert.True(t, unbalanced.Debits.Equal(decimal.RequireFromString("125.50")))
	assert.True(t, unbalanced.Credits.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestEntry_Swapped(t *testing.T) {
	lotID := uuid.New()
	entry := NewCredit(uuid.New(), usd("42"), "sale").WithTaxLot(lotID)

	swapped := entry.Swapped()

	assert.NotEqual(t, entry.ID, swapped.ID)
	assert.Equal(t, entry.AccountID, swapped.AccountID)
	assert.True(t, swapped.DebitAmount.Equal(usd("42")))
	assert.True(t, swapped.CreditAmount.IsZero())
	require.NotNil(t, swapped.TaxLotID)
	assert.Equal(t, lotID, *swapped.TaxLotID)
	assert.True(t, swapped.Net().Equal(usd("42")))
	assert.True(t, entry.Net().Equal(usd("-42")))
}

func TestTransaction_AccountIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	tx := Transaction{Entries: []Entry{
		NewDebit(a, usd("1"), ""),
		NewCredit(b, usd("0.5"), ""),
		NewCredit(a, usd("0.5"), ""),
	}}

	assert.Equal(t, []uuid.UUID{a, b}, tx.AccountIDs())
}
