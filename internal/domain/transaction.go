package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction represents a balanced double-entry record.
// Once posted it is immutable except for IsReversed, which a compensating reversal sets.
type Transaction struct {
	ID                    uuid.UUID
	TransactionDate       time.Time
	PostedDate            time.Time
	Entries               []Entry
	Memo                  string
	Reference             string
	IsReversed            bool
	ReversesTransactionID *uuid.UUID // set on the compensating transaction only
	CreatedAt             time.Time
}

// Entry represents a single debit or credit line of a transaction
type Entry struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	DebitAmount  Money
	CreditAmount Money
	Memo         string
	TaxLotID     *uuid.UUID // weak link to the lot a disposal entry realized
}

// NewDebit creates a pure debit entry
func NewDebit(accountID uuid.UUID, amount Money, memo string) Entry {
	return Entry{
		ID:           uuid.New(),
		AccountID:    accountID,
		DebitAmount:  amount,
		CreditAmount: ZeroMoney(amount.Currency()),
		Memo:         memo,
	}
}

// NewCredit creates a pure credit entry
func NewCredit(accountID uuid.UUID, amount Money, memo string) Entry {
	return Entry{
		ID:           uuid.New(),
		AccountID:    accountID,
		DebitAmount:  ZeroMoney(amount.Currency()),
		CreditAmount: amount,
		Memo:         memo,
	}
}

// WithTaxLot links the entry to the lot it realizes
func (e Entry) WithTaxLot(lotID uuid.UUID) Entry {
	id := lotID
	e.TaxLotID = &id
	return e
}

// Currency returns the entry currency; debit and credit always share it on a valid entry
func (e Entry) Currency() Currency {
	if e.DebitAmount.Currency() != "" {
		return e.DebitAmount.Currency()
	}
	return e.CreditAmount.Currency()
}

// IsDebit reports whether the entry carries a non-zero debit
func (e Entry) IsDebit() bool {
	return !e.DebitAmount.IsZero()
}

// Net returns debit - credit
func (e Entry) Net() Money {
	return Money{amount: e.DebitAmount.amount.Sub(e.CreditAmount.amount), currency: e.Currency()}
}

// Swapped returns a fresh entry with debit and credit exchanged, keeping account and lot linkage
func (e Entry) Swapped() Entry {
	swapped := Entry{
		ID:           uuid.New(),
		AccountID:    e.AccountID,
		DebitAmount:  e.CreditAmount,
		CreditAmount: e.DebitAmount,
		Memo:         e.Memo,
	}
	if e.TaxLotID != nil {
		id := *e.TaxLotID
		swapped.TaxLotID = &id
	}
	return swapped
}

// Validate ensures a single entry is purely a debit or purely a credit
func (e Entry) Validate() error {
	if e.DebitAmount.Currency() != e.CreditAmount.Currency() {
		return fmt.Errorf("%w: entry %s debit and credit currencies differ", ErrCurrencyMismatch, e.ID)
	}
	if _, err := ParseCurrency(string(e.Currency())); err != nil {
		return err
	}
	if e.DebitAmount.IsNegative() || e.CreditAmount.IsNegative() {
		return fmt.Errorf("%w: entry %s amounts must not be negative", ErrInvalidTransaction, e.ID)
	}
	if !e.DebitAmount.IsZero() && !e.CreditAmount.IsZero() {
		return fmt.Errorf("%w: entry %s cannot be both a debit and a credit", ErrInvalidTransaction, e.ID)
	}
	if e.DebitAmount.IsZero() && e.CreditAmount.IsZero() {
		return fmt.Errorf("%w: entry %s has no amount", ErrInvalidTransaction, e.ID)
	}
	return nil
}

// CurrencyTotals holds the debit and credit sums of one currency
type CurrencyTotals struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// Totals sums debits and credits per currency
func (t *Transaction) Totals() map[Currency]CurrencyTotals {
	totals := make(map[Currency]CurrencyTotals)
	for _, entry := range t.Entries {
		cur := entry.Currency()
		sum := totals[cur]
		sum.Debits = sum.Debits.Add(entry.DebitAmount.Amount())
		sum.Credits = sum.Credits.Add(entry.CreditAmount.Amount())
		totals[cur] = sum
	}
	return totals
}

// IsBalanced reports whether debits equal credits in every currency
func (t *Transaction) IsBalanced() bool {
	return t.checkBalance() == nil
}

func (t *Transaction) checkBalance() error {
	totals := t.Totals()
	currencies := make([]Currency, 0, len(totals))
	for cur := range totals {
		currencies = append(currencies, cur)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })

	for _, cur := range currencies {
		sum := totals[cur]
		if !sum.Debits.Equal(sum.Credits) {
			return &UnbalancedTransactionError{Currency: cur, Debits: sum.Debits, Credits: sum.Credits}
		}
	}
	return nil
}

// Validate ensures the transaction adheres to domain rules
// CRITICAL: sum of debits must equal sum of credits separately for each currency
func (t *Transaction) Validate() error {
	if len(t.Entries) == 0 {
		return fmt.Errorf("%w: transaction must have at least one entry", ErrInvalidTransaction)
	}
	if t.TransactionDate.IsZero() {
		return fmt.Errorf("%w: transaction date is required", ErrInvalidTransaction)
	}
	for _, entry := range t.Entries {
		if err := entry.Validate(); err != nil {
			return err
		}
	}
	return t.checkBalance()
}

// AccountIDs returns the distinct accounts touched, in entry order
func (t *Transaction) AccountIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(t.Entries))
	ids := make([]uuid.UUID, 0, len(t.Entries))
	for _, entry := range t.Entries {
		if !seen[entry.AccountID] {
			seen[entry.AccountID] = true
			ids = append(ids, entry.AccountID)
		}
	}
	return ids
}
