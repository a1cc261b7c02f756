package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountType represents the accounting class of a ledger account
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether t is one of the known account types
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// Account represents a ledger account owned by one entity of the family office
type Account struct {
	ID       uuid.UUID
	EntityID uuid.UUID // owning trust, LLC, partnership or individual
	Name     string
	Type     AccountType
	Currency Currency
	IsActive bool
}

// Validate ensures the account adheres to domain rules
func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: account name cannot be empty", ErrInvalidAccount)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidAccount, a.Type)
	}
	if _, err := ParseCurrency(string(a.Currency)); err != nil {
		return err
	}
	return nil
}
