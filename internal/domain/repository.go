package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	// Create stores a new account
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by its ID, or ErrAccountNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// List retrieves all accounts, optionally only those of one entity
	List(ctx context.Context, entityID *uuid.UUID) ([]*Account, error)
}

// SecurityRepository defines the interface for security persistence operations
type SecurityRepository interface {
	Create(ctx context.Context, security *Security) error

	// GetByID retrieves a security by its ID, or ErrSecurityNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*Security, error)

	// GetBySymbol retrieves a security by its current symbol, or ErrSecurityNotFound
	GetBySymbol(ctx context.Context, symbol string) (*Security, error)

	// Update overwrites the mutable fields of an existing security
	Update(ctx context.Context, security *Security) error

	// ListQSBSEligible retrieves the securities flagged as qualified small business stock
	ListQSBSEligible(ctx context.Context) ([]*Security, error)
}

// PositionRepository defines the interface for position persistence operations
type PositionRepository interface {
	Create(ctx context.Context, position *Position) error

	// GetByID retrieves a position by its ID, or ErrPositionNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*Position, error)

	// GetByAccountAndSecurity retrieves the unique position of a security in an account,
	// or ErrPositionNotFound
	GetByAccountAndSecurity(ctx context.Context, accountID, securityID uuid.UUID) (*Position, error)

	// ListBySecurity retrieves every position holding a security, across all accounts
	ListBySecurity(ctx context.Context, securityID uuid.UUID) ([]*Position, error)
}

// TaxLotRepository defines the interface for tax lot persistence operations.
// Lots are never deleted; closed lots stay for audit.
type TaxLotRepository interface {
	Add(ctx context.Context, lot *TaxLot) error

	// Update overwrites a lot's mutable state
	Update(ctx context.Context, lot *TaxLot) error

	// GetByID retrieves a lot by its ID, or ErrTaxLotNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*TaxLot, error)

	// ListOpenByPosition retrieves lots with remaining quantity, ordered by acquisition date then id
	ListOpenByPosition(ctx context.Context, positionID uuid.UUID) ([]*TaxLot, error)

	// ListByPosition retrieves every lot of a position, open or closed
	ListByPosition(ctx context.Context, positionID uuid.UUID) ([]*TaxLot, error)

	// ListWashSaleCandidates retrieves lots of a position acquired within
	// WashSaleWindowDays before or after saleDate, inclusive
	ListWashSaleCandidates(ctx context.Context, positionID uuid.UUID, saleDate time.Time) ([]*TaxLot, error)
}

// TransactionRepository defines the interface for ledger persistence operations.
// Transactions are append-only.
type TransactionRepository interface {
	// Add stores a transaction and its entries
	Add(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction with its entries, or ErrTransactionNotFound
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// MarkReversed sets the is_reversed flag; it is the only mutation allowed after posting
	MarkReversed(ctx context.Context, id uuid.UUID) error

	// ListByAccount retrieves transactions with at least one entry on the account whose
	// transaction date lies within [start, end]; nil bounds are open
	ListByAccount(ctx context.Context, accountID uuid.UUID, start, end *time.Time) ([]*Transaction, error)
}

// CorporateActionRepository records applied corporate actions
type CorporateActionRepository interface {
	Add(ctx context.Context, action *CorporateAction) error

	// Get retrieves the action recorded for a security, or ErrCorporateActionNotFound
	Get(ctx context.Context, securityID uuid.UUID, actionID string) (*CorporateAction, error)

	// ListBySecurity retrieves the actions of a security in effective-date order
	ListBySecurity(ctx context.Context, securityID uuid.UUID) ([]*CorporateAction, error)
}

// Transactor runs fn as one atomic unit: every repository call made with the context
// passed to fn commits together or not at all
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Converter translates an amount into another currency at the rate of a given date
type Converter interface {
	Convert(ctx context.Context, amount Money, to Currency, date time.Time) (Money, error)
}

// ConverterFunc adapts a plain function to the Converter interface
type ConverterFunc func(ctx context.Context, amount Money, to Currency, date time.Time) (Money, error)

// Convert calls f
func (f ConverterFunc) Convert(ctx context.Context, amount Money, to Currency, date time.Time) (Money, error) {
	return f(ctx, amount, to, date)
}

// Repositories bundles one storage backend's implementations
type Repositories struct {
	Accounts         AccountRepository
	Securities       SecurityRepository
	Positions        PositionRepository
	TaxLots          TaxLotRepository
	Transactions     TransactionRepository
	CorporateActions CorporateActionRepository
	Transactor       Transactor
}
