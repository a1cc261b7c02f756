package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, entity_id, name, account_type, currency, is_active`

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	_, err := r.db.exec(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID.String(),
		account.EntityID.String(),
		account.Name,
		string(account.Type),
		string(account.Currency),
		account.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String())
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

// List retrieves all accounts ordered by name, optionally of one entity
func (r *accountRepository) List(ctx context.Context, entityID *uuid.UUID) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if entityID != nil {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID.String())
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var id, entityID, accountType, currency string
	if err := row.Scan(&id, &entityID, &account.Name, &accountType, &currency, &account.IsActive); err != nil {
		return nil, err
	}
	var err error
	if account.ID, err = parseUUID("id", id); err != nil {
		return nil, err
	}
	if account.EntityID, err = parseUUID("entity_id", entityID); err != nil {
		return nil, err
	}
	account.Type = domain.AccountType(accountType)
	account.Currency = domain.Currency(currency)
	return &account, nil
}
