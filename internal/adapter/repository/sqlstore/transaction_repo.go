package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, transaction_date, posted_date, memo, reference, is_reversed, reverses_transaction_id, created_at`

// Add stores the transaction header and all its entries in one database transaction
func (r *transactionRepository) Add(ctx context.Context, tx *domain.Transaction) error {
	return NewTransactor(r.db).WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := r.db.exec(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID.String(),
			formatDate(tx.TransactionDate),
			formatDate(tx.PostedDate),
			tx.Memo,
			tx.Reference,
			tx.IsReversed,
			nullUUID(tx.ReversesTransactionID),
			formatTimestamp(tx.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		for i, entry := range tx.Entries {
			_, err = r.db.exec(ctx, `
				INSERT INTO transaction_entries
					(id, transaction_id, line_no, account_id, debit_amount, credit_amount, currency, memo, tax_lot_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				entry.ID.String(),
				tx.ID.String(),
				i,
				entry.AccountID.String(),
				entry.DebitAmount.Amount().String(),
				entry.CreditAmount.Amount().String(),
				string(entry.Currency()),
				entry.Memo,
				nullUUID(entry.TaxLotID),
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction entry: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a transaction with its entries
func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tx, err := scanTransaction(r.db.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction by ID: %w", err)
	}
	if tx.Entries, err = r.entries(ctx, tx.ID); err != nil {
		return nil, err
	}
	return tx, nil
}

// MarkReversed flags a posted transaction as reversed
func (r *transactionRepository) MarkReversed(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.exec(ctx, `UPDATE transactions SET is_reversed = ? WHERE id = ?`, true, id.String())
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	return expectOneRow(result, domain.ErrTransactionNotFound, id)
}

// ListByAccount retrieves the transactions touching an account within [start, end]
// ordered by transaction date, then creation time
func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, start, end *time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id IN (SELECT transaction_id FROM transaction_entries WHERE account_id = ?)
	`
	args := []any{accountID.String()}
	if start != nil {
		query += ` AND transaction_date >= ?`
		args = append(args, formatDate(*start))
	}
	if end != nil {
		query += ` AND transaction_date <= ?`
		args = append(args, formatDate(*end))
	}
	query += ` ORDER BY transaction_date, created_at, id`

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	// entries are loaded after the cursor is released; sqlite runs on a single connection
	rows.Close()

	for _, tx := range txs {
		if tx.Entries, err = r.entries(ctx, tx.ID); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

func (r *transactionRepository) entries(ctx context.Context, transactionID uuid.UUID) ([]domain.Entry, error) {
	rows, err := r.db.query(ctx, `
		SELECT id, account_id, debit_amount, credit_amount, currency, memo, tax_lot_id
		FROM transaction_entries
		WHERE transaction_id = ?
		ORDER BY line_no
	`, transactionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0)
	for rows.Next() {
		var id, accountID, debit, credit, cur string
		var entry domain.Entry
		var taxLotID sql.NullString
		if err := rows.Scan(&id, &accountID, &debit, &credit, &cur, &entry.Memo, &taxLotID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction entry: %w", err)
		}
		if entry.ID, err = parseUUID("id", id); err != nil {
			return nil, err
		}
		if entry.AccountID, err = parseUUID("account_id", accountID); err != nil {
			return nil, err
		}
		if entry.DebitAmount, err = parseMoney("debit_amount", debit, domain.Currency(cur)); err != nil {
			return nil, err
		}
		if entry.CreditAmount, err = parseMoney("credit_amount", credit, domain.Currency(cur)); err != nil {
			return nil, err
		}
		if entry.TaxLotID, err = parseNullUUID("tax_lot_id", taxLotID); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction entries: %w", err)
	}
	return entries, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var id, txDate, postedDate, created string
	var reverses sql.NullString
	err := row.Scan(&id, &txDate, &postedDate, &tx.Memo, &tx.Reference, &tx.IsReversed, &reverses, &created)
	if err != nil {
		return nil, err
	}
	if tx.ID, err = parseUUID("id", id); err != nil {
		return nil, err
	}
	if tx.TransactionDate, err = parseDate("transaction_date", txDate); err != nil {
		return nil, err
	}
	if tx.PostedDate, err = parseDate("posted_date", postedDate); err != nil {
		return nil, err
	}
	if tx.ReversesTransactionID, err = parseNullUUID("reverses_transaction_id", reverses); err != nil {
		return nil, err
	}
	if tx.CreatedAt, err = parseTimestamp("created_at", created); err != nil {
		return nil, err
	}
	return &tx, nil
}
