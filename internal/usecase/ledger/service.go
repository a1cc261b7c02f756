package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
)

// LedgerService validates, posts and reverses balanced transactions and derives balances
type LedgerService struct {
	AccountRepo     domain.AccountRepository
	TransactionRepo domain.TransactionRepository
	Transactor      domain.Transactor
	// Converter is optional; without it a balance over foreign-currency entries fails
	Converter domain.Converter
	Logger    *slog.Logger

	now func() time.Time
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(
	accountRepo domain.AccountRepository,
	transactionRepo domain.TransactionRepository,
	transactor domain.Transactor,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		AccountRepo:     accountRepo,
		TransactionRepo: transactionRepo,
		Transactor:      transactor,
		Logger:          logging.OrDefault(logger),
		now:             time.Now,
	}
}

// ValidateTransaction checks structure, per-currency balance and that every account exists
func (s *LedgerService) ValidateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	for _, accountID := range tx.AccountIDs() {
		if _, err := s.AccountRepo.GetByID(ctx, accountID); err != nil {
			if domain.IsNotFound(err) {
				return fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
			}
			return fmt.Errorf("failed to load account %s: %w", accountID, err)
		}
	}
	return nil
}

// PostTransaction validates tx and persists it. This is the only way new
// transactions enter the ledger. Missing ids, posted date and created-at are filled in.
func (s *LedgerService) PostTransaction(ctx context.Context, tx *domain.Transaction) error {
	now := s.now().UTC()
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.TransactionDate = domain.DateOf(tx.TransactionDate)
	if tx.PostedDate.IsZero() {
		tx.PostedDate = domain.DateOf(now)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	for i := range tx.Entries {
		if tx.Entries[i].ID == uuid.Nil {
			tx.Entries[i].ID = uuid.New()
		}
	}

	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.ValidateTransaction(ctx, tx); err != nil {
			return err
		}
		if err := s.TransactionRepo.Add(ctx, tx); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		s.Logger.Debug("transaction rejected", "transaction_id", tx.ID, "error", err)
		return err
	}

	s.Logger.Info("transaction posted",
		"transaction_id", tx.ID,
		"date", tx.TransactionDate.Format(domain.DateFormat),
		"entries", len(tx.Entries),
	)
	return nil
}

// ReverseTransaction posts a compensating transaction and flags the original
// Logic:
//  1. Load the original (ErrTransactionNotFound if missing)
//  2. Reject an original that is already reversed
//  3. Build a new transaction swapping debit and credit per entry, keeping account and lot links
//  4. Post it and mark the original reversed, atomically
func (s *LedgerService) ReverseTransaction(ctx context.Context, id uuid.UUID, date time.Time, memo string) (*domain.Transaction, error) {
	var reversal *domain.Transaction

	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		original, err := s.TransactionRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if original.IsReversed {
			return fmt.Errorf("%w: transaction %s is already reversed", domain.ErrInvalidTransaction, id)
		}
		if original.ReversesTransactionID != nil {
			return fmt.Errorf("%w: transaction %s is itself a reversal", domain.ErrInvalidTransaction, id)
		}

		if date.IsZero() {
			date = s.now()
		}
		if memo == "" {
			memo = fmt.Sprintf("Reversal of %s", original.ID)
		}
		originalID := original.ID

		entries := make([]domain.Entry, 0, len(original.Entries))
		for _, entry := range original.Entries {
			entries = append(entries, entry.Swapped())
		}

		reversal = &domain.Transaction{
			ID:                    uuid.New(),
			TransactionDate:       domain.DateOf(date),
			Entries:               entries,
			Memo:                  memo,
			Reference:             original.Reference,
			ReversesTransactionID: &originalID,
		}
		if err := s.PostTransaction(ctx, reversal); err != nil {
			return err
		}
		if err := s.TransactionRepo.MarkReversed(ctx, original.ID); err != nil {
			return fmt.Errorf("failed to mark transaction reversed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("transaction reversed", "transaction_id", id, "reversal_id", reversal.ID)
	return reversal, nil
}

// GetAccountBalance sums debit - credit over every entry on the account whose
// transaction date is on or before asOf (all history when asOf is nil).
// The result is in the account currency.
func (s *LedgerService) GetAccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (domain.Money, error) {
	account, err := s.AccountRepo.GetByID(ctx, accountID)
	if err != nil {
		return domain.Money{}, err
	}

	txs, err := s.TransactionRepo.ListByAccount(ctx, accountID, nil, asOf)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to list transactions: %w", err)
	}

	balance := domain.ZeroMoney(account.Currency)
	for _, tx := range txs {
		for _, entry := range tx.Entries {
			if entry.AccountID != accountID {
				continue
			}
			net := entry.Net()
			if net.Currency() != account.Currency {
				net, err = s.convert(ctx, net, account.Currency, tx.TransactionDate)
				if err != nil {
					return domain.Money{}, err
				}
			}
			if balance, err = balance.Add(net); err != nil {
				return domain.Money{}, err
			}
		}
	}
	return balance, nil
}

func (s *LedgerService) convert(ctx context.Context, amount domain.Money, to domain.Currency, date time.Time) (domain.Money, error) {
	if s.Converter == nil {
		return domain.Money{}, fmt.Errorf("%w: entry in %s on a %s account and no converter configured",
			domain.ErrCurrencyMismatch, amount.Currency(), to)
	}
	converted, err := s.Converter.Convert(ctx, amount, to, date)
	if err != nil {
		return domain.Money{}, fmt.Errorf("failed to convert %s to %s: %w", amount, to, err)
	}
	return converted, nil
}
