package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	store *Store
}

// NewAccountRepository creates an account repository over store
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{store: store}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.accounts[account.ID]; exists {
		return fmt.Errorf("failed to create account: id %s already exists", account.ID)
	}
	r.store.accounts[account.ID] = *account
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	account, ok := r.store.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, entityID *uuid.UUID) ([]*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	accounts := make([]*domain.Account, 0, len(r.store.accounts))
	for _, a := range r.store.accounts {
		if entityID != nil && a.EntityID != *entityID {
			continue
		}
		account := a
		accounts = append(accounts, &account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

// securityRepository implements domain.SecurityRepository
type securityRepository struct {
	store *Store
}

// NewSecurityRepository creates a security repository over store
func NewSecurityRepository(store *Store) domain.SecurityRepository {
	return &securityRepository{store: store}
}

func (r *securityRepository) Create(ctx context.Context, security *domain.Security) error {
	if err := security.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.securities[security.ID]; exists {
		return fmt.Errorf("failed to create security: id %s already exists", security.ID)
	}
	for _, s := range r.store.securities {
		if strings.EqualFold(s.Symbol, security.Symbol) {
			return fmt.Errorf("%w: symbol %s already exists", domain.ErrInvalidSecurity, security.Symbol)
		}
	}
	r.store.securities[security.ID] = *security
	return nil
}

func (r *securityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	security, ok := r.store.securities[id]
	if !ok {
		return nil, domain.ErrSecurityNotFound
	}
	return &security, nil
}

func (r *securityRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Security, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, s := range r.store.securities {
		if strings.EqualFold(s.Symbol, symbol) {
			security := s
			return &security, nil
		}
	}
	return nil, domain.ErrSecurityNotFound
}

func (r *securityRepository) Update(ctx context.Context, security *domain.Security) error {
	if err := security.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.securities[security.ID]; !ok {
		return domain.ErrSecurityNotFound
	}
	r.store.securities[security.ID] = *security
	return nil
}

func (r *securityRepository) ListQSBSEligible(ctx context.Context) ([]*domain.Security, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	securities := make([]*domain.Security, 0)
	for _, s := range r.store.securities {
		if s.IsQSBSEligible {
			security := s
			securities = append(securities, &security)
		}
	}
	sort.Slice(securities, func(i, j int) bool { return securities[i].Symbol < securities[j].Symbol })
	return securities, nil
}

// positionRepository implements domain.PositionRepository
type positionRepository struct {
	store *Store
}

// NewPositionRepository creates a position repository over store
func NewPositionRepository(store *Store) domain.PositionRepository {
	return &positionRepository{store: store}
}

func (r *positionRepository) Create(ctx context.Context, position *domain.Position) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.positions {
		if p.AccountID == position.AccountID && p.SecurityID == position.SecurityID {
			return fmt.Errorf("failed to create position: account %s already holds security %s", position.AccountID, position.SecurityID)
		}
	}
	r.store.positions[position.ID] = *position
	return nil
}

func (r *positionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	position, ok := r.store.positions[id]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return &position, nil
}

func (r *positionRepository) GetByAccountAndSecurity(ctx context.Context, accountID, securityID uuid.UUID) (*domain.Position, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, p := range r.store.positions {
		if p.AccountID == accountID && p.SecurityID == securityID {
			position := p
			return &position, nil
		}
	}
	return nil, domain.ErrPositionNotFound
}

func (r *positionRepository) ListBySecurity(ctx context.Context, securityID uuid.UUID) ([]*domain.Position, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	positions := make([]*domain.Position, 0)
	for _, p := range r.store.positions {
		if p.SecurityID == securityID {
			position := p
			positions = append(positions, &position)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID.String() < positions[j].ID.String() })
	return positions, nil
}

// taxLotRepository implements domain.TaxLotRepository. Lots are cloned on the
// way in and out so callers never alias stored state.
type taxLotRepository struct {
	store *Store
}

// NewTaxLotRepository creates a tax lot repository over store
func NewTaxLotRepository(store *Store) domain.TaxLotRepository {
	return &taxLotRepository{store: store}
}

func (r *taxLotRepository) Add(ctx context.Context, lot *domain.TaxLot) error {
	if err := lot.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.lots[lot.ID]; exists {
		return fmt.Errorf("failed to add tax lot: id %s already exists", lot.ID)
	}
	r.store.lots[lot.ID] = lot.Clone()
	return nil
}

func (r *taxLotRepository) Update(ctx context.Context, lot *domain.TaxLot) error {
	if err := lot.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.lots[lot.ID]; !ok {
		return domain.ErrTaxLotNotFound
	}
	r.store.lots[lot.ID] = lot.Clone()
	return nil
}

func (r *taxLotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TaxLot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	lot, ok := r.store.lots[id]
	if !ok {
		return nil, domain.ErrTaxLotNotFound
	}
	return lot.Clone(), nil
}

func (r *taxLotRepository) ListOpenByPosition(ctx context.Context, positionID uuid.UUID) ([]*domain.TaxLot, error) {
	return r.list(positionID, func(l *domain.TaxLot) bool { return l.IsOpen() }), nil
}

func (r *taxLotRepository) ListByPosition(ctx context.Context, positionID uuid.UUID) ([]*domain.TaxLot, error) {
	return r.list(positionID, func(*domain.TaxLot) bool { return true }), nil
}

func (r *taxLotRepository) ListWashSaleCandidates(ctx context.Context, positionID uuid.UUID, saleDate time.Time) ([]*domain.TaxLot, error) {
	return r.list(positionID, func(l *domain.TaxLot) bool { return l.InWashSaleWindow(saleDate) }), nil
}

func (r *taxLotRepository) list(positionID uuid.UUID, keep func(*domain.TaxLot) bool) []*domain.TaxLot {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	lots := make([]*domain.TaxLot, 0)
	for _, l := range r.store.lots {
		if l.PositionID == positionID && keep(l) {
			lots = append(lots, l.Clone())
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].AcquisitionDate.Equal(lots[j].AcquisitionDate) {
			return lots[i].AcquisitionDate.Before(lots[j].AcquisitionDate)
		}
		return lots[i].ID.String() < lots[j].ID.String()
	})
	return lots
}

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	store *Store
}

// NewTransactionRepository creates a transaction repository over store
func NewTransactionRepository(store *Store) domain.TransactionRepository {
	return &transactionRepository{store: store}
}

func (r *transactionRepository) Add(ctx context.Context, tx *domain.Transaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.transactions[tx.ID]; exists {
		return fmt.Errorf("failed to add transaction: id %s already exists", tx.ID)
	}
	r.store.transactions[tx.ID] = cloneTransaction(tx)
	r.store.txOrder = append(r.store.txOrder, tx.ID)
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	tx, ok := r.store.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return cloneTransaction(tx), nil
}

func (r *transactionRepository) MarkReversed(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx, ok := r.store.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	tx.IsReversed = true
	return nil
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, start, end *time.Time) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	txs := make([]*domain.Transaction, 0)
	for _, id := range r.store.txOrder {
		tx := r.store.transactions[id]
		if start != nil && tx.TransactionDate.Before(domain.DateOf(*start)) {
			continue
		}
		if end != nil && tx.TransactionDate.After(domain.DateOf(*end)) {
			continue
		}
		for _, e := range tx.Entries {
			if e.AccountID == accountID {
				txs = append(txs, cloneTransaction(tx))
				break
			}
		}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].TransactionDate.Before(txs[j].TransactionDate) })
	return txs, nil
}

// corporateActionRepository implements domain.CorporateActionRepository
type corporateActionRepository struct {
	store *Store
}

// NewCorporateActionRepository creates a corporate action repository over store
func NewCorporateActionRepository(store *Store) domain.CorporateActionRepository {
	return &corporateActionRepository{store: store}
}

func (r *corporateActionRepository) Add(ctx context.Context, action *domain.CorporateAction) error {
	if err := action.Validate(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := actionKey(action.SecurityID, action.ID)
	if _, exists := r.store.corporateActions[key]; exists {
		return fmt.Errorf("failed to add corporate action: %s already recorded", key)
	}
	r.store.corporateActions[key] = *action
	return nil
}

func (r *corporateActionRepository) Get(ctx context.Context, securityID uuid.UUID, actionID string) (*domain.CorporateAction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	action, ok := r.store.corporateActions[actionKey(securityID, actionID)]
	if !ok {
		return nil, domain.ErrCorporateActionNotFound
	}
	return &action, nil
}

func (r *corporateActionRepository) ListBySecurity(ctx context.Context, securityID uuid.UUID) ([]*domain.CorporateAction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	actions := make([]*domain.CorporateAction, 0)
	for _, a := range r.store.corporateActions {
		if a.SecurityID == securityID {
			action := a
			actions = append(actions, &action)
		}
	}
	sort.Slice(actions, func(i, j int) bool {
		if !actions[i].EffectiveDate.Equal(actions[j].EffectiveDate) {
			return actions[i].EffectiveDate.Before(actions[j].EffectiveDate)
		}
		return actions[i].ID < actions[j].ID
	})
	return actions, nil
}
