package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// Store keeps every ledger record in process memory. It backs tests and the
// CLI's --memory mode; all repositories built from one Store share its state.
type Store struct {
	mu sync.RWMutex

	accounts         map[uuid.UUID]domain.Account
	securities       map[uuid.UUID]domain.Security
	positions        map[uuid.UUID]domain.Position
	lots             map[uuid.UUID]*domain.TaxLot
	transactions     map[uuid.UUID]*domain.Transaction
	txOrder          []uuid.UUID
	corporateActions map[string]domain.CorporateAction

	// txMu serializes WithinTransaction callers
	txMu sync.Mutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		accounts:         make(map[uuid.UUID]domain.Account),
		securities:       make(map[uuid.UUID]domain.Security),
		positions:        make(map[uuid.UUID]domain.Position),
		lots:             make(map[uuid.UUID]*domain.TaxLot),
		transactions:     make(map[uuid.UUID]*domain.Transaction),
		corporateActions: make(map[string]domain.CorporateAction),
	}
}

type snapshot struct {
	accounts         map[uuid.UUID]domain.Account
	securities       map[uuid.UUID]domain.Security
	positions        map[uuid.UUID]domain.Position
	lots             map[uuid.UUID]*domain.TaxLot
	transactions     map[uuid.UUID]*domain.Transaction
	txOrder          []uuid.UUID
	corporateActions map[string]domain.CorporateAction
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		accounts:         make(map[uuid.UUID]domain.Account, len(s.accounts)),
		securities:       make(map[uuid.UUID]domain.Security, len(s.securities)),
		positions:        make(map[uuid.UUID]domain.Position, len(s.positions)),
		lots:             make(map[uuid.UUID]*domain.TaxLot, len(s.lots)),
		transactions:     make(map[uuid.UUID]*domain.Transaction, len(s.transactions)),
		txOrder:          append([]uuid.UUID(nil), s.txOrder...),
		corporateActions: make(map[string]domain.CorporateAction, len(s.corporateActions)),
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.securities {
		snap.securities[k] = v
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	for k, v := range s.lots {
		snap.lots[k] = v.Clone()
	}
	for k, v := range s.transactions {
		snap.transactions[k] = cloneTransaction(v)
	}
	for k, v := range s.corporateActions {
		snap.corporateActions[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = snap.accounts
	s.securities = snap.securities
	s.positions = snap.positions
	s.lots = snap.lots
	s.transactions = snap.transactions
	s.txOrder = snap.txOrder
	s.corporateActions = snap.corporateActions
}

type txKey struct{}

// Transactor implements domain.Transactor by snapshotting the store and
// restoring it when fn fails. Nested calls join the outer transaction.
type Transactor struct {
	store *Store
}

// NewTransactor creates a transactor over store
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

// WithinTransaction runs fn atomically against the store
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	snap := t.store.snapshot()
	defer func() {
		if p := recover(); p != nil {
			t.store.restore(snap)
			panic(p)
		}
		if err != nil {
			t.store.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true))
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	c := *tx
	c.Entries = make([]domain.Entry, len(tx.Entries))
	for i, e := range tx.Entries {
		if e.TaxLotID != nil {
			id := *e.TaxLotID
			e.TaxLotID = &id
		}
		c.Entries[i] = e
	}
	if tx.ReversesTransactionID != nil {
		id := *tx.ReversesTransactionID
		c.ReversesTransactionID = &id
	}
	return &c
}

func actionKey(securityID uuid.UUID, actionID string) string {
	return securityID.String() + "/" + strings.TrimSpace(actionID)
}

// NewRepositories builds every repository over one fresh store
func NewRepositories() domain.Repositories {
	store := NewStore()
	return domain.Repositories{
		Accounts:         NewAccountRepository(store),
		Securities:       NewSecurityRepository(store),
		Positions:        NewPositionRepository(store),
		TaxLots:          NewTaxLotRepository(store),
		Transactions:     NewTransactionRepository(store),
		CorporateActions: NewCorporateActionRepository(store),
		Transactor:       NewTransactor(store),
	}
}
