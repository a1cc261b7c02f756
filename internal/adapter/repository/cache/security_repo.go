// Package cache decorates repositories with an in-process read cache
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// DefaultTTL bounds how long a security stays cached after another process changed it
const DefaultTTL = time.Minute

// SecurityRepository caches security lookups by id and by symbol.
// Reads made inside a storage transaction bypass the cache so uncommitted
// state is never published; every write flushes it.
type SecurityRepository struct {
	next          domain.SecurityRepository
	cache         *gocache.Cache
	inTransaction func(ctx context.Context) bool
}

// NewSecurityRepository wraps next. inTransaction may be nil when the backend has no transactions.
func NewSecurityRepository(next domain.SecurityRepository, ttl, cleanupInterval time.Duration, inTransaction func(ctx context.Context) bool) *SecurityRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 2 * ttl
	}
	if inTransaction == nil {
		inTransaction = func(context.Context) bool { return false }
	}
	return &SecurityRepository{
		next:          next,
		cache:         gocache.New(ttl, cleanupInterval),
		inTransaction: inTransaction,
	}
}

func idKey(id uuid.UUID) string {
	return "id:" + id.String()
}

func symbolKey(symbol string) string {
	return "symbol:" + strings.ToUpper(strings.TrimSpace(symbol))
}

func (r *SecurityRepository) lookup(key string) (*domain.Security, bool) {
	cached, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	security := cached.(domain.Security)
	return &security, true
}

func (r *SecurityRepository) store(security *domain.Security) {
	r.cache.SetDefault(idKey(security.ID), *security)
	r.cache.SetDefault(symbolKey(security.Symbol), *security)
}

// Create stores a security and flushes the cache
func (r *SecurityRepository) Create(ctx context.Context, security *domain.Security) error {
	if err := r.next.Create(ctx, security); err != nil {
		return err
	}
	r.cache.Flush()
	return nil
}

// GetByID serves from the cache when possible
func (r *SecurityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	cacheable := !r.inTransaction(ctx)
	if cacheable {
		if security, ok := r.lookup(idKey(id)); ok {
			return security, nil
		}
	}
	security, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cacheable {
		r.store(security)
	}
	return security, nil
}

// GetBySymbol serves from the cache when possible
func (r *SecurityRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Security, error) {
	cacheable := !r.inTransaction(ctx)
	if cacheable {
		if security, ok := r.lookup(symbolKey(symbol)); ok {
			return security, nil
		}
	}
	security, err := r.next.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if cacheable {
		r.store(security)
	}
	return security, nil
}

// Update writes through and flushes the cache; a symbol change invalidates the old symbol key too
func (r *SecurityRepository) Update(ctx context.Context, security *domain.Security) error {
	r.cache.Flush()
	if err := r.next.Update(ctx, security); err != nil {
		return err
	}
	r.cache.Flush()
	return nil
}

// ListQSBSEligible is not cached
func (r *SecurityRepository) ListQSBSEligible(ctx context.Context) ([]*domain.Security, error) {
	return r.next.ListQSBSEligible(ctx)
}

// Len returns the number of cached keys
func (r *SecurityRepository) Len() int {
	return r.cache.ItemCount()
}
