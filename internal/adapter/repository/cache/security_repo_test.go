package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

type MockSecurityRepository struct {
	mock.Mock
}

func (m *MockSecurityRepository) Create(ctx context.Context, security *domain.Security) error {
	args := m.Called(ctx, security)
	return args.Error(0)
}

func (m *MockSecurityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Security), args.Error(1)
}

func (m *MockSecurityRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Security, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Security), args.Error(1)
}

func (m *MockSecurityRepository) Update(ctx context.Context, security *domain.Security) error {
	args := m.Called(ctx, security)
	return args.Error(0)
}

func (m *MockSecurityRepository) ListQSBSEligible(ctx context.Context) ([]*domain.Security, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*domain.Security), args.Error(1)
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

func newSecurity() *domain.Security {
	return &domain.Security{ID: uuid.New(), Symbol: "ACME", Name: "Acme Corp", AssetClass: domain.AssetClassEquity}
}

func TestSecurityRepository_CachesLookups(t *testing.T) {
	next := new(MockSecurityRepository)
	repo := NewSecurityRepository(next, 0, 0, inTx)
	ctx := context.Background()
	sec := newSecurity()

	next.On("GetByID", ctx, sec.ID).Return(sec, nil).Once()

	first, err := repo.GetByID(ctx, sec.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// the id lookup also primed the symbol key
	bySymbol, err := repo.GetBySymbol(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, sec.ID, bySymbol.ID)
	assert.Equal(t, 2, repo.Len())

	// callers get copies
	second.Name = "mutated"
	third, err := repo.GetByID(ctx, sec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", third.Name)

	next.AssertExpectations(t)
}

func TestSecurityRepository_NotFoundIsNotCached(t *testing.T) {
	next := new(MockSecurityRepository)
	repo := NewSecurityRepository(next, 0, 0, inTx)
	ctx := context.Background()
	id := uuid.New()

	next.On("GetByID", ctx, id).Return(nil, domain.ErrSecurityNotFound).Twice()

	_, err := repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSecurityNotFound)
	_, err = repo.GetByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrSecurityNotFound)
	assert.Equal(t, 0, repo.Len())
	next.AssertExpectations(t)
}

func TestSecurityRepository_TransactionBypass(t *testing.T) {
	next := new(MockSecurityRepository)
	repo := NewSecurityRepository(next, 0, 0, inTx)
	txCtx := context.WithValue(context.Background(), txKey{}, true)
	sec := newSecurity()

	next.On("GetBySymbol", txCtx, "ACME").Return(sec, nil).Twice()

	for i := 0; i < 2; i++ {
		_, err := repo.GetBySymbol(txCtx, "ACME")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, repo.Len())
	next.AssertExpectations(t)
}

func TestSecurityRepository_WritesFlush(t *testing.T) {
	next := new(MockSecurityRepository)
	repo := NewSecurityRepository(next, 0, 0, nil)
	ctx := context.Background()
	sec := newSecurity()
	renamed := *sec
	renamed.Symbol = "ACMX"

	next.On("GetBySymbol", ctx, "ACME").Return(sec, nil).Once()
	next.On("Update", ctx, &renamed).Return(nil).Once()
	next.On("GetBySymbol", ctx, "ACME").Return(nil, domain.ErrSecurityNotFound).Once()

	_, err := repo.GetBySymbol(ctx, "ACME")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, &renamed))
	assert.Equal(t, 0, repo.Len())

	_, err = repo.GetBySymbol(ctx, "ACME")
	assert.ErrorIs(t, err, domain.ErrSecurityNotFound)

	other := newSecurity()
	next.On("Create", ctx, other).Return(nil).Once()
	require.NoError(t, repo.Create(ctx, other))

	next.On("ListQSBSEligible", ctx).Return([]*domain.Security{}, nil).Once()
	list, err := repo.ListQSBSEligible(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	next.AssertExpectations(t)
}
