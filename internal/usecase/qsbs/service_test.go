package qsbs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/memory"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func usd(v float64) domain.Money {
	return domain.MustMoney(v, "USD")
}

var asOf = domain.NewDate(2025, time.June, 30)

type fixture struct {
	service *QSBSService
	repos   domain.Repositories
	account uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	account := &domain.Account{ID: uuid.New(), EntityID: uuid.New(), Name: "Founder", Type: domain.AccountTypeAsset, Currency: domain.USD}
	require.NoError(t, repos.Accounts.Create(context.Background(), account))
	return &fixture{
		service: NewQSBSService(repos.Securities, repos.Positions, repos.TaxLots, domain.USD, logging.Discard()),
		repos:   repos,
		account: account.ID,
	}
}

func (f *fixture) holding(t *testing.T, symbol, issuer string, eligible bool) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	sec := &domain.Security{ID: uuid.New(), Symbol: symbol, Name: symbol + " Corp", Issuer: issuer, AssetClass: domain.AssetClassPrivateEquity, IsQSBSEligible: eligible, IsActive: true}
	require.NoError(t, f.repos.Securities.Create(ctx, sec))
	p := &domain.Position{ID: uuid.New(), AccountID: f.account, SecurityID: sec.ID}
	require.NoError(t, f.repos.Positions.Create(ctx, p))
	return p.ID
}

func (f *fixture) lot(t *testing.T, positionID uuid.UUID, acquired time.Time, qty int64, cps float64) *domain.TaxLot {
	t.Helper()
	lot := domain.NewTaxLot(positionID, acquired, domain.QuantityOf(qty), usd(cps), domain.AcquisitionTypePurchase)
	require.NoError(t, f.repos.TaxLots.Add(context.Background(), lot))
	return lot
}

func TestIsQualified_Boundary(t *testing.T) {
	assert.True(t, IsQualified(asOf.AddDate(0, 0, -1825), asOf))
	assert.False(t, IsQualified(asOf.AddDate(0, 0, -1824), asOf))
	assert.True(t, IsQualified(asOf.AddDate(-10, 0, 0), asOf))
}

func TestPotentialExclusion(t *testing.T) {
	tests := []struct {
		name  string
		basis domain.Money
		want  domain.Money
	}{
		{name: "Ten times basis below the cap", basis: usd(250_000), want: usd(2_500_000)},
		{name: "Cap binds", basis: usd(1_500_000), want: usd(10_000_000)},
		{name: "Exactly at the cap", basis: usd(1_000_000), want: usd(10_000_000)},
		{name: "Zero basis", basis: usd(0), want: usd(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, PotentialExclusion(tt.basis).Equal(tt.want))
		})
	}
}

func TestGetSummary_ClassifiesAtBoundary(t *testing.T) {
	f := newFixture(t)
	p := f.holding(t, "STRT", "Startup Inc", true)
	qualified := f.lot(t, p, asOf.AddDate(0, 0, -1825), 1000, 5)
	pending := f.lot(t, p, asOf.AddDate(0, 0, -1824), 1000, 7)

	summary, err := f.service.GetSummary(context.Background(), asOf)
	require.NoError(t, err)

	require.Len(t, summary.Qualified, 1)
	require.Len(t, summary.Pending, 1)
	assert.Equal(t, qualified.ID, summary.Qualified[0].LotID)
	assert.Equal(t, 1825, summary.Qualified[0].HoldingPeriodDays)
	assert.Equal(t, 0, summary.Qualified[0].DaysUntilQualified)
	assert.True(t, summary.Qualified[0].PotentialExclusion.Equal(usd(50_000)))

	assert.Equal(t, pending.ID, summary.Pending[0].LotID)
	assert.Equal(t, 1, summary.Pending[0].DaysUntilQualified)
	assert.Equal(t, asOf.AddDate(0, 0, 1), summary.Pending[0].QualificationDate)
	assert.True(t, summary.Pending[0].PotentialExclusion.IsZero())

	assert.True(t, summary.TotalQualifiedBasis.Equal(usd(5000)))
	assert.True(t, summary.TotalPendingBasis.Equal(usd(7000)))
	assert.True(t, summary.TotalPotentialExclusion.Equal(usd(50_000)))
}

func TestGetSummary_PendingOrderAndIneligibleSkipped(t *testing.T) {
	f := newFixture(t)
	p := f.holding(t, "STRT", "Startup Inc", true)
	ignored := f.holding(t, "BIG", "Big Co", false)
	f.lot(t, ignored, asOf.AddDate(-1, 0, 0), 10, 1)

	late := f.lot(t, p, asOf.AddDate(0, 0, -100), 10, 1)
	early := f.lot(t, p, asOf.AddDate(0, 0, -1500), 10, 1)
	middle := f.lot(t, p, asOf.AddDate(0, 0, -900), 10, 1)

	summary, err := f.service.GetSummary(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, summary.Pending, 3)
	assert.Equal(t, []uuid.UUID{early.ID, middle.ID, late.ID},
		[]uuid.UUID{summary.Pending[0].LotID, summary.Pending[1].LotID, summary.Pending[2].LotID})
	assert.Equal(t, 325, summary.Pending[0].DaysUntilQualified)
	assert.Empty(t, summary.Qualified)
}

func TestGetSummary_ClosedLotsAndWashAdjustedBasis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.holding(t, "STRT", "Startup Inc", true)

	closed := f.lot(t, p, asOf.AddDate(-6, 0, 0), 10, 1)
	_, err := closed.Sell(domain.QuantityOf(10), asOf.AddDate(-1, 0, 0))
	require.NoError(t, err)
	require.NoError(t, f.repos.TaxLots.Update(ctx, closed))

	adjusted := f.lot(t, p, asOf.AddDate(-6, 0, 0), 100, 10)
	require.NoError(t, adjusted.MarkWashSale(usd(200)))
	require.NoError(t, f.repos.TaxLots.Update(ctx, adjusted))

	summary, err := f.service.GetSummary(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, summary.Qualified, 1)
	assert.True(t, summary.Qualified[0].CostBasis.Equal(usd(1200)))
	assert.True(t, summary.Qualified[0].PotentialExclusion.Equal(usd(12_000)))
}

func TestGetSummary_IssuerAggregateCap(t *testing.T) {
	f := newFixture(t)
	common := f.holding(t, "ACMEA", "Acme Holdings", true)
	preferred := f.holding(t, "ACMEP", "Acme Holdings", true)
	other := f.holding(t, "OTHR", "", true)

	acquired := asOf.AddDate(-6, 0, 0)
	f.lot(t, common, acquired, 1, 600_000)
	f.lot(t, preferred, acquired, 1, 700_000)
	f.lot(t, other, acquired, 1, 100)

	summary, err := f.service.GetSummary(context.Background(), asOf)
	require.NoError(t, err)

	require.Len(t, summary.Issuers, 2)
	acme := summary.Issuers[0]
	assert.Equal(t, "Acme Holdings", acme.Issuer)
	assert.Equal(t, 2, acme.Holdings)
	assert.True(t, acme.QualifiedBasis.Equal(usd(1_300_000)))
	assert.True(t, acme.PotentialExclusion.Equal(usd(10_000_000)))

	// holdings keep their own estimate, the total counts each issuer's cap once
	assert.True(t, summary.TotalPotentialExclusion.Equal(usd(10_000_000+1000)))

	assert.Equal(t, "OTHR Corp", summary.Issuers[1].Issuer)
	assert.True(t, summary.Issuers[1].PotentialExclusion.Equal(usd(1000)))
}

func TestGetSummary_ForeignCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.holding(t, "EURO", "Euro GmbH", true)
	lot := domain.NewTaxLot(p, asOf.AddDate(-6, 0, 0), domain.QuantityOf(10), domain.MustMoney(100, "EUR"), domain.AcquisitionTypePurchase)
	require.NoError(t, f.repos.TaxLots.Add(ctx, lot))

	_, err := f.service.GetSummary(ctx, asOf)
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	f.service.Converter = domain.ConverterFunc(func(ctx context.Context, amount domain.Money, to domain.Currency, date time.Time) (domain.Money, error) {
		return domain.MoneyIn(amount.Amount().Mul(domain.QuantityOf(2).Decimal()), to), nil
	})
	summary, err := f.service.GetSummary(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, summary.Qualified, 1)
	assert.True(t, summary.Qualified[0].CostBasis.Equal(usd(2000)))
}

// MockTaxLotRepository is a mock implementation of domain.TaxLotRepository
type MockTaxLotRepository struct {
	mock.Mock
}

func (m *MockTaxLotRepository) Add(ctx context.Context, lot *domain.TaxLot) error {
	return m.Called(ctx, lot).Error(0)
}

func (m *MockTaxLotRepository) Update(ctx context.Context, lot *domain.TaxLot) error {
	return m.Called(ctx, lot).Error(0)
}

func (m *MockTaxLotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TaxLot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TaxLot), args.Error(1)
}

func (m *MockTaxLotRepository) ListOpenByPosition(ctx context.Context, positionID uuid.UUID) ([]*domain.TaxLot, error) {
	args := m.Called(ctx, positionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TaxLot), args.Error(1)
}

func (m *MockTaxLotRepository) ListByPosition(ctx context.Context, positionID uuid.UUID) ([]*domain.TaxLot, error) {
	args := m.Called(ctx, positionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TaxLot), args.Error(1)
}

func (m *MockTaxLotRepository) ListWashSaleCandidates(ctx context.Context, positionID uuid.UUID, saleDate time.Time) ([]*domain.TaxLot, error) {
	args := m.Called(ctx, positionID, saleDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TaxLot), args.Error(1)
}

func TestGetSummary_LotReadFailure(t *testing.T) {
	f := newFixture(t)
	f.holding(t, "STRT", "Startup Inc", true)
	f.holding(t, "NEXT", "Next Inc", true)

	lots := new(MockTaxLotRepository)
	lots.On("ListOpenByPosition", mock.Anything, mock.Anything).Return(nil, errors.New("disk on fire"))
	f.service.TaxLotRepo = lots
	f.service.Concurrency = 1

	_, err := f.service.GetSummary(context.Background(), asOf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Equal(t, domain.ErrCodeInternal, domain.CodeOf(err))
}

func TestSetEligibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.holding(t, "STRT", "", false)
	f.lot(t, p, asOf.AddDate(-6, 0, 0), 10, 1)
	position, err := f.repos.Positions.GetByID(ctx, p)
	require.NoError(t, err)

	summary, err := f.service.GetSummary(ctx, asOf)
	require.NoError(t, err)
	assert.Empty(t, summary.Qualified)

	sec, err := f.service.SetEligibility(ctx, position.SecurityID, true, "Startup Inc")
	require.NoError(t, err)
	assert.Equal(t, "Startup Inc", sec.Issuer)

	summary, err = f.service.GetSummary(ctx, asOf)
	require.NoError(t, err)
	require.Len(t, summary.Qualified, 1)
	assert.Equal(t, "Startup Inc", summary.Qualified[0].Issuer)

	_, err = f.service.SetEligibility(ctx, uuid.New(), true, "")
	assert.ErrorIs(t, err, domain.ErrSecurityNotFound)
}
