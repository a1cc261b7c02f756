package washsale

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/adapter/repository/memory"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/lotmatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(v float64) domain.Money {
	return domain.MustMoney(v, "USD")
}

var saleDate = domain.NewDate(2024, time.June, 1)

type fixture struct {
	service  *WashSaleService
	repos    domain.Repositories
	entity   uuid.UUID
	security *domain.Security
	position *domain.Position
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	f := &fixture{
		service: NewWashSaleService(repos.Accounts, repos.Positions, repos.TaxLots, repos.Transactor, nil, logging.Discard()),
		repos:   repos,
		entity:  uuid.New(),
		security: &domain.Security{
			ID: uuid.New(), Symbol: "ACME", Name: "Acme Corp", AssetClass: domain.AssetClassEquity, IsActive: true,
		},
	}
	require.NoError(t, repos.Securities.Create(context.Background(), f.security))
	f.position = f.newPosition(t, f.entity)
	return f
}

func (f *fixture) newPosition(t *testing.T, entity uuid.UUID) *domain.Position {
	t.Helper()
	ctx := context.Background()
	account := &domain.Account{ID: uuid.New(), EntityID: entity, Name: "Brokerage " + uuid.NewString()[:4], Type: domain.AccountTypeAsset, Currency: domain.USD, IsActive: true}
	require.NoError(t, f.repos.Accounts.Create(ctx, account))
	position := &domain.Position{ID: uuid.New(), AccountID: account.ID, SecurityID: f.security.ID}
	require.NoError(t, f.repos.Positions.Create(ctx, position))
	return position
}

func (f *fixture) addLot(t *testing.T, positionID uuid.UUID, offsetDays int, qty int64, kind domain.AcquisitionType) *domain.TaxLot {
	t.Helper()
	lot := domain.NewTaxLot(positionID, saleDate.AddDate(0, 0, offsetDays), domain.QuantityOf(qty), usd(50), kind)
	require.NoError(t, f.repos.TaxLots.Add(context.Background(), lot))
	return lot
}

func TestDetectWashSales_Window(t *testing.T) {
	f := newFixture(t)
	inside := f.addLot(t, f.position.ID, 10, 100, domain.AcquisitionTypePurchase)
	f.addLot(t, f.position.ID, 40, 100, domain.AcquisitionTypePurchase)

	candidates, err := f.service.DetectWashSales(context.Background(), f.position.ID, saleDate, usd(-500), nil)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, inside.ID, candidates[0].ID)
}

func TestDetectWashSales_Filters(t *testing.T) {
	f := newFixture(t)
	sold := f.addLot(t, f.position.ID, -5, 100, domain.AcquisitionTypePurchase)
	f.addLot(t, f.position.ID, 3, 100, domain.AcquisitionTypeGift)
	f.addLot(t, f.position.ID, 4, 100, domain.AcquisitionTypeSpinoff)
	reinvested := f.addLot(t, f.position.ID, 5, 2, domain.AcquisitionTypeReinvestment)

	sameEntity := f.newPosition(t, f.entity)
	sibling := f.addLot(t, sameEntity.ID, -20, 10, domain.AcquisitionTypePurchase)

	otherEntity := f.newPosition(t, uuid.New())
	f.addLot(t, otherEntity.ID, 1, 10, domain.AcquisitionTypePurchase)

	candidates, err := f.service.DetectWashSales(context.Background(), f.position.ID, saleDate, usd(200), []uuid.UUID{sold.ID})
	require.NoError(t, err)

	require.Len(t, candidates, 2)
	assert.Equal(t, sibling.ID, candidates[0].ID)
	assert.Equal(t, reinvested.ID, candidates[1].ID)

	none, err := f.service.DetectWashSales(context.Background(), f.position.ID, saleDate, usd(0), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAllocate_ProportionalToReplacementQuantity(t *testing.T) {
	positionID := uuid.New()
	a := domain.NewTaxLot(positionID, saleDate.AddDate(0, 0, 1), domain.QuantityOf(30), usd(10), domain.AcquisitionTypePurchase)
	b := domain.NewTaxLot(positionID, saleDate.AddDate(0, 0, 2), domain.QuantityOf(50), usd(10), domain.AcquisitionTypePurchase)

	adjustments, err := Allocate(usd(-1000), domain.QuantityOf(100), []*domain.TaxLot{a, b})
	require.NoError(t, err)

	require.Len(t, adjustments, 2)
	assert.True(t, adjustments[0].Disallowed.Equal(usd(300)))
	assert.True(t, adjustments[1].Disallowed.Equal(usd(500)))

	capped, err := Allocate(usd(1000), domain.QuantityOf(40), []*domain.TaxLot{a, b})
	require.NoError(t, err)
	require.Len(t, capped, 2)
	assert.True(t, capped[0].Disallowed.Equal(usd(750)))
	assert.True(t, capped[1].Disallowed.Equal(usd(250)))
	assert.True(t, capped[1].Absorbed.Equal(domain.QuantityOf(10)))

	_, err = Allocate(usd(10), domain.ZeroQuantity, []*domain.TaxLot{a})
	assert.ErrorIs(t, err, domain.ErrInvalidLotOperation)
}

func TestApplyWashSale_MarksReplacementBasis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	replacement := f.addLot(t, f.position.ID, 10, 100, domain.AcquisitionTypePurchase)

	result, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate, usd(-400), domain.QuantityOf(100), nil)
	require.NoError(t, err)
	require.Len(t, result.Adjustments, 1)
	assert.True(t, result.Disallowed.Equal(usd(400)))

	stored, err := f.repos.TaxLots.GetByID(ctx, replacement.ID)
	require.NoError(t, err)
	assert.True(t, stored.WashSaleDisallowed)
	assert.True(t, stored.WashSaleAdjustment.Equal(usd(400)))
	assert.True(t, stored.CostPerShare.Equal(usd(50)))
	assert.True(t, stored.AdjustedCostPerShare().Equal(usd(54)))
}

func TestApplyWashSale_NoReplacement(t *testing.T) {
	f := newFixture(t)
	f.addLot(t, f.position.ID, 45, 100, domain.AcquisitionTypePurchase)

	result, err := f.service.ApplyWashSale(context.Background(), f.position.ID, saleDate, usd(-400), domain.QuantityOf(100), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Adjustments)
	assert.True(t, result.Disallowed.IsZero())
	assert.True(t, result.Unreplaced.Equal(domain.QuantityOf(100)))

	_, err = f.service.ApplyWashSale(context.Background(), f.position.ID, saleDate, usd(-400), domain.ZeroQuantity, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidLotOperation)
}

func TestApplyWashSale_PartlySoldReplacementKeepsFullDeferral(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sold := f.addLot(t, f.position.ID, -200, 40, domain.AcquisitionTypePurchase)
	replacement := f.addLot(t, f.position.ID, -10, 100, domain.AcquisitionTypePurchase)

	_, err := replacement.Sell(domain.QuantityOf(60), saleDate.AddDate(0, 0, -5))
	require.NoError(t, err)
	require.NoError(t, f.repos.TaxLots.Update(ctx, replacement))

	result, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate, usd(-400), domain.QuantityOf(40), []uuid.UUID{sold.ID})
	require.NoError(t, err)
	require.Len(t, result.Adjustments, 1)
	assert.True(t, result.Disallowed.Equal(usd(400)))
	assert.True(t, result.Unreplaced.IsZero())

	stored, err := f.repos.TaxLots.GetByID(ctx, replacement.ID)
	require.NoError(t, err)
	assert.True(t, stored.AdjustedCostPerShare().Equal(usd(60)))
	assert.True(t, stored.AdjustedRemainingCostBasis().Equal(usd(2400)))

	lots := lotmatch.NewLotMatchingService(f.repos.TaxLots, f.repos.Transactor, nil, logging.Discard())
	dispositions, err := lots.ExecuteSale(ctx, lotmatch.SaleRequest{
		PositionID: f.position.ID,
		Quantity:   domain.QuantityOf(40),
		Method:     lotmatch.SpecificID,
		LotIDs:     []uuid.UUID{replacement.ID},
		SaleDate:   saleDate.AddDate(0, 0, 20),
	}, usd(2400))
	require.NoError(t, err)
	require.Len(t, dispositions, 1)
	assert.True(t, dispositions[0].CostBasis.Equal(usd(2400)), "basis %s", dispositions[0].CostBasis)
	assert.True(t, dispositions[0].WashSaleAdjustment.Equal(usd(400)))
	assert.True(t, dispositions[0].RealizedGain().IsZero())
}

func TestApplyWashSale_DeferralReleasedAcrossPartialSales(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	replacement := f.addLot(t, f.position.ID, 5, 100, domain.AcquisitionTypePurchase)

	_, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate, usd(-300), domain.QuantityOf(100), nil)
	require.NoError(t, err)

	stored, err := f.repos.TaxLots.GetByID(ctx, replacement.ID)
	require.NoError(t, err)
	total := domain.ZeroMoney(domain.USD)
	for _, qty := range []int64{30, 45, 25} {
		basis, err := stored.Sell(domain.QuantityOf(qty), saleDate.AddDate(0, 0, 40))
		require.NoError(t, err)
		total, err = total.Add(basis)
		require.NoError(t, err)
	}
	assert.True(t, total.Equal(usd(5300)), "total basis %s", total)
	assert.True(t, stored.WashSaleAdjustment.IsZero())
}

func TestApplyWashSale_ReplacementCountsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	replacement := f.addLot(t, f.position.ID, 5, 50, domain.AcquisitionTypePurchase)

	first, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate, usd(-500), domain.QuantityOf(50), nil)
	require.NoError(t, err)
	require.Len(t, first.Adjustments, 1)
	assert.True(t, first.Unreplaced.IsZero())

	second, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate.AddDate(0, 0, 3), usd(-300), domain.QuantityOf(30), nil)
	require.NoError(t, err)
	assert.Empty(t, second.Adjustments)
	assert.True(t, second.Unreplaced.Equal(domain.QuantityOf(30)))
	assert.True(t, second.UnreplacedLoss.Equal(usd(300)))

	stored, err := f.repos.TaxLots.GetByID(ctx, replacement.ID)
	require.NoError(t, err)
	assert.True(t, stored.WashSaleAdjustment.Equal(usd(500)))
	assert.True(t, stored.WashSaleReplaced.Equal(domain.QuantityOf(50)))
	assert.True(t, stored.ReplacementCapacity().IsZero())
}

func TestApplyWashSale_LaterPurchaseAbsorbsRemainder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	atSale, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate, usd(-400), domain.QuantityOf(100), nil)
	require.NoError(t, err)
	assert.Empty(t, atSale.Adjustments)
	assert.True(t, atSale.Unreplaced.Equal(domain.QuantityOf(100)))
	assert.True(t, atSale.UnreplacedLoss.Equal(usd(400)))

	later := f.addLot(t, f.position.ID, 10, 60, domain.AcquisitionTypePurchase)
	followUp, err := f.service.ApplyWashSale(ctx, f.position.ID, saleDate, atSale.UnreplacedLoss, atSale.Unreplaced, nil)
	require.NoError(t, err)
	require.Len(t, followUp.Adjustments, 1)
	assert.Equal(t, later.ID, followUp.Adjustments[0].LotID)
	assert.True(t, followUp.Disallowed.Equal(usd(240)))
	assert.True(t, followUp.Unreplaced.Equal(domain.QuantityOf(40)))
	assert.True(t, followUp.UnreplacedLoss.Equal(usd(160)))

	stored, err := f.repos.TaxLots.GetByID(ctx, later.ID)
	require.NoError(t, err)
	assert.True(t, stored.AdjustedCostPerShare().Equal(usd(54)))
}

func TestRelatedPositions_UnknownPosition(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.RelatedPositions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}
