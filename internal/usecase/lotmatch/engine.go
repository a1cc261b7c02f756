package lotmatch

import (
	"fmt"
	"time"

	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/shopspring/decimal"
)

// Allocation is the planned consumption of one lot
type Allocation struct {
	Lot      *domain.TaxLot
	Quantity domain.Quantity
	// CostPerShare overrides the lot's own effective basis; set by average-cost pooling
	CostPerShare *domain.Money
}

// Plan decides which lots, and how much of each, a sale of quantity consumes.
// It does not mutate any lot.
func Plan(positionID string, lots []*domain.TaxLot, quantity domain.Quantity, selector Selector, method Method) ([]Allocation, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: sale quantity must be positive", domain.ErrInvalidLotOperation)
	}

	ordered, err := selector.Order(lots)
	if err != nil {
		return nil, err
	}

	available := domain.ZeroQuantity
	for _, lot := range ordered {
		available = available.Add(lot.RemainingQuantity)
	}
	if available.LessThan(quantity) {
		return nil, &domain.InsufficientLotsError{PositionID: positionID, Requested: quantity, Available: available}
	}

	if method == AverageCost {
		return planAverage(ordered, quantity, available)
	}
	return planGreedy(ordered, quantity), nil
}

// planGreedy consumes ordered lots until quantity is met, partially consuming the last one
func planGreedy(ordered []*domain.TaxLot, quantity domain.Quantity) []Allocation {
	allocations := make([]Allocation, 0, len(ordered))
	left := quantity
	for _, lot := range ordered {
		if !left.IsPositive() {
			break
		}
		take := domain.MinQuantity(lot.RemainingQuantity, left)
		if !take.IsPositive() {
			continue
		}
		allocations = append(allocations, Allocation{Lot: lot, Quantity: take})
		left = left.Sub(take)
	}
	return allocations
}

// planAverage pools every open lot into one synthetic lot at the blended
// effective cost, then fans the sold quantity back out proportionally.
// Proportional shares are truncated to QuantityScale places and the remainder
// is handed to lots in FIFO order up to their capacity.
func planAverage(ordered []*domain.TaxLot, quantity, available domain.Quantity) ([]Allocation, error) {
	cur := ordered[0].Currency()
	totalCost := domain.ZeroMoney(cur)
	for _, lot := range ordered {
		var err error
		if totalCost, err = totalCost.Add(lot.AdjustedRemainingCostBasis()); err != nil {
			return nil, err
		}
	}
	blended := totalCost.DivQuantity(available)

	shares := make([]domain.Quantity, len(ordered))
	assigned := domain.ZeroQuantity
	ratio := quantity.Ratio(available)
	for i, lot := range ordered {
		share := lot.RemainingQuantity.Mul(ratio).Truncate(domain.QuantityScale)
		share = domain.MinQuantity(share, lot.RemainingQuantity)
		shares[i] = share
		assigned = assigned.Add(share)
	}

	left := quantity.Sub(assigned)
	for i, lot := range ordered {
		if !left.IsPositive() {
			break
		}
		room := lot.RemainingQuantity.Sub(shares[i])
		extra := domain.MinQuantity(room, left)
		if extra.IsPositive() {
			shares[i] = shares[i].Add(extra)
			left = left.Sub(extra)
		}
	}

	allocations := make([]Allocation, 0, len(ordered))
	for i, lot := range ordered {
		if shares[i].IsPositive() {
			cps := blended
			allocations = append(allocations, Allocation{Lot: lot, Quantity: shares[i], CostPerShare: &cps})
		}
	}
	return allocations, nil
}

// Consume applies allocations to their lots via Sell and returns one disposition
// per lot with zero proceeds. On error, lots already sold are left mutated; callers
// run Consume inside an atomic unit and discard the lots on failure.
func Consume(allocations []Allocation, saleDate time.Time) ([]domain.LotDisposition, error) {
	dispositions := make([]domain.LotDisposition, 0, len(allocations))
	for _, a := range allocations {
		nominal := a.Lot.CostPerShare.MulQuantity(a.Quantity)
		basis, err := a.Lot.Sell(a.Quantity, saleDate)
		if err != nil {
			return nil, err
		}
		wash := domain.MoneyIn(basis.Amount().Sub(nominal.Amount()), a.Lot.Currency())
		if a.CostPerShare != nil {
			basis = a.CostPerShare.MulQuantity(a.Quantity)
		}

		dispositions = append(dispositions, domain.LotDisposition{
			LotID:              a.Lot.ID,
			QuantitySold:       a.Quantity,
			CostBasis:          basis,
			Proceeds:           domain.ZeroMoney(a.Lot.Currency()),
			AcquisitionDate:    a.Lot.AcquisitionDate,
			DispositionDate:    domain.DateOf(saleDate),
			WashSaleAdjustment: wash,
		})
	}
	return dispositions, nil
}

// AllocateProceeds spreads proceeds over dispositions pro rata by quantity.
// Each share is rounded to the currency's minor unit and the last disposition
// absorbs the rounding remainder, so the shares sum exactly to proceeds.
func AllocateProceeds(dispositions []domain.LotDisposition, proceeds domain.Money) error {
	if len(dispositions) == 0 {
		return nil
	}
	if proceeds.IsNegative() {
		return fmt.Errorf("%w: proceeds cannot be negative", domain.ErrInvalidLotOperation)
	}

	total := domain.ZeroQuantity
	for _, d := range dispositions {
		if d.CostBasis.Currency() != proceeds.Currency() {
			return fmt.Errorf("%w: proceeds in %s, lot %s in %s",
				domain.ErrCurrencyMismatch, proceeds.Currency(), d.LotID, d.CostBasis.Currency())
		}
		total = total.Add(d.QuantitySold)
	}

	allocated := decimal.Zero
	last := len(dispositions) - 1
	for i := range dispositions {
		var share domain.Money
		if i == last {
			share = domain.MoneyIn(proceeds.Amount().Sub(allocated), proceeds.Currency())
		} else {
			share = proceeds.Mul(dispositions[i].QuantitySold.Ratio(total)).RoundToMinor()
			allocated = allocated.Add(share.Amount())
		}
		dispositions[i].Proceeds = share
	}
	return nil
}
