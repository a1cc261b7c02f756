package lotmatch

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
)

// Selector orders the open lots of one position for consumption.
// The consumption loop is shared; only the order differs between methods.
type Selector interface {
	Order(lots []*domain.TaxLot) ([]*domain.TaxLot, error)
}

// NewSelector returns the strategy for method. AverageCost is handled by a
// pooling pre-pass and orders its contributing lots FIFO.
func NewSelector(method Method, lotIDs []uuid.UUID, currentPrice *domain.Money) (Selector, error) {
	switch method {
	case FIFO, AverageCost:
		return fifoSelector{}, nil
	case LIFO:
		return lifoSelector{}, nil
	case HIFO:
		return hifoSelector{}, nil
	case MinimizeGain, MaximizeGain:
		if currentPrice == nil {
			return nil, fmt.Errorf("%w: %s requires a current price", domain.ErrInvalidLotSelection, method)
		}
		return gainSelector{price: *currentPrice, maximize: method == MaximizeGain}, nil
	case SpecificID:
		if len(lotIDs) == 0 {
			return nil, fmt.Errorf("%w: SPECIFIC_ID requires lot ids", domain.ErrInvalidLotSelection)
		}
		return specificSelector{ids: lotIDs}, nil
	}
	return nil, fmt.Errorf("%w: unknown lot selection method %q", domain.ErrInvalidLotSelection, method)
}

// tieBreak orders by ascending acquisition date, then ascending lot id
func tieBreak(a, b *domain.TaxLot) bool {
	if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
		return a.AcquisitionDate.Before(b.AcquisitionDate)
	}
	return a.ID.String() < b.ID.String()
}

func sorted(lots []*domain.TaxLot, less func(a, b *domain.TaxLot) bool) []*domain.TaxLot {
	out := append([]*domain.TaxLot(nil), lots...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type fifoSelector struct{}

func (fifoSelector) Order(lots []*domain.TaxLot) ([]*domain.TaxLot, error) {
	return sorted(lots, tieBreak), nil
}

type lifoSelector struct{}

func (lifoSelector) Order(lots []*domain.TaxLot) ([]*domain.TaxLot, error) {
	return sorted(lots, func(a, b *domain.TaxLot) bool {
		if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
			return a.AcquisitionDate.After(b.AcquisitionDate)
		}
		return tieBreak(a, b)
	}), nil
}

// hifoSelector consumes the highest effective cost per share first
type hifoSelector struct{}

func (hifoSelector) Order(lots []*domain.TaxLot) ([]*domain.TaxLot, error) {
	return sorted(lots, func(a, b *domain.TaxLot) bool {
		if c := a.AdjustedCostPerShare().Amount().Cmp(b.AdjustedCostPerShare().Amount()); c != 0 {
			return c > 0
		}
		return tieBreak(a, b)
	}), nil
}

// gainSelector orders by embedded gain per share, price - effective cost
type gainSelector struct {
	price    domain.Money
	maximize bool
}

func (s gainSelector) Order(lots []*domain.TaxLot) ([]*domain.TaxLot, error) {
	for _, lot := range lots {
		if lot.Currency() != s.price.Currency() {
			return nil, fmt.Errorf("%w: price in %s, lot %s in %s",
				domain.ErrCurrencyMismatch, s.price.Currency(), lot.ID, lot.Currency())
		}
	}
	gain := func(l *domain.TaxLot) domain.Money {
		g, _ := s.price.Sub(l.AdjustedCostPerShare())
		return g
	}
	return sorted(lots, func(a, b *domain.TaxLot) bool {
		c := gain(a).Amount().Cmp(gain(b).Amount())
		if s.maximize {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return tieBreak(a, b)
	}), nil
}

// specificSelector follows the caller's lot order exactly
type specificSelector struct {
	ids []uuid.UUID
}

func (s specificSelector) Order(lots []*domain.TaxLot) ([]*domain.TaxLot, error) {
	byID := make(map[uuid.UUID]*domain.TaxLot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	ordered := make([]*domain.TaxLot, 0, len(s.ids))
	seen := make(map[uuid.UUID]bool, len(s.ids))
	for _, id := range s.ids {
		if seen[id] {
			return nil, fmt.Errorf("%w: lot %s listed twice", domain.ErrInvalidLotSelection, id)
		}
		seen[id] = true
		lot, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: lot %s is not open in this position", domain.ErrInvalidLotSelection, id)
		}
		ordered = append(ordered, lot)
	}
	return ordered, nil
}
