package lotmatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/keylock"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
)

// SaleRequest describes a disposal against one position
type SaleRequest struct {
	PositionID uuid.UUID
	Quantity   domain.Quantity
	Method     Method
	// LotIDs is the consumption order for SPECIFIC_ID
	LotIDs []uuid.UUID
	// CurrentPrice is required by MINIMIZE_GAIN and MAXIMIZE_GAIN
	CurrentPrice *domain.Money
	SaleDate     time.Time
}

// LotMatchingService selects and consumes open lots for a sale.
// It never posts ledger transactions; callers turn the dispositions into entries.
type LotMatchingService struct {
	TaxLotRepo domain.TaxLotRepository
	Transactor domain.Transactor
	Locks      *keylock.Map
	Logger     *slog.Logger
}

// NewLotMatchingService creates a new LotMatchingService instance
func NewLotMatchingService(
	taxLotRepo domain.TaxLotRepository,
	transactor domain.Transactor,
	locks *keylock.Map,
	logger *slog.Logger,
) *LotMatchingService {
	if locks == nil {
		locks = keylock.New()
	}
	return &LotMatchingService{
		TaxLotRepo: taxLotRepo,
		Transactor: transactor,
		Locks:      locks,
		Logger:     logging.OrDefault(logger),
	}
}

// PreviewSale returns the allocations a sale would make without touching any lot
func (s *LotMatchingService) PreviewSale(ctx context.Context, req SaleRequest) ([]Allocation, error) {
	lots, err := s.TaxLotRepo.ListOpenByPosition(ctx, req.PositionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open lots: %w", err)
	}
	return s.plan(req, lots)
}

// MatchSale consumes lots for req and persists their new state in one atomic unit.
// The returned dispositions carry cost basis and zero proceeds.
// Logic:
//  1. Serialize on the position
//  2. Load open lots and order them with the method's Selector
//  3. Fail with InsufficientLotsError before touching any lot if quantity is short
//  4. Sell from each planned lot and save it
func (s *LotMatchingService) MatchSale(ctx context.Context, req SaleRequest) ([]domain.LotDisposition, error) {
	ctx, unlock := s.Locks.Acquire(ctx, req.PositionID.String())
	defer unlock()

	if req.SaleDate.IsZero() {
		req.SaleDate = time.Now()
	}

	var dispositions []domain.LotDisposition
	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		lots, err := s.TaxLotRepo.ListOpenByPosition(ctx, req.PositionID)
		if err != nil {
			return fmt.Errorf("failed to list open lots: %w", err)
		}
		allocations, err := s.plan(req, lots)
		if err != nil {
			return err
		}
		dispositions, err = Consume(allocations, req.SaleDate)
		if err != nil {
			return err
		}
		for _, a := range allocations {
			if err := s.TaxLotRepo.Update(ctx, a.Lot); err != nil {
				return fmt.Errorf("failed to update tax lot %s: %w", a.Lot.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.Logger.Debug("sale rejected", "position_id", req.PositionID, "method", req.Method, "error", err)
		return nil, err
	}
	return dispositions, nil
}

// ExecuteSale is MatchSale plus pro-rata allocation of proceeds across the consumed lots
func (s *LotMatchingService) ExecuteSale(ctx context.Context, req SaleRequest, proceeds domain.Money) ([]domain.LotDisposition, error) {
	if proceeds.IsNegative() {
		return nil, fmt.Errorf("%w: proceeds cannot be negative", domain.ErrInvalidLotOperation)
	}

	// position locks are always taken before the storage transaction begins
	ctx, unlock := s.Locks.Acquire(ctx, req.PositionID.String())
	defer unlock()

	var dispositions []domain.LotDisposition
	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		dispositions, err = s.MatchSale(ctx, req)
		if err != nil {
			return err
		}
		return AllocateProceeds(dispositions, proceeds)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("sale executed",
		"position_id", req.PositionID,
		"method", req.Method,
		"quantity", req.Quantity.String(),
		"lots", len(dispositions),
		"proceeds", proceeds.String(),
	)
	return dispositions, nil
}

func (s *LotMatchingService) plan(req SaleRequest, lots []*domain.TaxLot) ([]Allocation, error) {
	selector, err := NewSelector(req.Method, req.LotIDs, req.CurrentPrice)
	if err != nil {
		return nil, err
	}
	return Plan(req.PositionID.String(), lots, req.Quantity, selector, req.Method)
}
