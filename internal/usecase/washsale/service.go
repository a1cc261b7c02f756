package washsale

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/keylock"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
)

// Adjustment is the part of a disallowed loss carried into one replacement lot
type Adjustment struct {
	LotID      uuid.UUID
	PositionID uuid.UUID
	Absorbed   domain.Quantity // sold shares this lot replaces
	Disallowed domain.Money
}

// Result summarizes an applied wash sale. Unreplaced sold shares keep UnreplacedLoss;
// a replacement bought later can still absorb them through ApplyWashSale.
type Result struct {
	Adjustments    []Adjustment
	Disallowed     domain.Money
	Unreplaced     domain.Quantity
	UnreplacedLoss domain.Money
}

// WashSaleService finds replacement purchases around a loss sale and defers the disallowed loss
type WashSaleService struct {
	AccountRepo  domain.AccountRepository
	PositionRepo domain.PositionRepository
	TaxLotRepo   domain.TaxLotRepository
	Transactor   domain.Transactor
	Locks        *keylock.Map
	Logger       *slog.Logger
}

// NewWashSaleService creates a new WashSaleService instance
func NewWashSaleService(
	accountRepo domain.AccountRepository,
	positionRepo domain.PositionRepository,
	taxLotRepo domain.TaxLotRepository,
	transactor domain.Transactor,
	locks *keylock.Map,
	logger *slog.Logger,
) *WashSaleService {
	if locks == nil {
		locks = keylock.New()
	}
	return &WashSaleService{
		AccountRepo:  accountRepo,
		PositionRepo: positionRepo,
		TaxLotRepo:   taxLotRepo,
		Transactor:   transactor,
		Locks:        locks,
		Logger:       logging.OrDefault(logger),
	}
}

// RelatedPositions returns the positions whose purchases can replace a sale from
// positionID: every position in the same security held by an account of the same entity.
// The selling position is always first.
func (s *WashSaleService) RelatedPositions(ctx context.Context, positionID uuid.UUID) ([]uuid.UUID, error) {
	position, err := s.PositionRepo.GetByID(ctx, positionID)
	if err != nil {
		return nil, err
	}
	seller, err := s.AccountRepo.GetByID(ctx, position.AccountID)
	if err != nil {
		return nil, err
	}
	siblings, err := s.PositionRepo.ListBySecurity(ctx, position.SecurityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}

	related := []uuid.UUID{positionID}
	for _, p := range siblings {
		if p.ID == positionID {
			continue
		}
		account, err := s.AccountRepo.GetByID(ctx, p.AccountID)
		if err != nil {
			return nil, err
		}
		if account.EntityID == seller.EntityID {
			related = append(related, p.ID)
		}
	}
	return related, nil
}

// DetectWashSales returns the replacement lots for a loss sale: open lots of
// related positions acquired by purchase within the window around saleDate.
// Lots in exclude (normally the lots the sale consumed) never count.
// A zero loss has no replacements.
func (s *WashSaleService) DetectWashSales(ctx context.Context, positionID uuid.UUID, saleDate time.Time, loss domain.Money, exclude []uuid.UUID) ([]*domain.TaxLot, error) {
	if loss.IsZero() {
		return nil, nil
	}

	positions, err := s.RelatedPositions(ctx, positionID)
	if err != nil {
		return nil, err
	}

	excluded := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates := make([]*domain.TaxLot, 0)
	for _, pid := range positions {
		lots, err := s.TaxLotRepo.ListWashSaleCandidates(ctx, pid, saleDate)
		if err != nil {
			return nil, fmt.Errorf("failed to list wash sale candidates: %w", err)
		}
		for _, lot := range lots {
			if excluded[lot.ID] || !lot.AcquisitionType.IsPurchase() || !lot.IsOpen() {
				continue
			}
			if !lot.InWashSaleWindow(saleDate) {
				continue
			}
			candidates = append(candidates, lot)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
			return a.AcquisitionDate.Before(b.AcquisitionDate)
		}
		return a.ID.String() < b.ID.String()
	})
	return candidates, nil
}

// Allocate spreads a disallowed loss over candidates in order. Each lot replaces
// up to its replacement capacity of the sold shares and takes loss * absorbed / sold.
// Shares a lot already replaced for an earlier loss sale are not counted twice.
// Sold shares without a replacement keep their loss.
func Allocate(loss domain.Money, quantitySold domain.Quantity, candidates []*domain.TaxLot) ([]Adjustment, error) {
	loss = loss.Abs()

	adjustments := make([]Adjustment, 0, len(candidates))
	left := quantitySold
	for _, lot := range candidates {
		if !left.IsPositive() {
			break
		}
		if lot.Currency() != loss.Currency() {
			return nil, fmt.Errorf("%w: loss in %s, lot %s in %s",
				domain.ErrCurrencyMismatch, loss.Currency(), lot.ID, lot.Currency())
		}
		absorbed := domain.MinQuantity(lot.ReplacementCapacity(), left)
		if !absorbed.IsPositive() {
			continue
		}
		disallowed := loss.Mul(absorbed.Ratio(quantitySold))
		if left.Equal(absorbed) {
			// the last replacement takes what is left so the parts sum to loss
			disallowed = loss
			for _, adj := range adjustments {
				disallowed = domain.MoneyIn(disallowed.Amount().Sub(adj.Disallowed.Amount()), loss.Currency())
			}
		}
		adjustments = append(adjustments, Adjustment{
			LotID:      lot.ID,
			PositionID: lot.PositionID,
			Absorbed:   absorbed,
			Disallowed: disallowed,
		})
		left = left.Sub(absorbed)
	}
	return adjustments, nil
}

// ApplyWashSale detects replacements for a loss sale of quantitySold shares and
// marks each replacement lot with its share of the disallowed loss, atomically.
// RecordSale calls it on the sale date; calling it again after a later purchase
// with the sale's Unreplaced quantity and UnreplacedLoss defers the rest.
func (s *WashSaleService) ApplyWashSale(ctx context.Context, positionID uuid.UUID, saleDate time.Time, loss domain.Money, quantitySold domain.Quantity, exclude []uuid.UUID) (*Result, error) {
	if !quantitySold.IsPositive() {
		return nil, fmt.Errorf("%w: quantity sold must be positive", domain.ErrInvalidLotOperation)
	}
	positions, err := s.RelatedPositions(ctx, positionID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(positions))
	for _, id := range positions {
		keys = append(keys, id.String())
	}
	ctx, unlock := s.Locks.Acquire(ctx, keys...)
	defer unlock()

	if !quantitySold.IsPositive() {
		return nil, fmt.Errorf("%w: quantity sold must be positive", domain.ErrInvalidLotOperation)
	}
	loss = loss.Abs()
	result := &Result{
		Disallowed:     domain.ZeroMoney(loss.Currency()),
		Unreplaced:     quantitySold,
		UnreplacedLoss: loss,
	}
	err = s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		candidates, err := s.DetectWashSales(ctx, positionID, saleDate, loss, exclude)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		adjustments, err := Allocate(loss, quantitySold, candidates)
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*domain.TaxLot, len(candidates))
		for _, lot := range candidates {
			byID[lot.ID] = lot
		}
		for _, adj := range adjustments {
			lot := byID[adj.LotID]
			if err := lot.MarkWashSale(adj.Disallowed); err != nil {
				return err
			}
			if err := lot.MarkReplacement(adj.Absorbed); err != nil {
				return err
			}
			if err := s.TaxLotRepo.Update(ctx, lot); err != nil {
				return fmt.Errorf("failed to update tax lot %s: %w", lot.ID, err)
			}
			if result.Disallowed, err = result.Disallowed.Add(adj.Disallowed); err != nil {
				return err
			}
			result.Unreplaced = result.Unreplaced.Sub(adj.Absorbed)
		}
		result.Adjustments = adjustments
		result.UnreplacedLoss, err = loss.Sub(result.Disallowed)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(result.Adjustments) > 0 {
		s.Logger.Info("wash sale marked",
			"position_id", positionID,
			"sale_date", saleDate.Format(domain.DateFormat),
			"replacement_lots", len(result.Adjustments),
			"disallowed", result.Disallowed.String(),
		)
	}
	return result, nil
}
