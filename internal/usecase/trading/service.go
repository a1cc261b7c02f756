package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/keylock"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/lotmatch"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/usecase/washsale"
)

// Poster posts balanced transactions to the ledger
type Poster interface {
	PostTransaction(ctx context.Context, tx *domain.Transaction) error
}

// SaleExecutor consumes lots for a sale and allocates its proceeds
type SaleExecutor interface {
	ExecuteSale(ctx context.Context, req lotmatch.SaleRequest, proceeds domain.Money) ([]domain.LotDisposition, error)
}

// WashSaleApplier defers a loss into replacement lots
type WashSaleApplier interface {
	RelatedPositions(ctx context.Context, positionID uuid.UUID) ([]uuid.UUID, error)
	ApplyWashSale(ctx context.Context, positionID uuid.UUID, saleDate time.Time, loss domain.Money, quantitySold domain.Quantity, exclude []uuid.UUID) (*washsale.Result, error)
}

// PurchaseInput records an acquisition. When CashAccountID is uuid.Nil the lot is
// recorded without a ledger posting (transfers in, gifts, inheritances).
type PurchaseInput struct {
	InvestmentAccountID uuid.UUID
	CashAccountID       uuid.UUID
	SecurityID          uuid.UUID
	Quantity            domain.Quantity
	CostPerShare        domain.Money
	AcquisitionType     domain.AcquisitionType
	TradeDate           time.Time
	Memo                string
	Reference           string
}

// PurchaseResult is what a purchase created
type PurchaseResult struct {
	Position    *domain.Position
	Lot         *domain.TaxLot
	Transaction *domain.Transaction
}

// SaleInput records a disposal from the investment account's position in SecurityID
type SaleInput struct {
	InvestmentAccountID uuid.UUID
	CashAccountID       uuid.UUID
	GainAccountID       uuid.UUID
	SecurityID          uuid.UUID
	Quantity            domain.Quantity
	Proceeds            domain.Money
	Method              lotmatch.Method
	LotIDs              []uuid.UUID
	CurrentPrice        *domain.Money
	TradeDate           time.Time
	ApplyWashSale       bool
	Memo                string
	Reference           string
}

// SaleResult is what a sale realized
type SaleResult struct {
	PositionID   uuid.UUID
	Dispositions []domain.LotDisposition
	Totals       domain.DispositionTotals
	Transaction  *domain.Transaction
	RealizedGain domain.Money
	WashSale     *washsale.Result
}

// TradingService turns purchases and sales into lots and ledger postings
type TradingService struct {
	SecurityRepo domain.SecurityRepository
	PositionRepo domain.PositionRepository
	TaxLotRepo   domain.TaxLotRepository
	Transactor   domain.Transactor
	Ledger       Poster
	Sales        SaleExecutor
	WashSales    WashSaleApplier
	Locks        *keylock.Map
	Logger       *slog.Logger

	now func() time.Time
}

// NewTradingService creates a new TradingService instance. locks must be the map
// shared with the lot matching and wash sale services.
func NewTradingService(
	securityRepo domain.SecurityRepository,
	positionRepo domain.PositionRepository,
	taxLotRepo domain.TaxLotRepository,
	transactor domain.Transactor,
	ledger Poster,
	sales SaleExecutor,
	washSales WashSaleApplier,
	locks *keylock.Map,
	logger *slog.Logger,
) *TradingService {
	if locks == nil {
		locks = keylock.New()
	}
	return &TradingService{
		SecurityRepo: securityRepo,
		PositionRepo: positionRepo,
		TaxLotRepo:   taxLotRepo,
		Transactor:   transactor,
		Ledger:       ledger,
		Sales:        sales,
		WashSales:    washSales,
		Locks:        locks,
		Logger:       logging.OrDefault(logger),
		now:          time.Now,
	}
}

// RecordPurchase adds a lot to the account's position and posts Dr investment / Cr cash.
// Logic:
//  1. Resolve or create the position under a per-holding lock
//  2. Lock the position, then add the lot and post the transaction atomically
func (s *TradingService) RecordPurchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: purchase quantity must be positive", domain.ErrInvalidLotOperation)
	}
	if in.CostPerShare.IsNegative() {
		return nil, fmt.Errorf("%w: cost per share cannot be negative", domain.ErrInvalidLotOperation)
	}
	if in.AcquisitionType == "" {
		in.AcquisitionType = domain.AcquisitionTypePurchase
	}
	if in.TradeDate.IsZero() {
		in.TradeDate = s.now()
	}

	ctx, unlockHolding := s.Locks.Acquire(ctx, holdingKey(in.InvestmentAccountID, in.SecurityID))
	defer unlockHolding()

	var position *domain.Position
	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.SecurityRepo.GetByID(ctx, in.SecurityID); err != nil {
			return err
		}
		var err error
		position, err = s.positionFor(ctx, in.InvestmentAccountID, in.SecurityID)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctx, unlock := s.Locks.Acquire(ctx, position.ID.String())
	defer unlock()

	lot := domain.NewTaxLot(position.ID, in.TradeDate, in.Quantity, in.CostPerShare, in.AcquisitionType)
	if err := lot.Validate(); err != nil {
		return nil, err
	}
	result := &PurchaseResult{Position: position, Lot: lot}

	err = s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.TaxLotRepo.Add(ctx, lot); err != nil {
			return fmt.Errorf("failed to add tax lot: %w", err)
		}
		cost := lot.TotalCost().RoundToMinor()
		if in.CashAccountID == uuid.Nil || cost.IsZero() {
			return nil
		}

		memo := in.Memo
		if memo == "" {
			memo = fmt.Sprintf("Buy %s", in.Quantity)
		}
		tx := &domain.Transaction{
			TransactionDate: in.TradeDate,
			Memo:            memo,
			Reference:       in.Reference,
			Entries: []domain.Entry{
				domain.NewDebit(in.InvestmentAccountID, cost, "cost basis").WithTaxLot(lot.ID),
				domain.NewCredit(in.CashAccountID, cost, "cash paid"),
			},
		}
		if err := s.Ledger.PostTransaction(ctx, tx); err != nil {
			return err
		}
		result.Transaction = tx
		return nil
	})
	if err != nil {
		s.Logger.Debug("purchase rejected", "security_id", in.SecurityID, "error", err)
		return nil, err
	}

	s.Logger.Info("purchase recorded",
		"position_id", position.ID,
		"lot_id", lot.ID,
		"quantity", in.Quantity.String(),
		"cost_per_share", in.CostPerShare.String(),
	)
	return result, nil
}

// RecordSale disposes of lots and posts the realized result.
// Logic:
//  1. Lock every position a wash sale could touch, then open one atomic unit
//  2. Execute the sale with the requested lot selection method
//  3. Post Dr cash = proceeds, Cr investment = basis per lot, and the gain or loss
//  4. For a net loss with ApplyWashSale, defer the loss into replacement lots
func (s *TradingService) RecordSale(ctx context.Context, in SaleInput) (*SaleResult, error) {
	if in.TradeDate.IsZero() {
		in.TradeDate = s.now()
	}
	in.TradeDate = domain.DateOf(in.TradeDate)
	if in.Method == "" {
		in.Method = lotmatch.FIFO
	}

	position, err := s.PositionRepo.GetByAccountAndSecurity(ctx, in.InvestmentAccountID, in.SecurityID)
	if err != nil {
		return nil, err
	}

	keys := []string{position.ID.String()}
	if in.ApplyWashSale && s.WashSales != nil {
		related, err := s.WashSales.RelatedPositions(ctx, position.ID)
		if err != nil {
			return nil, err
		}
		keys = keys[:0]
		for _, id := range related {
			keys = append(keys, id.String())
		}
	}
	ctx, unlock := s.Locks.Acquire(ctx, keys...)
	defer unlock()

	result := &SaleResult{PositionID: position.ID}
	err = s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		dispositions, err := s.Sales.ExecuteSale(ctx, lotmatch.SaleRequest{
			PositionID:   position.ID,
			Quantity:     in.Quantity,
			Method:       in.Method,
			LotIDs:       in.LotIDs,
			CurrentPrice: in.CurrentPrice,
			SaleDate:     in.TradeDate,
		}, in.Proceeds)
		if err != nil {
			return err
		}
		result.Dispositions = dispositions

		if result.Totals, err = domain.SumDispositions(in.Proceeds.Currency(), dispositions); err != nil {
			return err
		}

		tx, gain, err := s.saleTransaction(in, dispositions)
		if err != nil {
			return err
		}
		result.RealizedGain = gain
		if tx != nil {
			if err := s.Ledger.PostTransaction(ctx, tx); err != nil {
				return err
			}
			result.Transaction = tx
		}

		if !in.ApplyWashSale || s.WashSales == nil || !gain.IsNegative() {
			return nil
		}
		sold := make([]uuid.UUID, 0, len(dispositions))
		for _, d := range dispositions {
			sold = append(sold, d.LotID)
		}
		result.WashSale, err = s.WashSales.ApplyWashSale(ctx, position.ID, in.TradeDate, gain, in.Quantity, sold)
		return err
	})
	if err != nil {
		s.Logger.Debug("sale rejected", "position_id", position.ID, "error", err)
		return nil, err
	}

	s.Logger.Info("sale recorded",
		"position_id", position.ID,
		"quantity", in.Quantity.String(),
		"lots", len(result.Dispositions),
		"realized_gain", result.RealizedGain.String(),
	)
	return result, nil
}

// saleTransaction builds the realization entries. Bases are rounded to minor units
// per lot and the gain entry takes the difference, so the transaction balances exactly.
func (s *TradingService) saleTransaction(in SaleInput, dispositions []domain.LotDisposition) (*domain.Transaction, domain.Money, error) {
	cur := in.Proceeds.Currency()
	proceeds := in.Proceeds.RoundToMinor()
	entries := make([]domain.Entry, 0, len(dispositions)+2)
	if proceeds.IsPositive() {
		entries = append(entries, domain.NewDebit(in.CashAccountID, proceeds, "sale proceeds"))
	}

	basis := domain.ZeroMoney(cur)
	for _, d := range dispositions {
		lotBasis := d.CostBasis.RoundToMinor()
		if lotBasis.IsZero() {
			continue
		}
		var err error
		if basis, err = basis.Add(lotBasis); err != nil {
			return nil, domain.Money{}, err
		}
		entries = append(entries, domain.NewCredit(in.InvestmentAccountID, lotBasis, "cost basis").WithTaxLot(d.LotID))
	}

	gain, err := proceeds.Sub(basis)
	if err != nil {
		return nil, domain.Money{}, err
	}
	switch {
	case gain.IsPositive():
		entries = append(entries, domain.NewCredit(in.GainAccountID, gain, "realized gain"))
	case gain.IsNegative():
		entries = append(entries, domain.NewDebit(in.GainAccountID, gain.Abs(), "realized loss"))
	}
	if len(entries) == 0 {
		return nil, gain, nil
	}

	memo := in.Memo
	if memo == "" {
		memo = fmt.Sprintf("Sell %s (%s)", in.Quantity, in.Method)
	}
	return &domain.Transaction{
		TransactionDate: in.TradeDate,
		Memo:            memo,
		Reference:       in.Reference,
		Entries:         entries,
	}, gain, nil
}

func (s *TradingService) positionFor(ctx context.Context, accountID, securityID uuid.UUID) (*domain.Position, error) {
	position, err := s.PositionRepo.GetByAccountAndSecurity(ctx, accountID, securityID)
	if err == nil {
		return position, nil
	}
	if !domain.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	position = &domain.Position{ID: uuid.New(), AccountID: accountID, SecurityID: securityID}
	if err := s.PositionRepo.Create(ctx, position); err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return position, nil
}

func holdingKey(accountID, securityID uuid.UUID) string {
	return "holding:" + accountID.String() + ":" + securityID.String()
}
