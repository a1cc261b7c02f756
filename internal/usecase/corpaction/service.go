package corpaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/ids"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/keylock"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/shopspring/decimal"
)

// SplitInput describes a forward or reverse split of Numerator new shares per Denominator old
type SplitInput struct {
	ActionID      string
	SecurityID    uuid.UUID
	Numerator     decimal.Decimal
	Denominator   decimal.Decimal
	EffectiveDate time.Time
}

// SpinoffInput describes a distribution of child shares to parent holders
type SpinoffInput struct {
	ActionID         string
	ParentSecurityID uuid.UUID
	ChildSecurityID  uuid.UUID
	// AllocationRatio is the fraction of parent basis moved to the child, in [0,1]
	AllocationRatio decimal.Decimal
	// ShareRatio is child shares received per parent share; zero means 1
	ShareRatio    decimal.Decimal
	EffectiveDate time.Time
}

// MergerInput describes an exchange of old shares into new ones
type MergerInput struct {
	ActionID      string
	OldSecurityID uuid.UUID
	NewSecurityID uuid.UUID
	ExchangeRatio decimal.Decimal // new shares per old share
	// CashInLieuPerShare is paid per old share and reduces the carried basis
	CashInLieuPerShare *domain.Money
	EffectiveDate      time.Time
}

// SymbolChangeInput renames a security
type SymbolChangeInput struct {
	ActionID      string
	SecurityID    uuid.UUID
	NewSymbol     string
	NewName       string // optional
	EffectiveDate time.Time
}

// Result reports what an action did; AlreadyApplied marks a replay of a recorded action
type Result struct {
	ActionID       string
	LotsAffected   int
	LotsCreated    int
	CashInLieu     domain.Money
	AlreadyApplied bool
}

// CorporateActionService adjusts lots for splits, spinoffs, mergers and symbol changes.
// Every action is recorded under (security, action id) and applied at most once.
type CorporateActionService struct {
	SecurityRepo domain.SecurityRepository
	PositionRepo domain.PositionRepository
	TaxLotRepo   domain.TaxLotRepository
	ActionRepo   domain.CorporateActionRepository
	Transactor   domain.Transactor
	Locks        *keylock.Map
	Logger       *slog.Logger

	now func() time.Time
}

// NewCorporateActionService creates a new CorporateActionService instance
func NewCorporateActionService(
	securityRepo domain.SecurityRepository,
	positionRepo domain.PositionRepository,
	taxLotRepo domain.TaxLotRepository,
	actionRepo domain.CorporateActionRepository,
	transactor domain.Transactor,
	locks *keylock.Map,
	logger *slog.Logger,
) *CorporateActionService {
	if locks == nil {
		locks = keylock.New()
	}
	return &CorporateActionService{
		SecurityRepo: securityRepo,
		PositionRepo: positionRepo,
		TaxLotRepo:   taxLotRepo,
		ActionRepo:   actionRepo,
		Transactor:   transactor,
		Locks:        locks,
		Logger:       logging.OrDefault(logger),
		now:          time.Now,
	}
}

// ApplySplit applies num/den to every open lot of the security across all positions
func (s *CorporateActionService) ApplySplit(ctx context.Context, in SplitInput) (*Result, error) {
	if !in.Numerator.IsPositive() || !in.Denominator.IsPositive() {
		return nil, fmt.Errorf("%w: split ratio must be positive", domain.ErrInvalidCorporateAction)
	}

	action := s.newAction(in.ActionID, in.SecurityID, domain.CorporateActionSplit, in.EffectiveDate,
		fmt.Sprintf("split %s:%s", in.Numerator, in.Denominator))

	return s.apply(ctx, action, []uuid.UUID{in.SecurityID}, func(ctx context.Context, result *Result) error {
		positions, err := s.PositionRepo.ListBySecurity(ctx, in.SecurityID)
		if err != nil {
			return fmt.Errorf("failed to list positions: %w", err)
		}
		for _, position := range positions {
			lots, err := s.TaxLotRepo.ListOpenByPosition(ctx, position.ID)
			if err != nil {
				return fmt.Errorf("failed to list open lots: %w", err)
			}
			for _, lot := range lots {
				if err := lot.ApplySplit(in.Numerator, in.Denominator); err != nil {
					return err
				}
				if err := s.TaxLotRepo.Update(ctx, lot); err != nil {
					return fmt.Errorf("failed to update tax lot %s: %w", lot.ID, err)
				}
				result.LotsAffected++
			}
		}
		return nil
	})
}

// ApplySpinoff carves AllocationRatio of each open parent lot's basis into a new
// child lot with the same acquisition date, in the same account.
// Logic:
//  1. Parent cost per share and wash-sale adjustment shrink by (1 - allocation)
//  2. The child receives remaining * ShareRatio shares carrying the carved basis
//  3. Remaining effective basis across parent + child is unchanged
func (s *CorporateActionService) ApplySpinoff(ctx context.Context, in SpinoffInput) (*Result, error) {
	if in.AllocationRatio.IsNegative() || in.AllocationRatio.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: allocation ratio must be within [0,1]", domain.ErrInvalidCorporateAction)
	}
	if in.ShareRatio.IsZero() {
		in.ShareRatio = decimal.NewFromInt(1)
	}
	if !in.ShareRatio.IsPositive() {
		return nil, fmt.Errorf("%w: share ratio must be positive", domain.ErrInvalidCorporateAction)
	}
	if in.ParentSecurityID == in.ChildSecurityID {
		return nil, fmt.Errorf("%w: parent and child must differ", domain.ErrInvalidCorporateAction)
	}

	action := s.newAction(in.ActionID, in.ParentSecurityID, domain.CorporateActionSpinoff, in.EffectiveDate,
		fmt.Sprintf("spinoff %s allocation %s shares %s", in.ChildSecurityID, in.AllocationRatio, in.ShareRatio))
	remainder := decimal.NewFromInt(1).Sub(in.AllocationRatio)

	return s.apply(ctx, action, []uuid.UUID{in.ParentSecurityID, in.ChildSecurityID}, func(ctx context.Context, result *Result) error {
		positions, err := s.PositionRepo.ListBySecurity(ctx, in.ParentSecurityID)
		if err != nil {
			return fmt.Errorf("failed to list positions: %w", err)
		}
		for _, position := range positions {
			lots, err := s.TaxLotRepo.ListOpenByPosition(ctx, position.ID)
			if err != nil {
				return fmt.Errorf("failed to list open lots: %w", err)
			}
			if len(lots) == 0 {
				continue
			}
			child, err := s.positionFor(ctx, position.AccountID, in.ChildSecurityID)
			if err != nil {
				return err
			}

			for _, lot := range lots {
				childQty := lot.RemainingQuantity.Mul(in.ShareRatio)
				carved := lot.CostPerShare.Mul(in.AllocationRatio).MulQuantity(lot.RemainingQuantity)
				carvedWash := domain.ZeroMoney(lot.Currency())
				if lot.WashSaleDisallowed {
					carvedWash = lot.WashSaleAdjustment.Mul(in.AllocationRatio)
				}

				childLot := domain.NewTaxLot(child.ID, lot.AcquisitionDate, childQty, carved.DivQuantity(childQty), domain.AcquisitionTypeSpinoff)
				childLot.IsCovered = lot.IsCovered
				if carvedWash.IsPositive() {
					if err := childLot.MarkWashSale(carvedWash); err != nil {
						return err
					}
				}

				lot.CostPerShare = lot.CostPerShare.Mul(remainder)
				lot.WashSaleAdjustment = lot.WashSaleAdjustment.Mul(remainder)

				if err := s.TaxLotRepo.Update(ctx, lot); err != nil {
					return fmt.Errorf("failed to update tax lot %s: %w", lot.ID, err)
				}
				if err := s.TaxLotRepo.Add(ctx, childLot); err != nil {
					return fmt.Errorf("failed to add spinoff lot: %w", err)
				}
				result.LotsAffected++
				result.LotsCreated++
			}
		}
		return nil
	})
}

// ApplyMerger closes each open lot of the old security at the effective date and
// opens a MERGER lot in the new security that keeps the original acquisition date.
// The carried basis is the old lot's effective basis less any cash in lieu, floored at zero.
func (s *CorporateActionService) ApplyMerger(ctx context.Context, in MergerInput) (*Result, error) {
	if !in.ExchangeRatio.IsPositive() {
		return nil, fmt.Errorf("%w: exchange ratio must be positive", domain.ErrInvalidCorporateAction)
	}
	if in.CashInLieuPerShare != nil && in.CashInLieuPerShare.IsNegative() {
		return nil, fmt.Errorf("%w: cash in lieu cannot be negative", domain.ErrInvalidCorporateAction)
	}
	if in.OldSecurityID == in.NewSecurityID {
		return nil, fmt.Errorf("%w: old and new security must differ", domain.ErrInvalidCorporateAction)
	}

	action := s.newAction(in.ActionID, in.OldSecurityID, domain.CorporateActionMerger, in.EffectiveDate,
		fmt.Sprintf("merger into %s ratio %s", in.NewSecurityID, in.ExchangeRatio))

	return s.apply(ctx, action, []uuid.UUID{in.OldSecurityID, in.NewSecurityID}, func(ctx context.Context, result *Result) error {
		positions, err := s.PositionRepo.ListBySecurity(ctx, in.OldSecurityID)
		if err != nil {
			return fmt.Errorf("failed to list positions: %w", err)
		}
		for _, position := range positions {
			lots, err := s.TaxLotRepo.ListOpenByPosition(ctx, position.ID)
			if err != nil {
				return fmt.Errorf("failed to list open lots: %w", err)
			}
			if len(lots) == 0 {
				continue
			}
			target, err := s.positionFor(ctx, position.AccountID, in.NewSecurityID)
			if err != nil {
				return err
			}

			for _, lot := range lots {
				oldQty := lot.RemainingQuantity
				basis, err := lot.Sell(oldQty, action.EffectiveDate)
				if err != nil {
					return err
				}

				if in.CashInLieuPerShare != nil && in.CashInLieuPerShare.IsPositive() {
					cash := in.CashInLieuPerShare.MulQuantity(oldQty)
					if result.CashInLieu.Currency() == "" {
						result.CashInLieu = domain.ZeroMoney(cash.Currency())
					}
					if result.CashInLieu, err = result.CashInLieu.Add(cash); err != nil {
						return err
					}
					if basis, err = basis.Sub(cash); err != nil {
						return err
					}
					if basis.IsNegative() {
						basis = domain.ZeroMoney(basis.Currency())
					}
				}

				newQty := oldQty.Mul(in.ExchangeRatio)
				newLot := domain.NewTaxLot(target.ID, lot.AcquisitionDate, newQty, basis.DivQuantity(newQty), domain.AcquisitionTypeMerger)
				newLot.IsCovered = lot.IsCovered

				if err := s.TaxLotRepo.Update(ctx, lot); err != nil {
					return fmt.Errorf("failed to update tax lot %s: %w", lot.ID, err)
				}
				if err := s.TaxLotRepo.Add(ctx, newLot); err != nil {
					return fmt.Errorf("failed to add merger lot: %w", err)
				}
				result.LotsAffected++
				result.LotsCreated++
			}
		}
		return nil
	})
}

// ApplySymbolChange renames the security record; lots are untouched
func (s *CorporateActionService) ApplySymbolChange(ctx context.Context, in SymbolChangeInput) (*Result, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.NewSymbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: new symbol is required", domain.ErrInvalidCorporateAction)
	}

	action := s.newAction(in.ActionID, in.SecurityID, domain.CorporateActionSymbolChange, in.EffectiveDate,
		fmt.Sprintf("symbol change to %s", symbol))

	return s.apply(ctx, action, nil, func(ctx context.Context, result *Result) error {
		security, err := s.SecurityRepo.GetByID(ctx, in.SecurityID)
		if err != nil {
			return err
		}
		if existing, err := s.SecurityRepo.GetBySymbol(ctx, symbol); err == nil && existing.ID != security.ID {
			return fmt.Errorf("%w: symbol %s is used by another security", domain.ErrInvalidCorporateAction, symbol)
		} else if err != nil && !domain.IsNotFound(err) {
			return fmt.Errorf("failed to look up symbol: %w", err)
		}

		security.Symbol = symbol
		if in.NewName != "" {
			security.Name = in.NewName
		}
		if err := s.SecurityRepo.Update(ctx, security); err != nil {
			return fmt.Errorf("failed to update security: %w", err)
		}
		return nil
	})
}

// History lists the corporate actions recorded against a security
func (s *CorporateActionService) History(ctx context.Context, securityID uuid.UUID) ([]*domain.CorporateAction, error) {
	if _, err := s.SecurityRepo.GetByID(ctx, securityID); err != nil {
		return nil, err
	}
	return s.ActionRepo.ListBySecurity(ctx, securityID)
}

func (s *CorporateActionService) newAction(actionID string, securityID uuid.UUID, kind domain.CorporateActionType, effective time.Time, description string) *domain.CorporateAction {
	now := s.now().UTC()
	if effective.IsZero() {
		effective = now
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		actionID = ids.New()
	}
	return &domain.CorporateAction{
		ID:            actionID,
		SecurityID:    securityID,
		Type:          kind,
		EffectiveDate: domain.DateOf(effective),
		Description:   description,
		AppliedAt:     now,
	}
}

// apply runs fn once per (security, action id): it locks every position of the
// involved securities, checks the securities exist, replays a recorded action,
// and otherwise runs fn and records the action in the same atomic unit.
func (s *CorporateActionService) apply(ctx context.Context, action *domain.CorporateAction, securities []uuid.UUID, fn func(ctx context.Context, result *Result) error) (*Result, error) {
	keys := make([]string, 0)
	for _, securityID := range securities {
		positions, err := s.PositionRepo.ListBySecurity(ctx, securityID)
		if err != nil {
			return nil, fmt.Errorf("failed to list positions: %w", err)
		}
		for _, p := range positions {
			keys = append(keys, p.ID.String())
		}
	}
	// a per-security key also serializes replays of the same action
	keys = append(keys, "security:"+action.SecurityID.String())
	ctx, unlock := s.Locks.Acquire(ctx, keys...)
	defer unlock()

	result := &Result{ActionID: action.ID}
	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, securityID := range append([]uuid.UUID{action.SecurityID}, securities...) {
			if _, err := s.SecurityRepo.GetByID(ctx, securityID); err != nil {
				return err
			}
		}

		recorded, err := s.ActionRepo.Get(ctx, action.SecurityID, action.ID)
		if err == nil {
			result.LotsAffected = recorded.LotsAffected
			result.LotsCreated = recorded.LotsCreated
			result.CashInLieu = recorded.CashInLieu
			result.AlreadyApplied = true
			return nil
		}
		if !domain.IsNotFound(err) {
			return fmt.Errorf("failed to load corporate action: %w", err)
		}

		if err := fn(ctx, result); err != nil {
			return err
		}

		action.LotsAffected = result.LotsAffected
		action.LotsCreated = result.LotsCreated
		action.CashInLieu = result.CashInLieu
		if err := s.ActionRepo.Add(ctx, action); err != nil {
			return fmt.Errorf("failed to record corporate action: %w", err)
		}
		return nil
	})
	if err != nil {
		s.Logger.Debug("corporate action rejected", "type", action.Type, "action_id", action.ID, "error", err)
		return nil, err
	}

	if result.AlreadyApplied {
		s.Logger.Info("corporate action already applied", "type", action.Type, "action_id", action.ID)
	} else {
		s.Logger.Info("corporate action applied",
			"type", action.Type,
			"action_id", action.ID,
			"security_id", action.SecurityID,
			"lots_affected", result.LotsAffected,
			"lots_created", result.LotsCreated,
		)
	}
	return result, nil
}

// positionFor returns the account's position in securityID, creating it when missing
func (s *CorporateActionService) positionFor(ctx context.Context, accountID, securityID uuid.UUID) (*domain.Position, error) {
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
