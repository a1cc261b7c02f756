package qsbs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/domain"
	"github.com/mmarcus006/family-office-ledger-sub002/internal/logging"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// QualifyingHoldingDays is the five-year holding period
	QualifyingHoldingDays = 1825
	// BasisMultiple caps the exclusion at this multiple of the basis
	BasisMultiple = 10
	// DefaultReadConcurrency bounds concurrent lot reads
	DefaultReadConcurrency = 8
)

// MaxExclusion is the dollar cap on the exclusion
var MaxExclusion = decimal.NewFromInt(10_000_000)

// Holding is one open lot of a QSBS-eligible security
type Holding struct {
	LotID              uuid.UUID
	PositionID         uuid.UUID
	AccountID          uuid.UUID
	SecurityID         uuid.UUID
	Symbol             string
	Issuer             string
	AcquisitionDate    time.Time
	QualificationDate  time.Time
	Quantity           domain.Quantity
	CostBasis          domain.Money
	HoldingPeriodDays  int
	DaysUntilQualified int
	IsQualified        bool
	PotentialExclusion domain.Money
}

// IssuerSummary aggregates the holdings of one issuer. PotentialExclusion applies the
// cap to the issuer's aggregate qualified basis instead of per holding.
type IssuerSummary struct {
	Issuer             string
	Holdings           int
	QualifiedBasis     domain.Money
	PendingBasis       domain.Money
	PotentialExclusion domain.Money
}

// Summary is the QSBS position of the ledger as of a date
type Summary struct {
	AsOf                    time.Time
	Currency                domain.Currency
	Qualified               []Holding
	Pending                 []Holding
	TotalQualifiedBasis     domain.Money
	TotalPendingBasis       domain.Money
	TotalPotentialExclusion domain.Money
	Issuers                 []IssuerSummary
}

// QSBSService computes holding-period qualification and exclusion estimates
type QSBSService struct {
	SecurityRepo domain.SecurityRepository
	PositionRepo domain.PositionRepository
	TaxLotRepo   domain.TaxLotRepository
	Currency     domain.Currency
	// Converter is optional; without it a lot outside Currency fails the summary
	Converter   domain.Converter
	Concurrency int
	Logger      *slog.Logger

	now func() time.Time
}

// NewQSBSService creates a new QSBSService instance reporting in currency
func NewQSBSService(
	securityRepo domain.SecurityRepository,
	positionRepo domain.PositionRepository,
	taxLotRepo domain.TaxLotRepository,
	currency domain.Currency,
	logger *slog.Logger,
) *QSBSService {
	return &QSBSService{
		SecurityRepo: securityRepo,
		PositionRepo: positionRepo,
		TaxLotRepo:   taxLotRepo,
		Currency:     currency,
		Concurrency:  DefaultReadConcurrency,
		Logger:       logging.OrDefault(logger),
		now:          time.Now,
	}
}

// IsQualified reports whether a lot acquired on acquired has been held long enough at asOf
func IsQualified(acquired, asOf time.Time) bool {
	return domain.DaysBetween(acquired, asOf) >= QualifyingHoldingDays
}

// PotentialExclusion returns min(MaxExclusion, BasisMultiple * basis)
func PotentialExclusion(basis domain.Money) domain.Money {
	capped := decimal.Min(MaxExclusion, basis.Amount().Mul(decimal.NewFromInt(BasisMultiple)))
	if capped.IsNegative() {
		capped = decimal.Zero
	}
	return domain.MoneyIn(capped, basis.Currency())
}

// SetEligibility flags or unflags a security as QSBS-eligible
func (s *QSBSService) SetEligibility(ctx context.Context, securityID uuid.UUID, eligible bool, issuer string) (*domain.Security, error) {
	security, err := s.SecurityRepo.GetByID(ctx, securityID)
	if err != nil {
		return nil, err
	}
	security.IsQSBSEligible = eligible
	if issuer != "" {
		security.Issuer = issuer
	}
	if err := s.SecurityRepo.Update(ctx, security); err != nil {
		return nil, fmt.Errorf("failed to update security: %w", err)
	}
	s.Logger.Info("qsbs eligibility updated", "security_id", securityID, "eligible", eligible)
	return security, nil
}

type positionLots struct {
	security *domain.Security
	position *domain.Position
	lots     []*domain.TaxLot
}

// GetSummary builds the summary over every open lot of every eligible security.
// Logic:
//  1. List eligible securities and their positions
//  2. Load open lots per position concurrently
//  3. Classify each lot, sort pending by days until qualified, then aggregate per issuer
func (s *QSBSService) GetSummary(ctx context.Context, asOf time.Time) (*Summary, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = domain.DateOf(asOf)

	securities, err := s.SecurityRepo.ListQSBSEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible securities: %w", err)
	}

	var work []*positionLots
	for _, security := range securities {
		positions, err := s.PositionRepo.ListBySecurity(ctx, security.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list positions: %w", err)
		}
		for _, position := range positions {
			work = append(work, &positionLots{security: security, position: position})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for _, item := range work {
		g.Go(func() error {
			lots, err := s.TaxLotRepo.ListOpenByPosition(gctx, item.position.ID)
			if err != nil {
				return fmt.Errorf("failed to list open lots for position %s: %w", item.position.ID, err)
			}
			item.lots = lots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{
		AsOf:                    asOf,
		Currency:                s.Currency,
		TotalQualifiedBasis:     domain.ZeroMoney(s.Currency),
		TotalPendingBasis:       domain.ZeroMoney(s.Currency),
		TotalPotentialExclusion: domain.ZeroMoney(s.Currency),
	}
	for _, item := range work {
		for _, lot := range item.lots {
			holding, err := s.holding(ctx, item, lot, asOf)
			if err != nil {
				return nil, err
			}
			if holding.IsQualified {
				summary.Qualified = append(summary.Qualified, holding)
			} else {
				summary.Pending = append(summary.Pending, holding)
			}
		}
	}

	sort.Slice(summary.Qualified, func(i, j int) bool {
		return lessByDate(summary.Qualified[i], summary.Qualified[j])
	})
	sort.Slice(summary.Pending, func(i, j int) bool {
		a, b := summary.Pending[i], summary.Pending[j]
		if a.DaysUntilQualified != b.DaysUntilQualified {
			return a.DaysUntilQualified < b.DaysUntilQualified
		}
		return lessByDate(a, b)
	})

	if err := summary.total(); err != nil {
		return nil, err
	}
	s.Logger.Debug("qsbs summary computed",
		"as_of", asOf.Format(domain.DateFormat),
		"qualified", len(summary.Qualified),
		"pending", len(summary.Pending),
	)
	return summary, nil
}

func (s *QSBSService) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultReadConcurrency
	}
	return s.Concurrency
}

func (s *QSBSService) holding(ctx context.Context, item *positionLots, lot *domain.TaxLot, asOf time.Time) (Holding, error) {
	basis := lot.AdjustedRemainingCostBasis()
	if basis.Currency() != s.Currency {
		if s.Converter == nil {
			return Holding{}, fmt.Errorf("%w: lot %s is in %s, summary is in %s",
				domain.ErrCurrencyMismatch, lot.ID, basis.Currency(), s.Currency)
		}
		converted, err := s.Converter.Convert(ctx, basis, s.Currency, asOf)
		if err != nil {
			return Holding{}, fmt.Errorf("failed to convert %s to %s: %w", basis, s.Currency, err)
		}
		basis = converted
	}

	days := domain.DaysBetween(lot.AcquisitionDate, asOf)
	until := QualifyingHoldingDays - days
	if until < 0 {
		until = 0
	}
	h := Holding{
		LotID:              lot.ID,
		PositionID:         item.position.ID,
		AccountID:          item.position.AccountID,
		SecurityID:         item.security.ID,
		Symbol:             item.security.Symbol,
		Issuer:             item.security.IssuerName(),
		AcquisitionDate:    lot.AcquisitionDate,
		QualificationDate:  lot.AcquisitionDate.AddDate(0, 0, QualifyingHoldingDays),
		Quantity:           lot.RemainingQuantity,
		CostBasis:          basis,
		HoldingPeriodDays:  days,
		DaysUntilQualified: until,
		IsQualified:        days >= QualifyingHoldingDays,
		PotentialExclusion: domain.ZeroMoney(s.Currency),
	}
	if h.IsQualified {
		h.PotentialExclusion = PotentialExclusion(basis)
	}
	return h, nil
}

func (sum *Summary) total() error {
	issuers := make(map[string]*IssuerSummary)
	issuerFor := func(name string) *IssuerSummary {
		is, ok := issuers[name]
		if !ok {
			is = &IssuerSummary{
				Issuer:             name,
				QualifiedBasis:     domain.ZeroMoney(sum.Currency),
				PendingBasis:       domain.ZeroMoney(sum.Currency),
				PotentialExclusion: domain.ZeroMoney(sum.Currency),
			}
			issuers[name] = is
		}
		return is
	}

	var err error
	for _, h := range sum.Qualified {
		is := issuerFor(h.Issuer)
		is.Holdings++
		if is.QualifiedBasis, err = is.QualifiedBasis.Add(h.CostBasis); err != nil {
			return err
		}
		if sum.TotalQualifiedBasis, err = sum.TotalQualifiedBasis.Add(h.CostBasis); err != nil {
			return err
		}
	}
	for _, h := range sum.Pending {
		is := issuerFor(h.Issuer)
		is.Holdings++
		if is.PendingBasis, err = is.PendingBasis.Add(h.CostBasis); err != nil {
			return err
		}
		if sum.TotalPendingBasis, err = sum.TotalPendingBasis.Add(h.CostBasis); err != nil {
			return err
		}
	}

	sum.Issuers = make([]IssuerSummary, 0, len(issuers))
	for _, is := range issuers {
		// the cap binds per issuer, so the total is the sum of issuer exclusions
		is.PotentialExclusion = PotentialExclusion(is.QualifiedBasis)
		if sum.TotalPotentialExclusion, err = sum.TotalPotentialExclusion.Add(is.PotentialExclusion); err != nil {
			return err
		}
		sum.Issuers = append(sum.Issuers, *is)
	}
	sort.Slice(sum.Issuers, func(i, j int) bool { return sum.Issuers[i].Issuer < sum.Issuers[j].Issuer })
	return nil
}

func lessByDate(a, b Holding) bool {
	if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
		return a.AcquisitionDate.Before(b.AcquisitionDate)
	}
	return a.LotID.String() < b.LotID.String()
}
