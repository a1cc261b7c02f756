package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AcquisitionType records how a lot entered the position
type AcquisitionType string

const (
	AcquisitionTypePurchase     AcquisitionType = "PURCHASE"
	AcquisitionTypeReinvestment AcquisitionType = "REINVESTMENT"
	AcquisitionTypeTransfer     AcquisitionType = "TRANSFER"
	AcquisitionTypeGift         AcquisitionType = "GIFT"
	AcquisitionTypeInheritance  AcquisitionType = "INHERITANCE"
	AcquisitionTypeSpinoff      AcquisitionType = "SPINOFF"
	AcquisitionTypeMerger       AcquisitionType = "MERGER"
)

// Valid reports whether t is one of the known acquisition types
func (t AcquisitionType) Valid() bool {
	switch t {
	case AcquisitionTypePurchase, AcquisitionTypeReinvestment, AcquisitionTypeTransfer,
		AcquisitionTypeGift, AcquisitionTypeInheritance, AcquisitionTypeSpinoff, AcquisitionTypeMerger:
		return true
	}
	return false
}

// IsPurchase reports whether the acquisition can be a wash-sale replacement purchase.
// Transfers, gifts, inheritances and corporate-action lots are not purchases.
func (t AcquisitionType) IsPurchase() bool {
	return t == AcquisitionTypePurchase || t == AcquisitionTypeReinvestment
}

// TaxLot is a quantity/cost-basis parcel of one position
type TaxLot struct {
	ID                 uuid.UUID
	PositionID         uuid.UUID
	AcquisitionDate    time.Time
	CostPerShare       Money
	OriginalQuantity   Quantity
	RemainingQuantity  Quantity
	AcquisitionType    AcquisitionType
	DispositionDate    *time.Time // set iff RemainingQuantity is zero
	IsCovered          bool       // broker reports basis to the tax authority
	WashSaleDisallowed bool
	WashSaleAdjustment Money    // deferred loss not yet recovered, carried by the remaining shares
	WashSaleReplaced   Quantity // remaining shares already standing in for an earlier loss sale
}

// NewTaxLot creates an open lot with its full quantity remaining
func NewTaxLot(positionID uuid.UUID, acquired time.Time, quantity Quantity, costPerShare Money, acquisitionType AcquisitionType) *TaxLot {
	return &TaxLot{
		ID:                 uuid.New(),
		PositionID:         positionID,
		AcquisitionDate:    DateOf(acquired),
		CostPerShare:       costPerShare,
		OriginalQuantity:   quantity,
		RemainingQuantity:  quantity,
		AcquisitionType:    acquisitionType,
		IsCovered:          true,
		WashSaleAdjustment: ZeroMoney(costPerShare.Currency()),
		WashSaleReplaced:   ZeroQuantity,
	}
}

// Validate checks the lot invariants
func (l *TaxLot) Validate() error {
	if !l.OriginalQuantity.IsPositive() {
		return fmt.Errorf("%w: lot %s original quantity must be positive", ErrInvalidLotOperation, l.ID)
	}
	if l.RemainingQuantity.IsNegative() || l.RemainingQuantity.GreaterThan(l.OriginalQuantity) {
		return fmt.Errorf("%w: lot %s remaining quantity out of range", ErrInvalidLotOperation, l.ID)
	}
	if l.CostPerShare.IsNegative() {
		return fmt.Errorf("%w: lot %s cost per share cannot be negative", ErrInvalidLotOperation, l.ID)
	}
	if _, err := ParseCurrency(string(l.CostPerShare.Currency())); err != nil {
		return err
	}
	if !l.AcquisitionType.Valid() {
		return fmt.Errorf("%w: lot %s has unknown acquisition type %q", ErrInvalidLotOperation, l.ID, l.AcquisitionType)
	}
	if l.RemainingQuantity.IsZero() != (l.DispositionDate != nil) {
		return fmt.Errorf("%w: lot %s disposition date must be set iff the lot is closed", ErrInvalidLotOperation, l.ID)
	}
	if l.DispositionDate != nil && l.DispositionDate.Before(l.AcquisitionDate) {
		return fmt.Errorf("%w: lot %s disposed before it was acquired", ErrInvalidLotOperation, l.ID)
	}
	if l.WashSaleReplaced.IsNegative() || l.WashSaleReplaced.GreaterThan(l.RemainingQuantity) {
		return fmt.Errorf("%w: lot %s replacement quantity out of range", ErrInvalidLotOperation, l.ID)
	}
	return nil
}

// IsOpen reports whether any quantity remains
func (l *TaxLot) IsOpen() bool {
	return l.RemainingQuantity.IsPositive()
}

// Currency returns the lot's cost currency
func (l *TaxLot) Currency() Currency {
	return l.CostPerShare.Currency()
}

// TotalCost returns OriginalQuantity * CostPerShare
func (l *TaxLot) TotalCost() Money {
	return l.CostPerShare.MulQuantity(l.OriginalQuantity)
}

// washAdjustmentPerShare spreads the unrecovered wash-sale adjustment over the remaining shares
func (l *TaxLot) washAdjustmentPerShare() Money {
	if !l.WashSaleDisallowed || l.WashSaleAdjustment.IsZero() || !l.RemainingQuantity.IsPositive() {
		return ZeroMoney(l.Currency())
	}
	return l.WashSaleAdjustment.DivQuantity(l.RemainingQuantity)
}

// AdjustedCostPerShare is the effective per-share basis including any disallowed wash-sale loss
func (l *TaxLot) AdjustedCostPerShare() Money {
	adj := l.washAdjustmentPerShare()
	return Money{amount: l.CostPerShare.amount.Add(adj.amount), currency: l.Currency()}
}

// RemainingCostBasis returns the nominal basis of the open quantity
func (l *TaxLot) RemainingCostBasis() Money {
	return l.CostPerShare.MulQuantity(l.RemainingQuantity)
}

// AdjustedRemainingCostBasis returns the effective basis of the open quantity
func (l *TaxLot) AdjustedRemainingCostBasis() Money {
	return Money{amount: l.RemainingCostBasis().amount.Add(l.washAdjustment().amount), currency: l.Currency()}
}

// ReplacementCapacity is the open quantity not yet standing in for a loss sale
func (l *TaxLot) ReplacementCapacity() Quantity {
	replaced := l.WashSaleReplaced
	if replaced.GreaterThan(l.RemainingQuantity) {
		return ZeroQuantity
	}
	return l.RemainingQuantity.Sub(replaced)
}

// washAdjustment returns the unrecovered adjustment, zero when none was marked
func (l *TaxLot) washAdjustment() Money {
	if !l.WashSaleDisallowed || l.WashSaleAdjustment.Currency() == "" {
		return ZeroMoney(l.Currency())
	}
	return l.WashSaleAdjustment
}

// Sell disposes of quantity on date and returns the adjusted cost basis of the shares sold.
// The sold shares take their pro rata part of the unrecovered wash-sale adjustment and
// of the replacement quantity; closing the lot takes all of both.
func (l *TaxLot) Sell(quantity Quantity, date time.Time) (Money, error) {
	date = DateOf(date)
	if !quantity.IsPositive() {
		return Money{}, fmt.Errorf("%w: sell quantity must be positive", ErrInvalidLotOperation)
	}
	if quantity.GreaterThan(l.RemainingQuantity) {
		return Money{}, fmt.Errorf("%w: lot %s has %s remaining, cannot sell %s",
			ErrInsufficientQuantity, l.ID, l.RemainingQuantity, quantity)
	}
	if date.Before(l.AcquisitionDate) {
		return Money{}, fmt.Errorf("%w: disposition date %s precedes acquisition date %s",
			ErrInvalidLotOperation, date.Format(DateFormat), l.AcquisitionDate.Format(DateFormat))
	}

	adjustment := l.washAdjustment()
	released := adjustment
	replacedLeft := ZeroQuantity
	if quantity.LessThan(l.RemainingQuantity) {
		share := quantity.Ratio(l.RemainingQuantity)
		released = adjustment.Mul(share)
		replacedLeft = l.WashSaleReplaced.Sub(l.WashSaleReplaced.Mul(share).Truncate(QuantityScale))
	}

	costBasisSold := Money{amount: l.CostPerShare.MulQuantity(quantity).amount.Add(released.amount), currency: l.Currency()}
	l.RemainingQuantity = l.RemainingQuantity.Sub(quantity)
	l.WashSaleAdjustment = Money{amount: adjustment.amount.Sub(released.amount), currency: l.Currency()}
	l.WashSaleReplaced = MinQuantity(replacedLeft, l.RemainingQuantity)
	if l.RemainingQuantity.IsZero() {
		l.DispositionDate = &date
	}
	return costBasisSold, nil
}

// ApplySplit rescales quantities by num/den and cost per share by den/num; total cost is unchanged
func (l *TaxLot) ApplySplit(num, den decimal.Decimal) error {
	if !num.IsPositive() || !den.IsPositive() {
		return fmt.Errorf("%w: split ratio must be positive, got %s/%s", ErrInvalidLotOperation, num, den)
	}
	l.OriginalQuantity = l.OriginalQuantity.Mul(num).Div(den)
	l.RemainingQuantity = l.RemainingQuantity.Mul(num).Div(den)
	l.WashSaleReplaced = MinQuantity(l.WashSaleReplaced.Mul(num).Div(den), l.RemainingQuantity)
	l.CostPerShare = l.CostPerShare.Mul(den).Div(num)
	return nil
}

// MarkWashSale folds a disallowed loss into the lot's effective basis; repeated marks accumulate
func (l *TaxLot) MarkWashSale(disallowed Money) error {
	if !disallowed.IsPositive() {
		return fmt.Errorf("%w: disallowed loss must be positive", ErrInvalidLotOperation)
	}
	current := l.WashSaleAdjustment
	if current.Currency() == "" {
		current = ZeroMoney(l.Currency())
	}
	total, err := current.Add(disallowed)
	if err != nil {
		return err
	}
	l.WashSaleAdjustment = total
	l.WashSaleDisallowed = true
	return nil
}

// MarkReplacement records that quantity of the lot's open shares now replace shares
// sold at a loss, so a later loss sale cannot count them again
func (l *TaxLot) MarkReplacement(quantity Quantity) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: replacement quantity must be positive", ErrInvalidLotOperation)
	}
	if quantity.GreaterThan(l.ReplacementCapacity()) {
		return fmt.Errorf("%w: lot %s can replace %s more shares, not %s",
			ErrInvalidLotOperation, l.ID, l.ReplacementCapacity(), quantity)
	}
	l.WashSaleReplaced = l.WashSaleReplaced.Add(quantity)
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing repository state
func (l *TaxLot) Clone() *TaxLot {
	c := *l
	if l.DispositionDate != nil {
		d := *l.DispositionDate
		c.DispositionDate = &d
	}
	return &c
}

// WashSaleWindowDays is the number of days on each side of a loss sale in which a
// replacement purchase disallows the loss
const WashSaleWindowDays = 30

// WashSaleWindow returns the inclusive window around saleDate
func WashSaleWindow(saleDate time.Time) (start, end time.Time) {
	day := DateOf(saleDate)
	return day.AddDate(0, 0, -WashSaleWindowDays), day.AddDate(0, 0, WashSaleWindowDays)
}

// InWashSaleWindow reports whether the lot was acquired within the window around saleDate
func (l *TaxLot) InWashSaleWindow(saleDate time.Time) bool {
	start, end := WashSaleWindow(saleDate)
	return !l.AcquisitionDate.Before(start) && !l.AcquisitionDate.After(end)
}
