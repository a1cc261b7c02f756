package domain

import (
	"time"

	"github.com/google/uuid"
)

// LongTermHoldingDays is the holding period a disposition must exceed to be long-term
const LongTermHoldingDays = 365

// LotDisposition is the result of consuming (part of) one lot in a sale
type LotDisposition struct {
	LotID           uuid.UUID
	QuantitySold    Quantity
	CostBasis       Money
	Proceeds        Money
	AcquisitionDate time.Time
	DispositionDate time.Time
	// WashSaleAdjustment is the share of a previously disallowed loss included in CostBasis
	WashSaleAdjustment Money
}

// RealizedGain returns proceeds - cost basis; negative values are losses
func (d LotDisposition) RealizedGain() Money {
	gain, err := d.Proceeds.Sub(d.CostBasis)
	if err != nil {
		// proceeds and basis are always built in the lot currency
		return Money{amount: d.Proceeds.amount.Sub(d.CostBasis.amount), currency: d.CostBasis.currency}
	}
	return gain
}

// HoldingPeriodDays returns the whole days between acquisition and disposition
func (d LotDisposition) HoldingPeriodDays() int {
	return DaysBetween(d.AcquisitionDate, d.DispositionDate)
}

// IsLongTerm reports whether the holding period exceeds one year
func (d LotDisposition) IsLongTerm() bool {
	return d.HoldingPeriodDays() > LongTermHoldingDays
}

// DispositionTotals sums a set of dispositions in one currency
type DispositionTotals struct {
	Quantity      Quantity
	CostBasis     Money
	Proceeds      Money
	RealizedGain  Money
	ShortTermGain Money
	LongTermGain  Money
}

// SumDispositions totals dispositions that all share cur
func SumDispositions(cur Currency, dispositions []LotDisposition) (DispositionTotals, error) {
	totals := DispositionTotals{
		Quantity:      ZeroQuantity,
		CostBasis:     ZeroMoney(cur),
		Proceeds:      ZeroMoney(cur),
		RealizedGain:  ZeroMoney(cur),
		ShortTermGain: ZeroMoney(cur),
		LongTermGain:  ZeroMoney(cur),
	}
	var err error
	for _, d := range dispositions {
		totals.Quantity = totals.Quantity.Add(d.QuantitySold)
		if totals.CostBasis, err = totals.CostBasis.Add(d.CostBasis); err != nil {
			return DispositionTotals{}, err
		}
		if totals.Proceeds, err = totals.Proceeds.Add(d.Proceeds); err != nil {
			return DispositionTotals{}, err
		}
		gain := d.RealizedGain()
		if totals.RealizedGain, err = totals.RealizedGain.Add(gain); err != nil {
			return DispositionTotals{}, err
		}
		if d.IsLongTerm() {
			totals.LongTermGain, err = totals.LongTermGain.Add(gain)
		} else {
			totals.ShortTermGain, err = totals.ShortTermGain.Add(gain)
		}
		if err != nil {
			return DispositionTotals{}, err
		}
	}
	return totals, nil
}
