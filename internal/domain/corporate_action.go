package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CorporateActionType identifies the kind of structural event
type CorporateActionType string

const (
	CorporateActionSplit        CorporateActionType = "SPLIT"
	CorporateActionSpinoff      CorporateActionType = "SPINOFF"
	CorporateActionMerger       CorporateActionType = "MERGER"
	CorporateActionSymbolChange CorporateActionType = "SYMBOL_CHANGE"
)

// CorporateAction is the applied-once record of an action against one security.
// (SecurityID, ID) is unique; a second application with the same pair is a no-op.
type CorporateAction struct {
	ID            string // ULID unless the caller supplied its own key
	SecurityID    uuid.UUID
	Type          CorporateActionType
	EffectiveDate time.Time
	Description   string
	LotsAffected  int
	LotsCreated   int
	CashInLieu    Money
	AppliedAt     time.Time
}

// Validate ensures the record can be stored
func (a *CorporateAction) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: action id is required", ErrInvalidCorporateAction)
	}
	if a.SecurityID == uuid.Nil {
		return fmt.Errorf("%w: security id is required", ErrInvalidCorporateAction)
	}
	switch a.Type {
	case CorporateActionSplit, CorporateActionSpinoff, CorporateActionMerger, CorporateActionSymbolChange:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCorporateAction, a.Type)
	}
	if a.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: effective date is required", ErrInvalidCorporateAction)
	}
	return nil
}
