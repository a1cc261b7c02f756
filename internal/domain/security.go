package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AssetClass groups securities for reporting
type AssetClass string

const (
	AssetClassEquity        AssetClass = "EQUITY"
	AssetClassFixedIncome   AssetClass = "FIXED_INCOME"
	AssetClassFund          AssetClass = "FUND"
	AssetClassPrivateEquity AssetClass = "PRIVATE_EQUITY"
	AssetClassCrypto        AssetClass = "CRYPTO"
	AssetClassOther         AssetClass = "OTHER"
)

// Security is an instrument that positions hold lots of
type Security struct {
	ID             uuid.UUID
	Symbol         string
	Name           string
	Issuer         string // QSBS caps are tracked per issuer
	AssetClass     AssetClass
	IsQSBSEligible bool
	IsActive       bool
}

// Validate ensures the security adheres to domain rules
func (s *Security) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidSecurity)
	}
	if s.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidSecurity)
	}
	return nil
}

// IssuerName falls back to the security name when no issuer was recorded
func (s *Security) IssuerName() string {
	if s.Issuer != "" {
		return s.Issuer
	}
	return s.Name
}

// Position is the holding of one security inside one account.
// A position exclusively owns its tax lots.
type Position struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	SecurityID uuid.UUID
}
