package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorCode classifies domain errors so adapters can map them to transport codes
type ErrorCode string

const (
	// ErrCodeValidation marks input that can never succeed as submitted
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrCodeNotFound marks a missing referenced record
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeCapacity marks a disposal larger than the available open quantity
	ErrCodeCapacity ErrorCode = "INSUFFICIENT_QUANTITY"
	// ErrCodeInternal is returned by CodeOf for errors outside the domain taxonomy
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a classified domain error
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is and errors.As support
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Validation errors
var (
	ErrCurrencyMismatch       = NewError(ErrCodeValidation, "currency mismatch")
	ErrInvalidCurrency        = NewError(ErrCodeValidation, "invalid currency")
	ErrInvalidAmount          = NewError(ErrCodeValidation, "invalid amount")
	ErrUnbalancedTransaction  = NewError(ErrCodeValidation, "unbalanced transaction")
	ErrInvalidTransaction     = NewError(ErrCodeValidation, "invalid transaction")
	ErrInvalidAccount         = NewError(ErrCodeValidation, "invalid account")
	ErrInvalidSecurity        = NewError(ErrCodeValidation, "invalid security")
	ErrInvalidLotSelection    = NewError(ErrCodeValidation, "invalid lot selection")
	ErrInvalidLotOperation    = NewError(ErrCodeValidation, "invalid lot operation")
	ErrInvalidCorporateAction = NewError(ErrCodeValidation, "invalid corporate action")
)

// Not-found errors
var (
	ErrAccountNotFound         = NewError(ErrCodeNotFound, "account not found")
	ErrTransactionNotFound     = NewError(ErrCodeNotFound, "transaction not found")
	ErrSecurityNotFound        = NewError(ErrCodeNotFound, "security not found")
	ErrPositionNotFound        = NewError(ErrCodeNotFound, "position not found")
	ErrTaxLotNotFound          = NewError(ErrCodeNotFound, "tax lot not found")
	ErrCorporateActionNotFound = NewError(ErrCodeNotFound, "corporate action not found")
)

// Capacity errors
var (
	ErrInsufficientQuantity = NewError(ErrCodeCapacity, "insufficient quantity")
	ErrInsufficientLots     = NewError(ErrCodeCapacity, "insufficient lots")
)

// UnbalancedTransactionError carries the computed totals of the first unbalanced currency
type UnbalancedTransactionError struct {
	Currency Currency
	Debits   decimal.Decimal
	Credits  decimal.Decimal
}

func (e *UnbalancedTransactionError) Error() string {
	return fmt.Sprintf("unbalanced transaction: %s debits %s != credits %s",
		e.Currency, e.Debits.String(), e.Credits.String())
}

func (e *UnbalancedTransactionError) Unwrap() error {
	return ErrUnbalancedTransaction
}

// InsufficientLotsError reports how much open quantity a position actually had
type InsufficientLotsError struct {
	PositionID string
	Requested  Quantity
	Available  Quantity
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient lots for position %s: requested %s, available %s",
		e.PositionID, e.Requested, e.Available)
}

func (e *InsufficientLotsError) Unwrap() error {
	return ErrInsufficientLots
}

// CodeOf returns the classification of err, or ErrCodeInternal when err is not a domain error
func CodeOf(err error) ErrorCode {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err belongs to the not-found class
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
