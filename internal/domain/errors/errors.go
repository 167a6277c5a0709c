// Package errors provides standardized error types for the domain layer.
// These errors give every tip command a typed outcome so the stream
// dispatcher can log and continue instead of relying on swallowed panics.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrMalformedCommand indicates a post could not be parsed into a tip intent
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnsupportedMultiRecipientNonCustodial indicates a non-custodial tip
	// named more than one recipient
	ErrUnsupportedMultiRecipientNonCustodial = errors.New("non-custodial tips support a single recipient")

	// ErrInsufficientBalance indicates the tipper's confirmed balance cannot
	// cover the requested amount
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountUnopened indicates the ledger account has no confirmed state
	// and no pending receivables
	ErrAccountUnopened = errors.New("account not opened")

	// ErrNoProfileAddress indicates a non-custodial participant has no ledger
	// address in their profile metadata
	ErrNoProfileAddress = errors.New("no ledger address in profile")

	// ErrLedgerRejected indicates the ledger node refused a submitted block
	ErrLedgerRejected = errors.New("ledger rejected block")

	// ErrUpstreamTimeout indicates a collaborator call exceeded its deadline
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrConversionError indicates an amount could not be converted between
	// display and base units
	ErrConversionError = errors.New("amount conversion failed")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(err error, code, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// WithRetryable marks the error as retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// IsRetryable returns true if the error is retryable
func (e *DomainError) IsRetryable() bool {
	return e.Retryable
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// LedgerRejectedError wraps a node-side rejection reason
func LedgerRejectedError(reason string) *DomainError {
	return &DomainError{
		Err:     ErrLedgerRejected,
		Code:    "LEDGER_REJECTED",
		Message: fmt.Sprintf("ledger node rejected block: %s", reason),
	}
}

// ConversionError creates an amount conversion error
func ConversionError(input string) *DomainError {
	return &DomainError{
		Err:     ErrConversionError,
		Code:    "CONVERSION_ERROR",
		Message: fmt.Sprintf("cannot convert amount %q", input),
	}
}

// MalformedCommandError creates a malformed command error
func MalformedCommandError(reason string) *DomainError {
	return &DomainError{
		Err:     ErrMalformedCommand,
		Code:    "MALFORMED_COMMAND",
		Message: reason,
	}
}
