package errors

import (
	"errors"
	"fmt"
)

var (
	// Lookup errors
	ErrNotFound            = errors.New("not found")
	ErrItemNotFound        = fmt.Errorf("item %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrGrantNotFound       = fmt.Errorf("access grant %w", ErrNotFound)

	// Purchase errors
	ErrConflict               = errors.New("conflict")
	ErrActiveAccessExists     = fmt.Errorf("active access already exists: %w", ErrConflict)
	ErrCheckoutInProgress     = fmt.Errorf("checkout already in progress: %w", ErrConflict)
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Gateway errors
	ErrGateway            = errors.New("payment gateway error")
	ErrGatewayUnavailable = fmt.Errorf("gateway unavailable: %w", ErrGateway)
	ErrGatewayTimeout     = fmt.Errorf("gateway request timeout: %w", ErrGateway)
	ErrGatewayNotFound    = errors.New("payment gateway not found")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedEvent     = errors.New("malformed webhook event")
	ErrMetadataMismatch   = errors.New("webhook metadata does not match transaction")

	// Lock errors
	ErrLockNotHeld = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Is lets callers match any ValidationError against ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// GatewayError wraps a failure returned by an external payment gateway.
type GatewayError struct {
	Provider string
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrGateway, e.Err}
}

// NewGatewayError creates a new gateway error
func NewGatewayError(provider, op string, err error) *GatewayError {
	return &GatewayError{Provider: provider, Op: op, Err: err}
}
