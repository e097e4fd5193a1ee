package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &DomainError{
				Code:    "settlement_failed",
				Message: "settlement failed",
				Err:     errors.New("connection reset"),
			},
			expected: "settlement failed: connection reset",
		},
		{
			name: "without wrapped error",
			err: &DomainError{
				Code:    "invalid_state",
				Message: "transaction is not settled",
			},
			expected: "transaction is not settled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	err := NewDomainError("test", "test message", originalErr)

	assert.Equal(t, originalErr, err.Unwrap())
	assert.ErrorIs(t, err, originalErr)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("duration_days", "must be positive")

	assert.Equal(t, "validation failed for field duration_days: must be positive", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)

	wrapped := fmt.Errorf("initiate: %w", err)
	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "duration_days", ve.Field)
}

func TestGatewayError(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := NewGatewayError("stripe", "create_session", cause)

	assert.Equal(t, "stripe create_session: dial tcp: i/o timeout", err.Error())
	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, cause)
}

func TestSentinelHierarchy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"item not found", ErrItemNotFound, ErrNotFound},
		{"transaction not found", ErrTransactionNotFound, ErrNotFound},
		{"grant not found", ErrGrantNotFound, ErrNotFound},
		{"active access", ErrActiveAccessExists, ErrConflict},
		{"checkout in progress", ErrCheckoutInProgress, ErrConflict},
		{"gateway timeout", ErrGatewayTimeout, ErrGateway},
		{"gateway unavailable", ErrGatewayUnavailable, ErrGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
		})
	}

	assert.NotErrorIs(t, ErrInvalidSignature, ErrGateway)
}
