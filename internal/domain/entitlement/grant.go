package entitlement

import (
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/google/uuid"
)

// Grant is a time-boxed permission for a user to access an item.
// It is created once per paid transaction and never mutated afterwards.
type Grant struct {
	ID            uuid.UUID
	UserID        string
	ItemID        int64
	TransactionID uuid.UUID
	DurationDays  int
	StartAt       time.Time
	EndAt         time.Time
	CreatedAt     time.Time
}

// NewGrant builds a grant covering durationDays starting at start.
func NewGrant(userID string, itemID int64, transactionID uuid.UUID, durationDays int, start time.Time) (*Grant, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", "cannot be empty")
	}
	if transactionID == uuid.Nil {
		return nil, errors.NewValidationError("transaction_id", "cannot be empty")
	}
	if durationDays <= 0 {
		return nil, errors.NewValidationError("duration_days", "must be greater than 0")
	}

	return &Grant{
		ID:            uuid.New(),
		UserID:        userID,
		ItemID:        itemID,
		TransactionID: transactionID,
		DurationDays:  durationDays,
		StartAt:       start,
		EndAt:         start.AddDate(0, 0, durationDays),
		CreatedAt:     start,
	}, nil
}

// ActiveAt reports whether now falls inside the grant window, both ends inclusive.
func (g *Grant) ActiveAt(now time.Time) bool {
	return !now.Before(g.StartAt) && !now.After(g.EndAt)
}

// Remaining returns how long the grant stays active after now.
func (g *Grant) Remaining(now time.Time) time.Duration {
	if !g.ActiveAt(now) {
		return 0
	}
	return g.EndAt.Sub(now)
}
