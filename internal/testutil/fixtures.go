package testutil

import (
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/catalog"
	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/google/uuid"
)

// FixedNow is the reference instant used across service tests.
var FixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// FixedClock returns a clock frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func NewTestUser(id string) identity.User {
	return identity.User{ID: id, Email: id + "@example.com", Name: "Reader " + id}
}

func NewTestItem(id int64, title string, monthlyRateCents int64) *catalog.Item {
	return &catalog.Item{ID: id, Title: title, MonthlyRateCents: monthlyRateCents}
}

// NewTestTransaction returns a pending transaction bound to sessionID.
// An empty sessionID leaves it unbound.
func NewTestTransaction(userID string, itemID int64, amountCents int64, days int, sessionID string) *transaction.Transaction {
	now := time.Now().UTC()
	tx := &transaction.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		CustomerEmail: userID + "@example.com",
		ItemID:        itemID,
		Amount:        transaction.Amount{ValueCents: amountCents, Currency: "USD"},
		DurationDays:  days,
		Status:        transaction.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if sessionID != "" {
		tx = tx.WithSession("mock", sessionID, "https://checkout.example.com/"+sessionID, now)
	}
	return tx
}

// NewTestGrant returns a grant for a fresh transaction covering [start, end].
func NewTestGrant(userID string, itemID int64, start, end time.Time) *entitlement.Grant {
	return &entitlement.Grant{
		ID:            uuid.New(),
		UserID:        userID,
		ItemID:        itemID,
		TransactionID: uuid.New(),
		DurationDays:  int(end.Sub(start).Hours() / 24),
		StartAt:       start,
		EndAt:         end,
		CreatedAt:     start,
	}
}
