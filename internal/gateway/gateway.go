// Package gateway talks to hosted checkout providers: it opens checkout
// sessions and turns signed webhook deliveries into verified events.
package gateway

import (
	"context"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/google/uuid"
)

// Metadata keys attached to every session so webhook events can be traced back.
const (
	MetaTransactionID = "transaction_id"
	MetaUserID        = "user_id"
	MetaItemID        = "item_id"
	MetaDurationDays  = "duration_days"
)

type SessionRequest struct {
	TransactionID uuid.UUID
	UserID        string
	CustomerEmail string
	ItemID        int64
	ItemTitle     string
	Description   string
	AmountCents   int64
	Currency      string
	DurationDays  int
	SuccessURL    string
	CancelURL     string
	// ExpiresAt closes the session for payment. Zero leaves the provider default.
	ExpiresAt time.Time
}

// Metadata is the key/value set echoed back by the provider on every event for the session.
func (r SessionRequest) Metadata() map[string]string {
	return map[string]string{
		MetaTransactionID: r.TransactionID.String(),
		MetaUserID:        r.UserID,
		MetaItemID:        itoa(r.ItemID),
		MetaDurationDays:  itoa(int64(r.DurationDays)),
	}
}

type Session struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

type Gateway interface {
	// Name returns the provider name stored on transactions.
	Name() string
	// CreateSession opens a hosted checkout session.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseEvent verifies the signature header and decodes the payload.
	// Verification failures wrap errors.ErrInvalidSignature.
	ParseEvent(payload []byte, signatureHeader string) (*webhook.Event, error)
}
