package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies gateway notifications by what they mean for settlement.
type Kind string

const (
	KindCompleted Kind = "completed"
	KindExpired   Kind = "expired"
	KindFailed    Kind = "failed"
	KindIgnored   Kind = "ignored"
)

// Event is a verified gateway notification.
type Event struct {
	ID        string
	Provider  string
	Type      string
	Kind      Kind
	SessionID string
	// PaymentStatus is the session's payment status as reported by the provider.
	PaymentStatus string
	Metadata      map[string]string
	Payload       []byte
	CreatedAt     time.Time
}

// Outcome describes what processing an event did.
type Outcome string

const (
	OutcomeReceived Outcome = "received"
	OutcomeSettled  Outcome = "settled"
	OutcomeFailed   Outcome = "failed"
	OutcomeNoop     Outcome = "noop"
	OutcomeIgnored  Outcome = "ignored"
)

// Record is the audit row kept for every accepted notification.
type Record struct {
	ID              uuid.UUID
	Provider        string
	ProviderEventID string
	EventType       string
	SessionID       string
	Outcome         Outcome
	Payload         []byte
	ReceivedAt      time.Time
}

// Repository stores delivered events keyed by provider event id.
type Repository interface {
	// Record inserts r unless the provider event id was seen before.
	// It reports whether the row was inserted.
	Record(ctx context.Context, r *Record) (bool, error)
	// SetOutcome stores what processing the recorded event did.
	SetOutcome(ctx context.Context, id uuid.UUID, outcome Outcome) error
}

// NewRecord builds an audit row for e with the given outcome.
func NewRecord(e *Event, outcome Outcome) *Record {
	return &Record{
		ID:              uuid.New(),
		Provider:        e.Provider,
		ProviderEventID: e.ID,
		EventType:       e.Type,
		SessionID:       e.SessionID,
		Outcome:         outcome,
		Payload:         e.Payload,
		ReceivedAt:      time.Now().UTC(),
	}
}
