package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Event types written to the outbox.
const (
	AggregateTransaction     = "transaction"
	EventSettlementCompleted = "settlement.completed"
)

type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	LastError     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewSettlementCompleted records that transactionID was paid and granted.
func NewSettlementCompleted(transactionID, grantID uuid.UUID) *Entry {
	return NewEntry(AggregateTransaction, transactionID, EventSettlementCompleted, map[string]any{
		"transaction_id": transactionID.String(),
		"grant_id":       grantID.String(),
	})
}

// CanRetry reports whether a failed publish may be attempted again.
func (e *Entry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// RecordFailure counts a failed publish. The entry turns failed once
// MaxRetries attempts have been made.
func (e *Entry) RecordFailure(cause string) {
	e.RetryCount++
	e.LastError = cause
	if !e.CanRetry() {
		e.Status = StatusFailed
	}
}

// MarkPublished moves the entry out of the pending set.
func (e *Entry) MarkPublished(at time.Time) {
	e.Status = StatusPublished
	e.PublishedAt = &at
}
