package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	aggregateID := uuid.New()
	payload := map[string]any{
		"transaction_id": aggregateID.String(),
		"amount_cents":   1000,
	}

	entry := NewEntry(AggregateTransaction, aggregateID, EventSettlementCompleted, payload)

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, "transaction", entry.AggregateType)
	assert.Equal(t, aggregateID, entry.AggregateID)
	assert.Equal(t, "settlement.completed", entry.EventType)
	assert.Equal(t, payload, entry.Payload)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, 5, entry.MaxRetries)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.PublishedAt)
}

func TestNewSettlementCompleted(t *testing.T) {
	txID := uuid.New()
	grantID := uuid.New()

	entry := NewSettlementCompleted(txID, grantID)

	assert.Equal(t, AggregateTransaction, entry.AggregateType)
	assert.Equal(t, txID, entry.AggregateID)
	assert.Equal(t, EventSettlementCompleted, entry.EventType)
	assert.Equal(t, txID.String(), entry.Payload["transaction_id"])
	assert.Equal(t, grantID.String(), entry.Payload["grant_id"])
}

func TestEntry_CanRetry(t *testing.T) {
	entry := NewEntry(AggregateTransaction, uuid.New(), EventSettlementCompleted, nil)
	assert.True(t, entry.CanRetry())

	entry.RetryCount = entry.MaxRetries
	assert.False(t, entry.CanRetry())
}

func TestEntry_RecordFailure(t *testing.T) {
	entry := NewSettlementCompleted(uuid.New(), uuid.New())

	for i := 1; i < entry.MaxRetries; i++ {
		entry.RecordFailure("stream unavailable")
		assert.Equal(t, StatusPending, entry.Status, "attempt %d", i)
	}
	assert.Equal(t, entry.MaxRetries-1, entry.RetryCount)

	entry.RecordFailure("READONLY replica")
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, "READONLY replica", entry.LastError)
	assert.False(t, entry.CanRetry())
}

func TestEntry_MarkPublished(t *testing.T) {
	entry := NewSettlementCompleted(uuid.New(), uuid.New())
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry.MarkPublished(at)

	assert.Equal(t, StatusPublished, entry.Status)
	require.NotNil(t, entry.PublishedAt)
	assert.Equal(t, at, *entry.PublishedAt)
}

func TestEntry_UniqueIDs(t *testing.T) {
	aggregateID := uuid.New()
	entry1 := NewEntry(AggregateTransaction, aggregateID, EventSettlementCompleted, nil)
	entry2 := NewEntry(AggregateTransaction, aggregateID, EventSettlementCompleted, nil)

	assert.NotEqual(t, entry1.ID, entry2.ID)
	assert.Equal(t, entry1.AggregateID, entry2.AggregateID)
}
