package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for transaction persistence
type Repository interface {
	// Create inserts a new pending transaction
	Create(ctx context.Context, tx *Transaction) error

	// GetByID retrieves a transaction by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// GetBySessionID retrieves a transaction by its unique gateway session id
	GetBySessionID(ctx context.Context, sessionID string) (*Transaction, error)

	// GetPending retrieves the open checkout of a user for an item.
	// ErrTransactionNotFound is returned when there is none.
	GetPending(ctx context.Context, userID string, itemID int64) (*Transaction, error)

	// AttachSession stores the gateway session on a still-pending transaction
	AttachSession(ctx context.Context, tx *Transaction) error

	// CompareAndSetStatus persists next only if the stored status still equals
	// expected. It reports whether the write was applied.
	CompareAndSetStatus(ctx context.Context, next *Transaction, expected Status) (bool, error)

	// ListByUser lists a user's transactions, newest first
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]*Transaction, error)

	// ListStalePending returns pending transactions created before cutoff
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)

	// AddEvent adds a transaction event for audit trail
	AddEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves events for a transaction
	GetEvents(ctx context.Context, transactionID uuid.UUID) ([]*Event, error)
}

// Page sizes for ListByUser. A limit outside (0, MaxPageSize] falls back to DefaultPageSize.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter defines filters for listing transactions
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// PageSize is the number of rows a listing with f returns at most.
func (f ListFilter) PageSize() int {
	if f.Limit <= 0 || f.Limit > MaxPageSize {
		return DefaultPageSize
	}
	return f.Limit
}

// Event represents an entry in the transaction audit trail
type Event struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	EventType     string
	EventData     map[string]any
	CreatedAt     time.Time
}

// NewEvent creates an audit event for a transaction.
func NewEvent(transactionID uuid.UUID, eventType string, data map[string]any) *Event {
	return &Event{
		ID:            uuid.New(),
		TransactionID: transactionID,
		EventType:     eventType,
		EventData:     data,
		CreatedAt:     time.Now().UTC(),
	}
}
