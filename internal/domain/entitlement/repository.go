package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for grant persistence.
type Repository interface {
	// CreateIfAbsent inserts g unless a grant already references the same
	// transaction. It returns the stored grant and whether it was created.
	CreateIfAbsent(ctx context.Context, g *Grant) (*Grant, bool, error)

	// GetByTransactionID retrieves the grant issued for a transaction
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Grant, error)

	// FindActive returns the grant for (userID, itemID) active at now, if any
	FindActive(ctx context.Context, userID string, itemID int64, now time.Time) (*Grant, error)

	// ListByTransactionIDs returns the grants issued for any of ids
	ListByTransactionIDs(ctx context.Context, ids []uuid.UUID) ([]*Grant, error)
}
