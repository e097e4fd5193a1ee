package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists outbox entries. Insert runs inside the settling
// database transaction; ClaimPending must run inside the relay's own.
type Repository interface {
	Insert(ctx context.Context, entry *Entry) error

	// ClaimPending locks up to limit pending entries, oldest first. Rows
	// locked by another relay are skipped.
	ClaimPending(ctx context.Context, limit int) ([]*Entry, error)

	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error

	// MarkFailed records cause and counts the attempt. The entry stops
	// being pending once its retries are used up.
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error

	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}
