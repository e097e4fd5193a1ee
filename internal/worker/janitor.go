package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// OutboxPurger deletes published outbox rows.
type OutboxPurger interface {
	PurgePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

// KeyCleaner deletes expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Janitor trims tables that only grow: relayed outbox rows and expired
// idempotency keys.
type Janitor struct {
	outbox    OutboxPurger
	keys      KeyCleaner
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewJanitor(outbox OutboxPurger, keys KeyCleaner, retention time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		outbox:    outbox,
		keys:      keys,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "janitor").Logger(),
	}
}

// CleanOnce runs both purges. A failure in one does not skip the other.
func (j *Janitor) CleanOnce(ctx context.Context) {
	if n, err := j.outbox.PurgePublished(ctx, j.now().Add(-j.retention)); err != nil {
		j.logger.Error().Err(err).Msg("failed to purge outbox")
	} else if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("purged published outbox entries")
	}

	if n, err := j.keys.Cleanup(ctx); err != nil {
		j.logger.Error().Err(err).Msg("failed to clean idempotency keys")
	} else if n > 0 {
		j.logger.Info().Int64("deleted", n).Msg("removed expired idempotency keys")
	}
}

// Run cleans every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.CleanOnce(ctx)
		}
	}
}
