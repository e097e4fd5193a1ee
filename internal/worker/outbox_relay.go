// Package worker holds the background loops of the settlement worker.
package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/outbox"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// TxRunner runs fn inside a database transaction carried on ctx.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher appends outbox entries to a stream.
type Publisher interface {
	Publish(ctx context.Context, entry *outbox.Entry) error
}

// OutboxRelay moves pending outbox rows onto the notification stream.
// Rows are locked while published so several relays can run side by side.
type OutboxRelay struct {
	txManager TxRunner
	repo      outbox.Repository
	publisher Publisher
	stream    string
	batchSize int
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewOutboxRelay(
	txManager TxRunner,
	repo outbox.Repository,
	publisher Publisher,
	stream string,
	batchSize int,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxRelay{
		txManager: txManager,
		repo:      repo,
		publisher: publisher,
		stream:    stream,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
		metrics:   metrics,
	}
}

// RelayOnce publishes one batch and reports how many entries went out.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.repo.ClaimPending(txCtx, r.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if pubErr := r.publisher.Publish(ctx, entry); pubErr != nil {
				r.logger.Error().Err(pubErr).
					Str("outbox_id", entry.ID.String()).
					Int("retry_count", entry.RetryCount).
					Msg("failed to publish outbox entry")
				if err := r.repo.MarkFailed(txCtx, entry.ID, pubErr.Error()); err != nil {
					return err
				}
				r.countMessage("publish_failed")
				continue
			}
			if err := r.repo.MarkPublished(txCtx, entry.ID, r.now()); err != nil {
				return err
			}
			published++
			r.countMessage("published")
		}
		return nil
	})
	return published, err
}

// Run relays every interval until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if n, err := r.RelayOnce(ctx); err != nil {
			if ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("outbox relay error")
			}
		} else if n > 0 {
			r.logger.Debug().Int("published", n).Msg("outbox entries relayed")
		}
	}
}

func (r *OutboxRelay) countMessage(status string) {
	if r.metrics != nil {
		r.metrics.WorkerMessagesProcessed.WithLabelValues(r.stream, status).Inc()
	}
}
