package service

import (
	"context"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// SweepLockName is the lock held by the instance running a sweep.
const SweepLockName = "reconcile:pending"

// StaleReason is recorded on transactions failed by the sweep.
const StaleReason = "pending transaction expired without settlement"

// Locker is a single-holder lease. A nil Locker means no coordination.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ReconcilerConfig controls which transactions count as stale.
type ReconcilerConfig struct {
	PendingTTL time.Duration
	BatchSize  int
}

// Reconciler fails transactions that stayed pending past their TTL, so a
// checkout whose gateway notification never arrived does not linger.
type Reconciler struct {
	transactions transaction.Repository
	ledger       *Ledger
	newLock      func(name string) Locker
	cfg          ReconcilerConfig
	clock        Clock
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

// NewReconciler builds a reconciler. newLock may be nil for a single instance.
func NewReconciler(
	transactions transaction.Repository,
	ledger *Ledger,
	newLock func(name string) Locker,
	cfg ReconcilerConfig,
	clock Clock,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		transactions: transactions,
		ledger:       ledger,
		newLock:      newLock,
		cfg:          cfg,
		clock:        clockOrDefault(clock),
		logger:       logger.With().Str("component", "reconciler").Logger(),
		metrics:      metrics,
	}
}

// Sweep fails one batch of stale pending transactions and reports how many
// it moved. A transaction settled concurrently keeps its status.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	if r.newLock != nil {
		lock := r.newLock(SweepLockName)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		if !acquired {
			r.logger.Debug().Msg("sweep running elsewhere, skipping")
			return 0, nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn().Err(err).Msg("failed to release sweep lock")
			}
		}()
	}

	cutoff := r.clock().Add(-r.cfg.PendingTTL)
	stale, err := r.transactions.ListStalePending(ctx, cutoff, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, tx := range stale {
		res, err := r.ledger.FailByID(ctx, tx.ID, StaleReason)
		if err != nil {
			r.logger.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("failed to expire pending transaction")
			continue
		}
		if res.Changed {
			failed++
		}
	}

	if failed > 0 {
		if r.metrics != nil {
			r.metrics.SweptPending.Add(float64(failed))
		}
		r.logger.Info().
			Int("failed", failed).
			Int("examined", len(stale)).
			Time("cutoff", cutoff).
			Msg("stale pending transactions failed")
	}
	return failed, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("sweep failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
