package service

import (
	"context"
	"fmt"
	"strconv"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransitionResult is the state of a transaction after a transition attempt.
// Changed is false when the transaction had already left pending; that is a
// successful no-op, not an error.
type TransitionResult struct {
	Transaction *transaction.Transaction
	Changed     bool
}

// Ledger owns every status change of a transaction. Each change is a single
// conditional write against status = pending.
type Ledger struct {
	repo    transaction.Repository
	clock   Clock
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewLedger(repo transaction.Repository, clock Clock, logger zerolog.Logger, metrics *observability.Metrics) *Ledger {
	return &Ledger{
		repo:    repo,
		clock:   clockOrDefault(clock),
		logger:  logger.With().Str("component", "ledger").Logger(),
		metrics: metrics,
	}
}

// Transition moves the transaction bound to sessionID to status to.
func (l *Ledger) Transition(ctx context.Context, sessionID string, to transaction.Status, reason string) (*TransitionResult, error) {
	tx, err := l.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return l.Apply(ctx, tx, to, reason)
}

// FailByID fails a still-pending transaction. Used when a checkout cannot be
// opened and when a pending transaction outlives its TTL.
func (l *Ledger) FailByID(ctx context.Context, id uuid.UUID, reason string) (*TransitionResult, error) {
	tx, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return l.Apply(ctx, tx, transaction.StatusFailed, reason)
}

// Apply transitions tx, as last read, to status to.
func (l *Ledger) Apply(ctx context.Context, tx *transaction.Transaction, to transaction.Status, reason string) (*TransitionResult, error) {
	if !to.IsTerminal() {
		return nil, domainErrors.NewDomainError("invalid_transition",
			"target status "+string(to)+" is not terminal", domainErrors.ErrInvalidStateTransition)
	}

	if tx.IsTerminal() {
		l.noteNoop(tx, to)
		return &TransitionResult{Transaction: tx}, nil
	}

	next, err := tx.Transition(to, reason, l.clock())
	if err != nil {
		return nil, err
	}

	applied, err := l.repo.CompareAndSetStatus(ctx, next, transaction.StatusPending)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race; report whatever won.
		current, err := l.repo.GetByID(ctx, tx.ID)
		if err != nil {
			return nil, err
		}
		l.noteNoop(current, to)
		return &TransitionResult{Transaction: current}, nil
	}

	data := map[string]any{"from": string(tx.Status), "to": string(to)}
	if reason != "" {
		data["reason"] = reason
	}
	if err := l.repo.AddEvent(ctx, transaction.NewEvent(tx.ID, "transaction."+string(to), data)); err != nil {
		return nil, err
	}

	l.count(to, true)
	l.logger.Info().
		Str("transaction_id", tx.ID.String()).
		Str("status", string(to)).
		Msg("transaction settled")

	return &TransitionResult{Transaction: next, Changed: true}, nil
}

func (l *Ledger) noteNoop(current *transaction.Transaction, wanted transaction.Status) {
	l.count(wanted, false)

	if current.Status == transaction.StatusFailed && wanted == transaction.StatusPaid {
		// The buyer paid after the checkout was failed. Needs manual follow-up.
		l.logger.Warn().
			Str("event", "late_completion").
			Str("transaction_id", current.ID.String()).
			Str("session_id", current.SessionID()).
			Str("user_id", current.UserID).
			Msg("completion received for failed transaction")
		return
	}

	l.logger.Debug().
		Str("transaction_id", current.ID.String()).
		Str("status", string(current.Status)).
		Str("wanted", string(wanted)).
		Msg("transition ignored, transaction already settled")
}

func (l *Ledger) count(to transaction.Status, changed bool) {
	if l.metrics == nil {
		return
	}
	l.metrics.SettlementsTotal.WithLabelValues(string(to), strconv.FormatBool(changed)).Inc()
}
