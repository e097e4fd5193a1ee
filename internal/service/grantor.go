package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/outbox"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Grantor issues the access grant for a paid transaction, at most once.
type Grantor struct {
	grants    entitlement.Repository
	outbox    outbox.Repository
	txManager TransactionManager
	clock     Clock
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewGrantor(
	grants entitlement.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	clock Clock,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Grantor {
	return &Grantor{
		grants:    grants,
		outbox:    outboxRepo,
		txManager: txManager,
		clock:     clockOrDefault(clock),
		logger:    logger.With().Str("component", "grantor").Logger(),
		metrics:   metrics,
	}
}

// OnSettled creates the grant for tx, or returns the one already issued with
// created=false. When called inside an open transaction it joins it, so the
// grant commits together with the PAID status. A new grant also queues a
// settlement.completed outbox entry in the same transaction.
func (g *Grantor) OnSettled(ctx context.Context, tx *transaction.Transaction) (*entitlement.Grant, bool, error) {
	if tx.Status != transaction.StatusPaid {
		return nil, false, domainErrors.NewDomainError("not_paid",
			fmt.Sprintf("transaction %s is %s, not paid", tx.ID, tx.Status), domainErrors.ErrInvalidStateTransition)
	}

	candidate, err := entitlement.NewGrant(tx.UserID, tx.ItemID, tx.ID, tx.DurationDays, g.clock())
	if err != nil {
		return nil, false, err
	}

	var grant *entitlement.Grant
	var created bool
	err = g.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		grant, created, err = g.grants.CreateIfAbsent(txCtx, candidate)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return g.outbox.Insert(txCtx, outbox.NewSettlementCompleted(tx.ID, grant.ID))
	})
	if err != nil {
		return nil, false, err
	}

	if g.metrics != nil {
		g.metrics.GrantsTotal.WithLabelValues(strconv.FormatBool(created)).Inc()
	}
	if created {
		g.logger.Info().
			Str("transaction_id", tx.ID.String()).
			Str("grant_id", grant.ID.String()).
			Str("user_id", grant.UserID).
			Int64("item_id", grant.ItemID).
			Time("end_at", grant.EndAt).
			Msg("access granted")
	}

	return grant, created, nil
}
