package service

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/cassiomorais/bookaccess/internal/gateway"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookResult reports what a delivery did.
type WebhookResult struct {
	EventID       string
	EventType     string
	Outcome       webhook.Outcome
	TransactionID uuid.UUID
}

// WebhookService turns verified gateway notifications into ledger
// transitions and grants. Deliveries may repeat, arrive out of order or race
// each other; every path through Handle is safe to replay.
type WebhookService struct {
	gateway      gateway.Gateway
	transactions transaction.Repository
	events       webhook.Repository
	ledger       *Ledger
	grantor      *Grantor
	txManager    TransactionManager
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewWebhookService(
	gw gateway.Gateway,
	transactions transaction.Repository,
	events webhook.Repository,
	ledger *Ledger,
	grantor *Grantor,
	txManager TransactionManager,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *WebhookService {
	return &WebhookService{
		gateway:      gw,
		transactions: transactions,
		events:       events,
		ledger:       ledger,
		grantor:      grantor,
		txManager:    txManager,
		logger:       logger.With().Str("component", "webhook").Logger(),
		metrics:      metrics,
	}
}

// Handle verifies payload against signatureHeader and applies the event.
// Signature failures touch nothing. The audit row, the transition, the grant
// and its outbox entry commit together or not at all.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	ev, err := s.gateway.ParseEvent(payload, signatureHeader)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rejected webhook delivery")
		return nil, err
	}

	log := s.logger.With().
		Str("event_id", ev.ID).
		Str("event_type", ev.Type).
		Str("session_id", ev.SessionID).
		Logger()

	result := &WebhookResult{EventID: ev.ID, EventType: ev.Type}

	if ev.Kind == webhook.KindIgnored {
		log.Info().Str("payment_status", ev.PaymentStatus).Msg("webhook event needs no settlement")
		result.Outcome = webhook.OutcomeIgnored
		if _, err := s.events.Record(ctx, webhook.NewRecord(ev, webhook.OutcomeIgnored)); err != nil {
			log.Warn().Err(err).Msg("failed to record ignored webhook event")
		}
		s.count(result)
		return result, nil
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rec := webhook.NewRecord(ev, webhook.OutcomeReceived)
		fresh, err := s.events.Record(txCtx, rec)
		if err != nil {
			return err
		}
		if !fresh {
			result.Outcome = webhook.OutcomeNoop
			return nil
		}

		tx, err := s.transactions.GetBySessionID(txCtx, ev.SessionID)
		if err != nil {
			return fmt.Errorf("session %s: %w", ev.SessionID, err)
		}
		result.TransactionID = tx.ID

		if err := checkMetadata(ev, tx); err != nil {
			return err
		}

		outcome, err := s.apply(txCtx, ev, tx)
		if err != nil {
			return err
		}
		result.Outcome = outcome
		return s.events.SetOutcome(txCtx, rec.ID, outcome)
	})
	if err != nil {
		log.Error().Err(err).Msg("webhook processing failed")
		return nil, err
	}

	log.Info().
		Str("outcome", string(result.Outcome)).
		Str("transaction_id", result.TransactionID.String()).
		Msg("webhook processed")
	s.count(result)
	return result, nil
}

func (s *WebhookService) apply(ctx context.Context, ev *webhook.Event, tx *transaction.Transaction) (webhook.Outcome, error) {
	switch ev.Kind {
	case webhook.KindCompleted:
		res, err := s.ledger.Apply(ctx, tx, transaction.StatusPaid, "")
		if err != nil {
			return "", err
		}
		if res.Transaction.Status != transaction.StatusPaid {
			return webhook.OutcomeNoop, nil
		}
		// Also on replays: a paid transaction always ends up with its grant.
		if _, _, err := s.grantor.OnSettled(ctx, res.Transaction); err != nil {
			return "", err
		}
		if !res.Changed {
			return webhook.OutcomeNoop, nil
		}
		return webhook.OutcomeSettled, nil

	case webhook.KindExpired, webhook.KindFailed:
		reason := "checkout session expired"
		if ev.Kind == webhook.KindFailed {
			reason = "asynchronous payment failed"
		}
		res, err := s.ledger.Apply(ctx, tx, transaction.StatusFailed, reason)
		if err != nil {
			return "", err
		}
		if !res.Changed {
			return webhook.OutcomeNoop, nil
		}
		return webhook.OutcomeFailed, nil
	}

	return webhook.OutcomeIgnored, nil
}

// checkMetadata rejects events whose echoed transaction id disagrees with
// the transaction bound to the session.
func checkMetadata(ev *webhook.Event, tx *transaction.Transaction) error {
	claimed, ok := ev.Metadata[gateway.MetaTransactionID]
	if !ok || claimed == "" || claimed == tx.ID.String() {
		return nil
	}
	return fmt.Errorf("%w: %w", domainErrors.ErrMetadataMismatch,
		domainErrors.NewValidationError("metadata."+gateway.MetaTransactionID,
			fmt.Sprintf("event names %s but session %s belongs to %s", claimed, ev.SessionID, tx.ID)))
}

func (s *WebhookService) count(r *WebhookResult) {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(r.EventType, string(r.Outcome)).Inc()
	}
}
