package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/catalog"
	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/outbox"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/cassiomorais/bookaccess/internal/notify"
	"github.com/cassiomorais/bookaccess/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConfirmationSubject is the subject line of purchase confirmations.
const ConfirmationSubject = "Payment Confirmation for Book Access"

const dateLayout = "2006-01-02"

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px; }
    .email-container { max-width: 600px; margin: auto; background-color: #ffffff; padding: 30px; border: 1px solid #ddd; }
  </style>
</head>
<body>
  <div class="email-container">
    <p>Hello {{.Recipient}},</p>
    <p>Your payment was processed and your access is active.</p>
    <h3>Order summary</h3>
    <ul>
      <li>Publication: {{.Title}}</li>
      <li>Transaction reference: {{.TransactionID}}</li>
      <li>Amount: {{.Amount}}</li>
      <li>Processed on: {{.ProcessedOn}}</li>
    </ul>
    <h3>Access details</h3>
    <ul>
      <li>Access period: {{.DurationDays}} days</li>
      <li>Start date: {{.StartDate}}</li>
      <li>Expiration date: {{.EndDate}}</li>
    </ul>
    <p>Read it any time at <a href="{{.FrontendURL}}">{{.FrontendURL}}</a>.</p>
  </div>
</body>
</html>
`))

type confirmationView struct {
	Recipient     string
	Title         string
	TransactionID string
	Amount        string
	ProcessedOn   string
	DurationDays  int
	StartDate     string
	EndDate       string
	FrontendURL   string
}

// NotificationService sends the confirmation for each settlement.completed
// event. Delivery is best effort: it never affects settlement.
type NotificationService struct {
	transactions transaction.Repository
	grants       entitlement.Repository
	catalog      catalog.Catalog
	notifier     notify.Notifier
	frontendURL  string
	retry        retry.Config
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewNotificationService(
	transactions transaction.Repository,
	grants entitlement.Repository,
	catalog catalog.Catalog,
	notifier notify.Notifier,
	frontendURL string,
	retryCfg retry.Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *NotificationService {
	return &NotificationService{
		transactions: transactions,
		grants:       grants,
		catalog:      catalog,
		notifier:     notifier,
		frontendURL:  frontendURL,
		retry:        retryCfg,
		logger:       logger.With().Str("component", "notifications").Logger(),
		metrics:      metrics,
	}
}

// Handle processes one outbox event. Unknown event types are skipped.
func (s *NotificationService) Handle(ctx context.Context, eventType string, payload map[string]any) error {
	if eventType != outbox.EventSettlementCompleted {
		s.logger.Debug().Str("event_type", eventType).Msg("no notification for event type")
		return nil
	}

	raw, _ := payload["transaction_id"].(string)
	txID, err := uuid.Parse(raw)
	if err != nil {
		return domainErrors.NewValidationError("transaction_id", fmt.Sprintf("invalid value %q", raw))
	}

	msg, err := s.Compose(ctx, txID)
	if err != nil {
		s.count("error")
		return err
	}

	cfg := s.retry
	cfg.OnRetry = func(attempt uint, err error) {
		s.logger.Warn().Err(err).Uint("attempt", attempt).Str("transaction_id", txID.String()).Msg("notification retry")
	}
	err = retry.Do(ctx, cfg, func() error {
		err := s.notifier.Send(ctx, msg)
		if errors.Is(err, notify.ErrNoRecipient) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.count("failed")
		s.logger.Error().Err(err).Str("transaction_id", txID.String()).Msg("failed to send payment confirmation")
		return err
	}

	s.count("sent")
	s.logger.Info().Str("transaction_id", txID.String()).Str("to", msg.To).Msg("payment confirmation sent")
	return nil
}

// Compose renders the confirmation for a paid transaction and its grant.
func (s *NotificationService) Compose(ctx context.Context, txID uuid.UUID) (notify.Message, error) {
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		return notify.Message{}, err
	}
	grant, err := s.grants.GetByTransactionID(ctx, txID)
	if err != nil {
		return notify.Message{}, err
	}
	item, err := s.catalog.GetItem(ctx, tx.ItemID)
	if err != nil {
		return notify.Message{}, err
	}

	processed := tx.UpdatedAt
	if tx.SettledAt != nil {
		processed = *tx.SettledAt
	}

	var body bytes.Buffer
	err = confirmationTemplate.Execute(&body, confirmationView{
		Recipient:     tx.CustomerEmail,
		Title:         item.Title,
		TransactionID: tx.ID.String(),
		Amount:        tx.Amount.String(),
		ProcessedOn:   formatDate(processed),
		DurationDays:  grant.DurationDays,
		StartDate:     formatDate(grant.StartAt),
		EndDate:       formatDate(grant.EndAt),
		FrontendURL:   s.frontendURL,
	})
	if err != nil {
		return notify.Message{}, fmt.Errorf("render confirmation: %w", err)
	}

	return notify.Message{
		To:       tx.CustomerEmail,
		Subject:  ConfirmationSubject,
		HTMLBody: body.String(),
	}, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func (s *NotificationService) count(result string) {
	if s.metrics != nil {
		s.metrics.NotificationsTotal.WithLabelValues(s.notifier.Name(), result).Inc()
	}
}
