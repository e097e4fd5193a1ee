package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/gateway"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/cassiomorais/bookaccess/pkg/saga"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CheckoutConfig holds the settings a checkout needs besides its collaborators.
type CheckoutConfig struct {
	Gateway        string
	Currency       string
	SessionTimeout time.Duration
	// SessionLifetime is how long the hosted checkout stays payable.
	SessionLifetime time.Duration
	// PendingTTL is the age after which an open checkout counts as abandoned
	// and a new one for the same item may replace it. Zero never replaces.
	PendingTTL time.Duration
	SuccessURL string
	CancelURL  string
}

// CheckoutResult is what the buyer needs to continue to the hosted checkout.
type CheckoutResult struct {
	TransactionID uuid.UUID
	RedirectURL   string
	Amount        transaction.Amount
}

// CheckoutService starts purchases: it prices the request, records a pending
// transaction and opens a hosted checkout session for it.
type CheckoutService struct {
	transactions transaction.Repository
	catalog      catalog.Catalog
	access       *AccessService
	ledger       *Ledger
	gateways     *gateway.Factory
	cfg          CheckoutConfig
	clock        Clock
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewCheckoutService(
	transactions transaction.Repository,
	catalog catalog.Catalog,
	access *AccessService,
	ledger *Ledger,
	gateways *gateway.Factory,
	cfg CheckoutConfig,
	clock Clock,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	return &CheckoutService{
		transactions: transactions,
		catalog:      catalog,
		access:       access,
		ledger:       ledger,
		gateways:     gateways,
		cfg:          cfg,
		clock:        clockOrDefault(clock),
		logger:       logger.With().Str("component", "checkout").Logger(),
		metrics:      metrics,
	}
}

// Initiate starts a purchase of durationDays of access to itemID for user.
// On success the transaction is pending and bound to a live session; on a
// gateway failure it is failed with the gateway error as reason.
func (s *CheckoutService) Initiate(ctx context.Context, user identity.User, itemID int64, durationDays int) (*CheckoutResult, error) {
	res, err := s.initiate(ctx, user, itemID, durationDays)
	s.countCheckout(err)
	return res, err
}

func (s *CheckoutService) initiate(ctx context.Context, user identity.User, itemID int64, durationDays int) (*CheckoutResult, error) {
	if durationDays <= 0 {
		return nil, domainErrors.NewValidationError("duration_days", "must be greater than 0")
	}
	if user.ID == "" {
		return nil, domainErrors.ErrUnauthorized
	}

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	active, err := s.access.ActiveGrant(ctx, user.ID, itemID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domainErrors.NewDomainError("active_access",
			fmt.Sprintf("active access exists until %s", active.EndAt.UTC().Format(time.RFC3339)),
			domainErrors.ErrActiveAccessExists)
	}
	if err := s.releaseAbandoned(ctx, user.ID, itemID, now); err != nil {
		return nil, err
	}

	amount, err := transaction.ComputeAmount(item.MonthlyRateCents, durationDays, s.cfg.Currency)
	if err != nil {
		return nil, err
	}
	tx, err := transaction.New(user.ID, user.Email, item.ID, amount, durationDays, now)
	if err != nil {
		return nil, err
	}

	gw, breaker, err := s.gateways.Get(s.cfg.Gateway)
	if err != nil {
		return nil, err
	}

	var session *gateway.Session
	flow := saga.New("checkout").
		AddStep(saga.Step{
			Name: "persist_pending",
			Execute: func(ctx context.Context) error {
				return s.transactions.Create(ctx, tx)
			},
			Compensate: func(ctx context.Context, cause error) error {
				_, err := s.ledger.FailByID(ctx, tx.ID, cause.Error())
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "open_session",
			Execute: func(ctx context.Context) error {
				opened, err := s.openSession(ctx, gw, breaker, gateway.SessionRequest{
					TransactionID: tx.ID,
					UserID:        user.ID,
					CustomerEmail: user.Email,
					ItemID:        item.ID,
					ItemTitle:     item.Title,
					Description:   fmt.Sprintf("Access for %d days", durationDays),
					AmountCents:   amount.ValueCents,
					Currency:      amount.Currency,
					DurationDays:  durationDays,
					SuccessURL:    s.cfg.SuccessURL,
					CancelURL:     s.cfg.CancelURL,
					ExpiresAt:     s.sessionExpiry(now),
				})
				if err != nil {
					return err
				}
				session = opened
				return s.transactions.AttachSession(ctx, tx.WithSession(gw.Name(), opened.ID, opened.URL, s.clock()))
			},
		})

	if failed, err := flow.Execute(ctx); err != nil {
		// Lost the insert race with a concurrent checkout for the same item.
		if failed == 0 && errors.Is(err, domainErrors.ErrConflict) {
			return nil, checkoutInProgress()
		}
		s.logger.Error().Err(err).
			Str("transaction_id", tx.ID.String()).
			Str("user_id", user.ID).
			Int64("item_id", item.ID).
			Msg("checkout failed")
		return nil, err
	}

	s.logger.Info().
		Str("transaction_id", tx.ID.String()).
		Str("session_id", session.ID).
		Str("user_id", user.ID).
		Int64("item_id", item.ID).
		Str("amount", amount.String()).
		Msg("checkout session opened")

	return &CheckoutResult{
		TransactionID: tx.ID,
		RedirectURL:   session.URL,
		Amount:        amount,
	}, nil
}

// releaseAbandoned makes room for a new checkout of itemID. An open checkout
// younger than the pending TTL blocks it; an older one is failed first.
func (s *CheckoutService) releaseAbandoned(ctx context.Context, userID string, itemID int64, now time.Time) error {
	pending, err := s.transactions.GetPending(ctx, userID, itemID)
	if errors.Is(err, domainErrors.ErrTransactionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.cfg.PendingTTL <= 0 || now.Sub(pending.CreatedAt) < s.cfg.PendingTTL {
		return checkoutInProgress()
	}

	res, err := s.ledger.Apply(ctx, pending, transaction.StatusFailed, "abandoned: replaced by a new checkout")
	if err != nil {
		return err
	}
	if res.Transaction.Status == transaction.StatusPaid {
		return domainErrors.NewDomainError("active_access",
			"the previous checkout for this item was just paid", domainErrors.ErrActiveAccessExists)
	}
	s.logger.Info().
		Str("transaction_id", pending.ID.String()).
		Str("user_id", userID).
		Int64("item_id", itemID).
		Msg("abandoned checkout failed")
	return nil
}

func (s *CheckoutService) sessionExpiry(now time.Time) time.Time {
	if s.cfg.SessionLifetime <= 0 {
		return time.Time{}
	}
	return now.Add(s.cfg.SessionLifetime)
}

func checkoutInProgress() error {
	return domainErrors.NewDomainError("checkout_in_progress",
		"a checkout for this item is already in progress", domainErrors.ErrCheckoutInProgress)
}

// openSession calls the gateway under a deadline and its circuit breaker.
func (s *CheckoutService) openSession(
	ctx context.Context,
	gw gateway.Gateway,
	breaker *gobreaker.CircuitBreaker[*gateway.Session],
	req gateway.SessionRequest,
) (*gateway.Session, error) {
	ctx, span := observability.Tracer().Start(ctx, "gateway.create_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.provider", gw.Name()),
		attribute.String("transaction.id", req.TransactionID.String()),
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionTimeout)
	defer cancel()

	start := time.Now()
	session, err := breaker.Execute(func() (*gateway.Session, error) {
		return gw.CreateSession(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domainErrors.NewGatewayError(gw.Name(), "create session",
			fmt.Errorf("%w: circuit %v", domainErrors.ErrGatewayUnavailable, err))
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.metrics != nil {
		s.metrics.GatewayDuration.WithLabelValues(gw.Name(), "create_session", status).Observe(time.Since(start).Seconds())
		s.metrics.CircuitBreakerRequests.WithLabelValues(gw.Name(), status).Inc()
	}
	return session, err
}

func (s *CheckoutService) countCheckout(err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domainErrors.ErrValidationFailed):
		result = "invalid"
	case errors.Is(err, domainErrors.ErrNotFound):
		result = "not_found"
	case errors.Is(err, domainErrors.ErrConflict):
		result = "conflict"
	case errors.Is(err, domainErrors.ErrGateway):
		result = "gateway_error"
	default:
		result = "error"
	}
	s.metrics.CheckoutsTotal.WithLabelValues(result).Inc()
}
