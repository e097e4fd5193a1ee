package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainerrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const ProviderStripe = "stripe"

// StripeGateway opens Stripe Checkout sessions and verifies Stripe webhooks.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	tolerance     time.Duration
}

func NewStripeGateway(secretKey, webhookSecret string, tolerance time.Duration) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
	}
}

func (g *StripeGateway) Name() string { return ProviderStripe }

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := sessionParams(req)
	params.Context = ctx

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, domainerrors.NewGatewayError(ProviderStripe, "create session", classifyStripeError(ctx, err))
	}

	return &Session{
		ID:        s.ID,
		URL:       s.URL,
		ExpiresAt: time.Unix(s.ExpiresAt, 0).UTC(),
	}, nil
}

func sessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.TransactionID.String()),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.ItemTitle),
					Description: stripe.String(req.Description),
				},
			},
		}},
	}
	// Without an explicit expiry Stripe keeps the session payable for 24h.
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	// One session per transaction even if the call is retried.
	params.SetIdempotencyKey(req.TransactionID.String())
	for k, v := range req.Metadata() {
		params.AddMetadata(k, v)
	}
	return params
}

func (g *StripeGateway) ParseEvent(payload []byte, signatureHeader string) (*webhook.Event, error) {
	return parseSignedEvent(ProviderStripe, payload, signatureHeader, g.webhookSecret, g.tolerance)
}

// classifyStripeError separates outages, which should trip the breaker,
// from rejections of this particular request.
func classifyStripeError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domainerrors.ErrGatewayTimeout, err)
	}

	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.HTTPStatusCode >= http.StatusInternalServerError || serr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", domainerrors.ErrGatewayUnavailable, serr.Msg)
		}
		return fmt.Errorf("rejected (%s): %s", serr.Code, serr.Msg)
	}

	return fmt.Errorf("%w: %v", domainerrors.ErrGatewayUnavailable, err)
}
