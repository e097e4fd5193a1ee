package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	domainerrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

// Checkout session event types.
const (
	EventSessionCompleted          = "checkout.session.completed"
	EventSessionAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventSessionExpired            = "checkout.session.expired"
	EventSessionAsyncPaymentFailed = "checkout.session.async_payment_failed"
)

// Checkout session payment statuses.
const (
	PaymentStatusPaid              = string(stripe.CheckoutSessionPaymentStatusPaid)
	PaymentStatusUnpaid            = string(stripe.CheckoutSessionPaymentStatusUnpaid)
	PaymentStatusNoPaymentRequired = string(stripe.CheckoutSessionPaymentStatusNoPaymentRequired)
)

// DefaultTolerance bounds how old a signed delivery may be.
const DefaultTolerance = 5 * time.Minute

// KindOf maps a provider event type onto what it means for settlement.
func KindOf(eventType string) webhook.Kind {
	switch eventType {
	case EventSessionCompleted, EventSessionAsyncPaymentOK:
		return webhook.KindCompleted
	case EventSessionExpired:
		return webhook.KindExpired
	case EventSessionAsyncPaymentFailed:
		return webhook.KindFailed
	default:
		return webhook.KindIgnored
	}
}

// kindForSession refines KindOf with the session's payment status. A completed
// session paid by a delayed method reports unpaid; its outcome arrives later
// as an async_payment event.
func kindForSession(eventType, paymentStatus string) webhook.Kind {
	kind := KindOf(eventType)
	if eventType != EventSessionCompleted {
		return kind
	}
	switch paymentStatus {
	case PaymentStatusPaid, PaymentStatusNoPaymentRequired:
		return kind
	default:
		return webhook.KindIgnored
	}
}

// parseSignedEvent verifies a Stripe-Signature header and decodes the
// checkout session carried by the event.
func parseSignedEvent(provider string, payload []byte, header, secret string, tolerance time.Duration) (*webhook.Event, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	ev, err := stripewebhook.ConstructEventWithOptions(payload, header, secret, stripewebhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", domainerrors.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrMalformedEvent, err)
	}

	out := &webhook.Event{
		ID:        ev.ID,
		Provider:  provider,
		Type:      string(ev.Type),
		Kind:      KindOf(string(ev.Type)),
		Payload:   payload,
		CreatedAt: time.Unix(ev.Created, 0).UTC(),
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: event id missing", domainerrors.ErrMalformedEvent)
	}
	if out.Kind == webhook.KindIgnored {
		return out, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data object", domainerrors.ErrMalformedEvent, ev.ID)
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domainerrors.ErrMalformedEvent, ev.ID, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: %s has no session id", domainerrors.ErrMalformedEvent, ev.ID)
	}
	out.SessionID = session.ID
	out.PaymentStatus = string(session.PaymentStatus)
	out.Metadata = session.Metadata
	out.Kind = kindForSession(out.Type, out.PaymentStatus)

	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, stripewebhook.ErrNotSigned) ||
		errors.Is(err, stripewebhook.ErrInvalidHeader) ||
		errors.Is(err, stripewebhook.ErrNoValidSignature) ||
		errors.Is(err, stripewebhook.ErrTooOld)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
