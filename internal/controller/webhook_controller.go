package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cassiomorais/bookaccess/internal/service"
)

// StripeSignatureHeader carries the gateway's signature over the raw body.
const StripeSignatureHeader = "Stripe-Signature"

// Gateways sign deliveries up to 64KiB.
const maxWebhookBodySize = 1 << 16

// WebhookProcessor settles transactions from gateway notifications.
type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*service.WebhookResult, error)
}

type WebhookController struct {
	webhooks WebhookProcessor
}

func NewWebhookController(webhooks WebhookProcessor) *WebhookController {
	return &WebhookController{webhooks: webhooks}
}

// Handle handles POST /webhook/payment. Any non-2xx response makes the
// gateway redeliver, so duplicates and no-ops answer 200.
func (h *WebhookController) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large", Code: "payload_too_large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "invalid_body"})
		return
	}

	res, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get(StripeSignatureHeader))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{EventID: res.EventID, Outcome: string(res.Outcome)})
}
