package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureHeader renders a Stripe-Signature value for payload signed at ts.
func SignatureHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// EventPayload builds a checkout session event body in the provider's wire
// shape, with the payment status the provider reports for eventType.
func EventPayload(eventID, eventType, sessionID string, metadata map[string]string) []byte {
	status := PaymentStatusPaid
	if eventType == EventSessionExpired || eventType == EventSessionAsyncPaymentFailed {
		status = PaymentStatusUnpaid
	}
	return SessionEventPayload(eventID, eventType, sessionID, status, metadata)
}

// SessionEventPayload is EventPayload with an explicit payment status.
func SessionEventPayload(eventID, eventType, sessionID, paymentStatus string, metadata map[string]string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-10-16",
		"created":     time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":             sessionID,
				"object":         "checkout.session",
				"metadata":       metadata,
				"payment_status": paymentStatus,
			},
		},
	})
	return body
}
