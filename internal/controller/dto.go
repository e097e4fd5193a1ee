package controller

import (
	"time"

	"github.com/cassiomorais/bookaccess/internal/service"
)

// CreatePaymentRequest starts a purchase of time-boxed access to an item.
// A single purchase covers at most ten years.
type CreatePaymentRequest struct {
	ItemID       int64 `json:"item_id" validate:"required,gt=0"`
	DurationDays int   `json:"duration_days" validate:"required,gt=0,lte=3650"`
}

// CheckoutResponse tells the client where to complete payment.
type CheckoutResponse struct {
	TransactionID string  `json:"transaction_id"`
	RedirectURL   string  `json:"redirect_url"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

type AccessResponse struct {
	ItemID    int64 `json:"item_id"`
	HasAccess bool  `json:"has_access"`
}

// TransactionResponse is one row of a user's purchase history.
type TransactionResponse struct {
	TransactionID string     `json:"transaction_id"`
	ItemID        int64      `json:"item_id"`
	ItemTitle     string     `json:"item_title"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	DurationDays  int        `json:"duration_days"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	AccessStart   *time.Time `json:"access_start,omitempty"`
	AccessEnd     *time.Time `json:"access_end,omitempty"`
}

type WebhookResponse struct {
	EventID string `json:"event_id"`
	Outcome string `json:"outcome"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func FromCheckout(res *service.CheckoutResult) *CheckoutResponse {
	return &CheckoutResponse{
		TransactionID: res.TransactionID.String(),
		RedirectURL:   res.RedirectURL,
		Amount:        centsToFloat(res.Amount.ValueCents),
		Currency:      res.Amount.Currency,
	}
}

func FromHistoryEntry(e service.HistoryEntry) *TransactionResponse {
	tx := e.Transaction
	return &TransactionResponse{
		TransactionID: tx.ID.String(),
		ItemID:        tx.ItemID,
		ItemTitle:     e.ItemTitle,
		Amount:        centsToFloat(tx.Amount.ValueCents),
		Currency:      tx.Amount.Currency,
		DurationDays:  tx.DurationDays,
		Status:        string(tx.Status),
		FailureReason: tx.FailureReason,
		CreatedAt:     tx.CreatedAt,
		AccessStart:   e.AccessStart,
		AccessEnd:     e.AccessEnd,
	}
}

// centsToFloat converts cents to a float amount for display.
func centsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}
