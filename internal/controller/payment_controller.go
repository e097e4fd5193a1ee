package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/middleware"
	"github.com/cassiomorais/bookaccess/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = transaction.DefaultPageSize
	maxPageSize     = transaction.MaxPageSize
)

// Checkouter starts purchases.
type Checkouter interface {
	Initiate(ctx context.Context, user identity.User, itemID int64, durationDays int) (*service.CheckoutResult, error)
}

// AccessChecker answers access queries.
type AccessChecker interface {
	HasActiveAccess(ctx context.Context, userID string, itemID int64, now time.Time) (bool, error)
}

// HistoryLister lists a user's purchases.
type HistoryLister interface {
	List(ctx context.Context, userID string, filter transaction.ListFilter) ([]service.HistoryEntry, error)
}

// PaymentController handles the authenticated purchase endpoints.
type PaymentController struct {
	checkout Checkouter
	access   AccessChecker
	history  HistoryLister
	now      func() time.Time
}

func NewPaymentController(checkout Checkouter, access AccessChecker, history HistoryLister) *PaymentController {
	return &PaymentController{
		checkout: checkout,
		access:   access,
		history:  history,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Initiate handles POST /api/v1/payments
func (h *PaymentController) Initiate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.checkout.Initiate(r.Context(), user, req.ItemID, req.DurationDays)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromCheckout(res))
}

// CheckAccess handles GET /api/v1/payments/access/{itemId}
func (h *PaymentController) CheckAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid item id", Code: "invalid_id"})
		return
	}

	has, err := h.access.HasActiveAccess(r.Context(), user.ID, itemID, h.now())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AccessResponse{ItemID: itemID, HasAccess: has})
}

// ListTransactions handles GET /api/v1/payments/transactions
func (h *PaymentController) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.history.List(r.Context(), user.ID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*TransactionResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, FromHistoryEntry(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListFilter(r *http.Request) (transaction.ListFilter, error) {
	q := r.URL.Query()
	filter := transaction.ListFilter{Limit: defaultPageSize}

	if s := q.Get("status"); s != "" {
		status := transaction.Status(s)
		if !status.Valid() {
			return filter, domainErrors.NewValidationError("status", "must be one of pending, paid, failed")
		}
		filter.Status = &status
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return filter, domainErrors.NewValidationError("limit", "must be a positive integer")
		}
		filter.Limit = min(n, maxPageSize)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return filter, domainErrors.NewValidationError("offset", "must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}
