package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/cassiomorais/bookaccess/internal/middleware"
	"github.com/cassiomorais/bookaccess/internal/service"
	"github.com/cassiomorais/bookaccess/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCheckout struct {
	got struct {
		user identity.User
		item int64
		days int
	}
	res *service.CheckoutResult
	err error
}

func (s *stubCheckout) Initiate(ctx context.Context, user identity.User, itemID int64, days int) (*service.CheckoutResult, error) {
	s.got.user, s.got.item, s.got.days = user, itemID, days
	return s.res, s.err
}

type stubAccess struct {
	has    bool
	err    error
	userID string
	itemID int64
}

func (s *stubAccess) HasActiveAccess(ctx context.Context, userID string, itemID int64, now time.Time) (bool, error) {
	s.userID, s.itemID = userID, itemID
	return s.has, s.err
}

type stubHistory struct {
	entries []service.HistoryEntry
	filter  transaction.ListFilter
}

func (s *stubHistory) List(ctx context.Context, userID string, filter transaction.ListFilter) ([]service.HistoryEntry, error) {
	s.filter = filter
	return s.entries, nil
}

// serve routes req through a chi mux so URL params resolve, as the caller user.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request, user *identity.User) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), *user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func reader() *identity.User {
	u := testutil.NewTestUser("reader-1")
	return &u
}

func TestPaymentController_Initiate(t *testing.T) {
	txID := uuid.New()
	checkout := &stubCheckout{res: &service.CheckoutResult{
		TransactionID: txID,
		RedirectURL:   "https://checkout.example.com/cs_1",
		Amount:        transaction.Amount{ValueCents: 10_00, Currency: "USD"},
	}}
	h := NewPaymentController(checkout, &stubAccess{}, &stubHistory{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"item_id":1,"duration_days":10}`))
	w := serve(http.MethodPost, "/api/v1/payments", h.Initiate, req, reader())

	require.Equal(t, http.StatusCreated, w.Code)
	var resp CheckoutResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, txID.String(), resp.TransactionID)
	assert.Equal(t, "https://checkout.example.com/cs_1", resp.RedirectURL)
	assert.Equal(t, 10.0, resp.Amount)
	assert.Equal(t, "reader-1", checkout.got.user.ID)
	assert.Equal(t, int64(1), checkout.got.item)
	assert.Equal(t, 10, checkout.got.days)
}

func TestPaymentController_InitiateErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		user       *identity.User
		err        error
		wantStatus int
	}{
		{"no user", `{"item_id":1,"duration_days":10}`, nil, nil, http.StatusUnauthorized},
		{"zero duration", `{"item_id":1,"duration_days":0}`, reader(), nil, http.StatusBadRequest},
		{"unknown item", `{"item_id":9,"duration_days":10}`, reader(), domainErrors.ErrItemNotFound, http.StatusNotFound},
		{"active access", `{"item_id":1,"duration_days":10}`, reader(),
			domainErrors.NewDomainError("active_access", "active access exists", domainErrors.ErrActiveAccessExists), http.StatusConflict},
		{"gateway down", `{"item_id":1,"duration_days":10}`, reader(),
			domainErrors.NewGatewayError("mock", "create session", domainErrors.ErrGatewayUnavailable), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPaymentController(&stubCheckout{err: tt.err}, &stubAccess{}, &stubHistory{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(tt.body))
			w := serve(http.MethodPost, "/api/v1/payments", h.Initiate, req, tt.user)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestPaymentController_CheckAccess(t *testing.T) {
	access := &stubAccess{has: true}
	h := NewPaymentController(&stubCheckout{}, access, &stubHistory{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/access/42", nil)
	w := serve(http.MethodGet, "/api/v1/payments/access/{itemId}", h.CheckAccess, req, reader())

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"item_id":42,"has_access":true}`, w.Body.String())
	assert.Equal(t, "reader-1", access.userID)
	assert.Equal(t, int64(42), access.itemID)
}

func TestPaymentController_CheckAccessErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{"non numeric id", "/api/v1/payments/access/abc", nil, http.StatusBadRequest},
		{"negative id", "/api/v1/payments/access/-1", nil, http.StatusBadRequest},
		{"database down", "/api/v1/payments/access/1", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPaymentController(&stubCheckout{}, &stubAccess{err: tt.err}, &stubHistory{})
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := serve(http.MethodGet, "/api/v1/payments/access/{itemId}", h.CheckAccess, req, reader())
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestPaymentController_ListTransactions(t *testing.T) {
	tx := testutil.NewTestTransaction("reader-1", 1, 10_00, 10, "cs_1")
	start := testutil.FixedNow
	end := start.AddDate(0, 0, 10)
	history := &stubHistory{entries: []service.HistoryEntry{{
		Transaction: tx,
		ItemTitle:   "The Go Programming Language",
		AccessStart: &start,
		AccessEnd:   &end,
	}}}
	h := NewPaymentController(&stubCheckout{}, &stubAccess{}, history)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/transactions?status=pending&limit=500&offset=5", nil)
	w := serve(http.MethodGet, "/api/v1/payments/transactions", h.ListTransactions, req, reader())

	require.Equal(t, http.StatusOK, w.Code)
	var resp []TransactionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, tx.ID.String(), resp[0].TransactionID)
	assert.Equal(t, "The Go Programming Language", resp[0].ItemTitle)
	assert.Equal(t, 10.0, resp[0].Amount)
	assert.Equal(t, "pending", resp[0].Status)
	require.NotNil(t, resp[0].AccessEnd)
	assert.True(t, end.Equal(*resp[0].AccessEnd))

	require.NotNil(t, history.filter.Status)
	assert.Equal(t, transaction.StatusPending, *history.filter.Status)
	assert.Equal(t, maxPageSize, history.filter.Limit)
	assert.Equal(t, 5, history.filter.Offset)
}

func TestPaymentController_ListTransactionsBadFilter(t *testing.T) {
	h := NewPaymentController(&stubCheckout{}, &stubAccess{}, &stubHistory{})

	for _, q := range []string{"status=refunded", "limit=0", "offset=-1", "limit=abc"} {
		t.Run(q, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/transactions?"+q, nil)
			w := serve(http.MethodGet, "/api/v1/payments/transactions", h.ListTransactions, req, reader())
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPaymentController_ListTransactionsEmpty(t *testing.T) {
	h := NewPaymentController(&stubCheckout{}, &stubAccess{}, &stubHistory{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/transactions", nil)
	w := serve(http.MethodGet, "/api/v1/payments/transactions", h.ListTransactions, req, reader())

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}
