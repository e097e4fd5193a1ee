package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, AccessResponse{ItemID: 7, HasAccess: true})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"item_id":7,"has_access":true}`, w.Body.String())
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("duration_days", "must be greater than 0"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Equal(t, "duration_days", resp.Field)
}

func TestWriteError_Mappings(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"invalid signature", fmt.Errorf("%w: no valid signature", domainErrors.ErrInvalidSignature), http.StatusBadRequest, "invalid_signature"},
		{"malformed event", domainErrors.ErrMalformedEvent, http.StatusBadRequest, "malformed_event"},
		{"metadata mismatch", fmt.Errorf("%w: %w", domainErrors.ErrMetadataMismatch, domainErrors.NewValidationError("metadata.user_id", "does not match")), http.StatusBadRequest, "validation_error"},
		{"unauthorized", domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"item not found", domainErrors.ErrItemNotFound, http.StatusNotFound, "item_not_found"},
		{"unknown session", fmt.Errorf("lookup session cs_1: %w", domainErrors.ErrTransactionNotFound), http.StatusNotFound, "not_found"},
		{"active access", domainErrors.NewDomainError("active_access", "active access exists", domainErrors.ErrActiveAccessExists), http.StatusConflict, "active_access"},
		{"checkout in progress", domainErrors.NewDomainError("checkout_in_progress", "a checkout for this item is already in progress", domainErrors.ErrCheckoutInProgress), http.StatusConflict, "checkout_in_progress"},
		{"invalid transition", domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
		{"gateway", domainErrors.NewGatewayError("stripe", "create session", errors.New("api_key invalid")), http.StatusBadGateway, "gateway_error"},
		{"gateway not registered", domainErrors.ErrGatewayNotFound, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
		})
	}
}

func TestWriteError_GatewayDetailsAreHidden(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewGatewayError("stripe", "create session", errors.New("sk_live_abc rejected")))

	assert.NotContains(t, w.Body.String(), "sk_live_abc")
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("custom_error", "custom error message", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "custom_error", resp.Code)
	assert.Equal(t, "custom error message", resp.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("unexpected error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "internal_error", resp.Code)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"valid", `{"item_id":1,"duration_days":10}`, ""},
		{"invalid json", `{invalid json}`, "body"},
		{"empty body", ``, "body"},
		{"zero duration", `{"item_id":1,"duration_days":0}`, "duration_days"},
		{"negative duration", `{"item_id":1,"duration_days":-3}`, "duration_days"},
		{"too long", `{"item_id":1,"duration_days":3651}`, "duration_days"},
		{"missing item", `{"duration_days":10}`, "item_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(tt.body))
			var dst CreatePaymentRequest
			err := decodeAndValidate(req, &dst)

			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, CreatePaymentRequest{ItemID: 1, DurationDays: 10}, dst)
				return
			}
			var ve *domainErrors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}
