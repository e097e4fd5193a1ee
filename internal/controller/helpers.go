package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const maxJSONBodySize = 1 << 16

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names so clients see the key they sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Order matters: the first match wins, so specific errors precede the
// sentinels they wrap.
var errorMappings = []errorMapping{
	{domainErrors.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature", "invalid webhook signature"},
	{domainErrors.ErrMalformedEvent, http.StatusBadRequest, "malformed_event", ""},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "unauthorized"},
	{domainErrors.ErrItemNotFound, http.StatusNotFound, "item_not_found", ""},
	{domainErrors.ErrNotFound, http.StatusNotFound, "not_found", ""},
	{domainErrors.ErrActiveAccessExists, http.StatusConflict, "active_access", ""},
	{domainErrors.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress", ""},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition", ""},
	{domainErrors.ErrConflict, http.StatusConflict, "conflict", ""},
	{domainErrors.ErrGatewayNotFound, http.StatusInternalServerError, "internal_error", "internal server error"},
	{domainErrors.ErrGateway, http.StatusBadGateway, "gateway_error", "payment gateway unavailable, please retry"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Field = validationErr.Field
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.message != "" {
				resp.Error = m.message
			}
			if m.status >= http.StatusInternalServerError {
				log.Error().Err(err).Str("code", m.code).Msg("request failed")
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBodySize))
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
