package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per minute per client IP.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return limit(requestsPerMinute, httprate.KeyByIP)
}

// RateLimitByUser limits requests per minute per authenticated user, falling
// back to the client IP. It must run after RequireAuth.
func RateLimitByUser(requestsPerMinute int) func(http.Handler) http.Handler {
	return limit(requestsPerMinute, func(r *http.Request) (string, error) {
		if user, ok := UserFromContext(r.Context()); ok {
			return "user:" + user.ID, nil
		}
		return httprate.KeyByIP(r)
	})
}

func limit(requestsPerMinute int, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "rate limit exceeded",
				"code":  "rate_limit",
			})
		}),
	)
}
