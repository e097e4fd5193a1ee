package controller

import (
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/identity"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/config"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/bookaccess/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Checkout Checkouter
	Access   AccessChecker
	History  HistoryLister
	Webhooks WebhookProcessor
	Resolver identity.Resolver

	IdempotencyStore customMW.IdempotencyStore
	IdempotencyTTL   time.Duration
	HealthChecks     []HealthCheck

	Logger      zerolog.Logger
	Metrics     *observability.Metrics
	ServiceName string
	Server      config.ServerConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.HealthChecks...)
	paymentH := NewPaymentController(deps.Checkout, deps.Access, deps.History)
	webhookH := NewWebhookController(deps.Webhooks)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// The gateway authenticates by signature, not bearer token, and sends no CORS preflight.
	r.With(customMW.RateLimit(rateOrDefault(deps.Server.WebhookRateLimit, 600))).
		Post("/webhook/payment", webhookH.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Idempotency-Replayed"},
			AllowCredentials: deps.Server.CORS.AllowCredentials,
			MaxAge:           300,
		}))
		r.Use(customMW.RequireAuth(deps.Resolver))
		r.Use(customMW.RateLimitByUser(rateOrDefault(deps.Server.APIRateLimit, 120)))

		checkout := r.With()
		if deps.IdempotencyStore != nil {
			checkout = r.With(customMW.Idempotency(deps.IdempotencyStore, deps.IdempotencyTTL))
		}
		checkout.Post("/payments", paymentH.Initiate)
		r.Get("/payments/access/{itemId}", paymentH.CheckAccess)
		r.Get("/payments/transactions", paymentH.ListTransactions)
	})

	return r
}

func rateOrDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
