package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/bookaccess/internal/bootstrap"
	"github.com/cassiomorais/bookaccess/internal/controller"
	infraRedis "github.com/cassiomorais/bookaccess/internal/infrastructure/redis"
	"github.com/cassiomorais/bookaccess/internal/middleware"
	"github.com/cassiomorais/bookaccess/internal/repository/postgres"
	"github.com/cassiomorais/bookaccess/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "bookaccess-api", "bookaccess")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	cfg := app.Config

	// --- Repositories ---
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	grantRepo := postgres.NewGrantRepository(app.Pool)
	catalogRepo := postgres.NewCatalogRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	webhookRepo := postgres.NewWebhookEventRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)
	accessCache := infraRedis.NewAccessCache(app.Redis, cfg.Payment.AccessCacheTTL)

	// --- Services ---
	gw := app.Gateway()
	ledger := service.NewLedger(transactionRepo, nil, app.Logger, app.Metrics)
	grantor := service.NewGrantor(grantRepo, outboxRepo, txManager, nil, app.Logger, app.Metrics)
	accessService := service.NewAccessService(grantRepo, accessCache, app.Logger, app.Metrics)
	checkoutService := service.NewCheckoutService(
		transactionRepo, catalogRepo, accessService, ledger,
		app.GatewayFactory(gw),
		service.CheckoutConfig{
			Gateway:         gw.Name(),
			Currency:        cfg.Payment.Currency,
			SessionTimeout:  cfg.Gateway.SessionTimeout,
			SessionLifetime: cfg.Gateway.SessionLifetime,
			PendingTTL:      cfg.Payment.PendingTTL,
			SuccessURL:      cfg.Gateway.SuccessURL(),
			CancelURL:       cfg.Gateway.CancelURL(),
		},
		nil, app.Logger, app.Metrics,
	)
	webhookService := service.NewWebhookService(gw, transactionRepo, webhookRepo, ledger, grantor, txManager, app.Logger, app.Metrics)
	historyService := service.NewHistoryService(transactionRepo, grantRepo, catalogRepo, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Checkout:         checkoutService,
		Access:           accessService,
		History:          historyService,
		Webhooks:         webhookService,
		Resolver:         middleware.NewJWTResolver(cfg.Auth.JWTSecret),
		IdempotencyStore: idempotencyRepo,
		IdempotencyTTL:   cfg.Payment.IdempotencyTTL,
		HealthChecks: []controller.HealthCheck{
			{Name: "database", Ping: app.Pool.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }},
		},
		Logger:      app.Logger,
		Metrics:     app.Metrics,
		ServiceName: "bookaccess-api",
		Server:      cfg.Server,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Str("gateway", gw.Name()).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
