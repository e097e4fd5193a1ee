package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/bookaccess/internal/bootstrap"
	infraRedis "github.com/cassiomorais/bookaccess/internal/infrastructure/redis"
	"github.com/cassiomorais/bookaccess/internal/repository/postgres"
	"github.com/cassiomorais/bookaccess/internal/service"
	"github.com/cassiomorais/bookaccess/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "bookaccess-worker", "bookaccess_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	cfg := app.Config
	workerCfg := cfg.Worker

	// --- Repositories ---
	transactionRepo := postgres.NewTransactionRepository(app.Pool)
	grantRepo := postgres.NewGrantRepository(app.Pool)
	catalogRepo := postgres.NewCatalogRepository(app.Pool)
	outboxRepo := postgres.NewOutboxRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Outbox relay ---
	relay := worker.NewOutboxRelay(
		txManager, outboxRepo,
		infraRedis.NewStreamProducer(app.Redis, infraRedis.NotificationStream),
		infraRedis.NotificationStream,
		int(workerCfg.BatchSize),
		app.Logger, app.Metrics,
	)

	// --- Notification consumer ---
	stream := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.NotificationStream,
		workerCfg.ConsumerGroup,
		cfg.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := stream.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}
	notifications := service.NewNotificationService(
		transactionRepo, grantRepo, catalogRepo,
		app.Notifier(),
		cfg.Gateway.FrontendURL,
		app.NotifierRetry(),
		app.Logger, app.Metrics,
	)
	consumer := worker.NewNotificationConsumer(
		stream, notifications, infraRedis.NotificationStream,
		workerCfg.ClaimMinIdle, app.Logger, app.Metrics,
	)

	// --- Stale pending sweep ---
	ledger := service.NewLedger(transactionRepo, nil, app.Logger, app.Metrics)
	reconciler := service.NewReconciler(
		transactionRepo, ledger,
		func(name string) service.Locker {
			return infraRedis.NewDistributedLock(app.Redis, infraRedis.LockKey(name), cfg.Payment.LockTTL)
		},
		service.ReconcilerConfig{
			PendingTTL: cfg.Payment.PendingTTL,
			BatchSize:  workerCfg.SweepBatchSize,
		},
		nil, app.Logger, app.Metrics,
	)

	janitor := worker.NewJanitor(outboxRepo, idempotencyRepo, workerCfg.OutboxRetention, app.Logger)

	app.Logger.Info().
		Str("stream", infraRedis.NotificationStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", cfg.InstanceID).
		Msg("Worker started")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gCtx, workerCfg.OutboxPollInterval) })
	g.Go(func() error { return consumer.Run(gCtx) })
	g.Go(func() error { return reconciler.Run(gCtx, workerCfg.SweepInterval) })
	g.Go(func() error { return janitor.Run(gCtx, workerCfg.CleanupInterval) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
