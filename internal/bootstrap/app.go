package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cassiomorais/bookaccess/internal/gateway"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/config"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/bookaccess/internal/infrastructure/redis"
	"github.com/cassiomorais/bookaccess/internal/notify"
	"github.com/cassiomorais/bookaccess/internal/repository/postgres"
	"github.com/cassiomorais/bookaccess/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	shutdownTracer func(context.Context) error
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.ServiceLogger(
		observability.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout),
		serviceName, cfg.InstanceID,
	)
	logger.Info().Msg("Starting")

	shutdownTracer, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint, cfg.Observability.EnableTracing)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		shutdownTracer = func(context.Context) error { return nil }
	} else if cfg.Observability.EnableTracing {
		logger.Info().Msg("Tracing enabled")
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		Redis:          redisClient,
		Metrics:        metrics,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Gateway builds the configured checkout provider.
func (a *App) Gateway() gateway.Gateway {
	gw := a.Config.Gateway
	if gw.Provider == gateway.ProviderStripe {
		return gateway.NewStripeGateway(gw.SecretKey, gw.WebhookSecret, gw.WebhookTolerance)
	}
	a.Logger.Warn().Msg("Using the mock checkout gateway")
	return gateway.NewMockGateway(gw.WebhookSecret,
		gateway.WithBaseURL(strings.TrimRight(gw.FrontendURL, "/")+"/mock-checkout"))
}

// GatewayFactory registers gw behind a circuit breaker whose state is exported as a gauge.
func (a *App) GatewayFactory(gw gateway.Gateway) *gateway.Factory {
	return gateway.NewFactory(gateway.BreakerSettings{
		ConsecutiveFailures: uint32(a.Config.Gateway.CircuitBreakerThreshold),
		OpenTimeout:         a.Config.Gateway.CircuitBreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.Logger.Warn().
				Str("gateway", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			a.Metrics.CircuitBreakerState.WithLabelValues(name).Set(gateway.BreakerStateValue(to))
		},
	}, gw)
}

// Notifier builds the configured confirmation sender.
func (a *App) Notifier() notify.Notifier {
	n := a.Config.Notifier
	if n.Kind == "smtp" {
		return notify.NewSMTPNotifier(n.SMTPHost, n.SMTPPort, n.Username, n.Password, n.From)
	}
	return notify.NewLogNotifier(a.Logger)
}

// NotifierRetry is the backoff used for confirmation delivery.
func (a *App) NotifierRetry() retry.Config {
	n := a.Config.Notifier
	cfg := retry.DefaultConfig()
	if n.MaxRetries > 0 {
		cfg.MaxAttempts = uint(n.MaxRetries)
	}
	if n.RetryDelay > 0 {
		cfg.InitialDelay = n.RetryDelay
		cfg.MaxDelay = 10 * n.RetryDelay
	}
	cfg.OnRetry = func(attempt uint, err error) {
		a.Logger.Warn().Err(err).Uint("attempt", attempt).Msg("Retrying notification")
	}
	return cfg
}

func (a *App) Close(ctx context.Context) {
	if err := a.shutdownTracer(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	a.Redis.Close()
	a.Pool.Close()
}
