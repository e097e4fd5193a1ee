package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Notifier      NotifierConfig      `mapstructure:"notifier"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	// WebhookRateLimit is the number of webhook deliveries accepted per minute per IP.
	WebhookRateLimit int `mapstructure:"webhook_rate_limit"`
	// APIRateLimit is the number of authenticated requests accepted per minute per user.
	APIRateLimit int `mapstructure:"api_rate_limit"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// Hosted checkout sessions may live between 30 minutes and 24 hours.
const (
	MinSessionLifetime = 30 * time.Minute
	MaxSessionLifetime = 24 * time.Hour
)

// GatewayConfig selects and configures the hosted checkout provider.
type GatewayConfig struct {
	Provider         string        `mapstructure:"provider"`
	SecretKey        string        `mapstructure:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	SessionTimeout   time.Duration `mapstructure:"session_timeout"`
	SessionLifetime  time.Duration `mapstructure:"session_lifetime"`
	FrontendURL      string        `mapstructure:"frontend_url"`

	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// SuccessURL is where the hosted checkout sends the buyer after paying.
func (c *GatewayConfig) SuccessURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/payment/success"
}

// CancelURL is where the hosted checkout sends the buyer after abandoning.
func (c *GatewayConfig) CancelURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/payment/failure"
}

type PaymentConfig struct {
	Currency       string        `mapstructure:"currency"`
	PendingTTL     time.Duration `mapstructure:"pending_ttl"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	AccessCacheTTL time.Duration `mapstructure:"access_cache_ttl"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize     int           `mapstructure:"sweep_batch_size"`
	ClaimMinIdle       time.Duration `mapstructure:"claim_min_idle"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	OutboxRetention    time.Duration `mapstructure:"outbox_retention"`
}

// NotifierConfig configures purchase confirmations.
type NotifierConfig struct {
	Kind       string        `mapstructure:"kind"`
	SMTPHost   string        `mapstructure:"smtp_host"`
	SMTPPort   int           `mapstructure:"smtp_port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BOOKACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bookaccess")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	switch c.Gateway.Provider {
	case "stripe":
		if c.Gateway.SecretKey == "" {
			errs = append(errs, fmt.Errorf("gateway.secret_key is required for stripe"))
		}
		if c.Gateway.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("gateway.webhook_secret is required for stripe"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("gateway.provider must be stripe or mock, got %q", c.Gateway.Provider))
	}
	if c.Gateway.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.session_timeout must be positive"))
	}
	if c.Gateway.SessionLifetime < MinSessionLifetime || c.Gateway.SessionLifetime > MaxSessionLifetime {
		errs = append(errs, fmt.Errorf("gateway.session_lifetime must be between %s and %s, got %s",
			MinSessionLifetime, MaxSessionLifetime, c.Gateway.SessionLifetime))
	}

	if len(c.Payment.Currency) != 3 {
		errs = append(errs, fmt.Errorf("payment.currency must be an ISO-4217 code, got %q", c.Payment.Currency))
	}
	if c.Payment.PendingTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.pending_ttl must be positive"))
	} else if c.Payment.PendingTTL <= c.Gateway.SessionLifetime {
		// A checkout must not be swept while its session can still be paid.
		errs = append(errs, fmt.Errorf("payment.pending_ttl (%s) must exceed gateway.session_lifetime (%s)",
			c.Payment.PendingTTL, c.Gateway.SessionLifetime))
	}
	if c.Payment.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.lock_ttl must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker.sweep_interval must be positive"))
	}

	switch c.Notifier.Kind {
	case "log":
	case "smtp":
		if c.Notifier.SMTPHost == "" {
			errs = append(errs, fmt.Errorf("notifier.smtp_host is required for smtp"))
		}
		if c.Notifier.From == "" {
			errs = append(errs, fmt.Errorf("notifier.from is required for smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifier.kind must be log or smtp, got %q", c.Notifier.Kind))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Gateway.Provider == "mock" {
			errs = append(errs, fmt.Errorf("gateway.provider mock is not allowed in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.webhook_rate_limit", 600)
	v.SetDefault("server.api_rate_limit", 120)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bookaccess")
	v.SetDefault("database.database", "bookaccess")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	v.SetDefault("gateway.provider", "mock")
	v.SetDefault("gateway.webhook_tolerance", "5m")
	v.SetDefault("gateway.session_timeout", "10s")
	v.SetDefault("gateway.session_lifetime", "1h")
	v.SetDefault("gateway.frontend_url", "http://localhost:3000")
	v.SetDefault("gateway.circuit_breaker_threshold", 5)
	v.SetDefault("gateway.circuit_breaker_timeout", "30s")

	v.SetDefault("payment.currency", "USD")
	v.SetDefault("payment.pending_ttl", "2h")
	v.SetDefault("payment.lock_ttl", "30s")
	v.SetDefault("payment.access_cache_ttl", "5m")
	v.SetDefault("payment.idempotency_ttl", "24h")

	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "settlement-notifiers")
	v.SetDefault("worker.sweep_interval", "5m")
	v.SetDefault("worker.sweep_batch_size", 100)
	v.SetDefault("worker.claim_min_idle", "5m")
	v.SetDefault("worker.cleanup_interval", "1h")
	v.SetDefault("worker.outbox_retention", "168h")

	v.SetDefault("notifier.kind", "log")
	v.SetDefault("notifier.smtp_port", 587)
	v.SetDefault("notifier.max_retries", 3)
	v.SetDefault("notifier.retry_delay", "1s")

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	v.SetDefault("instance_id", "bookaccess-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL renders the connection settings in the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
