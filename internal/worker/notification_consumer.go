package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/bookaccess/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamReader is the consumer-group side of a stream.
type StreamReader interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
}

// EventHandler reacts to one relayed outbox event.
type EventHandler interface {
	Handle(ctx context.Context, eventType string, payload map[string]any) error
}

// NotificationConsumer feeds stream messages to a handler. Every message is
// acked after one handling attempt, failed or not; retries happen inside the
// handler.
type NotificationConsumer struct {
	reader  StreamReader
	handler EventHandler
	stream  string
	minIdle time.Duration
	backoff time.Duration
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewNotificationConsumer(
	reader StreamReader,
	handler EventHandler,
	stream string,
	minIdle time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *NotificationConsumer {
	return &NotificationConsumer{
		reader:  reader,
		handler: handler,
		stream:  stream,
		minIdle: minIdle,
		backoff: time.Second,
		logger:  logger.With().Str("component", "notification_consumer").Logger(),
		metrics: metrics,
	}
}

// Run reads until ctx is done. Messages left unacked by a crashed consumer
// are claimed once at startup.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	if c.minIdle > 0 {
		stale, err := c.reader.ClaimStale(ctx, c.minIdle)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to claim stale messages")
		}
		c.process(ctx, stale)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := c.reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}
		c.process(ctx, messages)
	}
}

func (c *NotificationConsumer) process(ctx context.Context, messages []redis.XMessage) {
	for _, raw := range messages {
		start := time.Now()
		status := "success"

		msg, err := infraRedis.DecodeMessage(raw)
		if err != nil {
			c.logger.Error().Err(err).Str("stream_id", raw.ID).Msg("dropping undecodable message")
			status = "invalid"
		} else if err := c.handler.Handle(ctx, msg.EventType, msg.Payload); err != nil {
			c.logger.Error().Err(err).
				Str("stream_id", raw.ID).
				Str("outbox_id", msg.OutboxID.String()).
				Str("event_type", msg.EventType).
				Msg("notification handling failed")
			status = "failed"
		}

		if err := c.reader.Ack(ctx, raw.ID); err != nil {
			c.logger.Warn().Err(err).Str("stream_id", raw.ID).Msg("failed to ack message")
		}

		if c.metrics != nil {
			c.metrics.WorkerMessagesProcessed.WithLabelValues(c.stream, status).Inc()
			c.metrics.WorkerProcessingDuration.WithLabelValues(c.stream).Observe(time.Since(start).Seconds())
		}
	}
}
