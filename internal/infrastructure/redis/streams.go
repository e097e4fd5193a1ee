package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NotificationStream carries settlement events from the outbox to notifiers.
const NotificationStream = "settlements:notifications"

// StreamMessage is an outbox entry as read back from a stream.
type StreamMessage struct {
	StreamID    string
	OutboxID    uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     map[string]any
}

type StreamProducer struct {
	client redis.Cmdable
	stream string
}

func NewStreamProducer(client redis.Cmdable, stream string) *StreamProducer {
	return &StreamProducer{client: client, stream: stream}
}

// Publish appends an outbox entry to the stream.
func (p *StreamProducer) Publish(ctx context.Context, entry *outbox.Entry) error {
	values, err := EncodeEntry(entry)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: p.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", entry.EventType, p.stream, err)
	}
	return nil
}

// EncodeEntry flattens an outbox entry into stream field values.
func EncodeEntry(entry *outbox.Entry) (map[string]any, error) {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	return map[string]any{
		"outbox_id":    entry.ID.String(),
		"event_type":   entry.EventType,
		"aggregate_id": entry.AggregateID.String(),
		"payload":      string(payload),
		"timestamp":    time.Now().Unix(),
	}, nil
}

// DecodeMessage is the inverse of EncodeEntry.
func DecodeMessage(msg redis.XMessage) (*StreamMessage, error) {
	str := func(k string) (string, error) {
		v, ok := msg.Values[k].(string)
		if !ok {
			return "", fmt.Errorf("stream message %s: missing field %q", msg.ID, k)
		}
		return v, nil
	}

	outboxID, err := str("outbox_id")
	if err != nil {
		return nil, err
	}
	eventType, err := str("event_type")
	if err != nil {
		return nil, err
	}
	aggregateID, err := str("aggregate_id")
	if err != nil {
		return nil, err
	}
	raw, err := str("payload")
	if err != nil {
		return nil, err
	}

	out := &StreamMessage{StreamID: msg.ID, EventType: eventType}
	if out.OutboxID, err = uuid.Parse(outboxID); err != nil {
		return nil, fmt.Errorf("stream message %s: bad outbox_id: %w", msg.ID, err)
	}
	if out.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("stream message %s: bad aggregate_id: %w", msg.ID, err)
	}
	if err := json.Unmarshal([]byte(raw), &out.Payload); err != nil {
		return nil, fmt.Errorf("stream message %s: bad payload: %w", msg.ID, err)
	}
	return out, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer read but never acked.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return messages, nil
}
