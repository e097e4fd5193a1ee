package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cassiomorais/bookaccess/internal/domain/webhook"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookEventRepository keeps one audit row per provider event id.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

func (r *WebhookEventRepository) Record(ctx context.Context, rec *webhook.Record) (bool, error) {
	payload := rec.Payload
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(rec.Payload))
	}

	tag, err := ConnFromCtx(ctx, r.pool).Exec(ctx,
		`INSERT INTO webhook_events (id, provider, provider_event_id, event_type, session_id, outcome, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		rec.ID, rec.Provider, rec.ProviderEventID, rec.EventType, nullIfEmpty(rec.SessionID),
		string(rec.Outcome), payload, rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *WebhookEventRepository) SetOutcome(ctx context.Context, id uuid.UUID, outcome webhook.Outcome) error {
	_, err := ConnFromCtx(ctx, r.pool).Exec(ctx,
		`UPDATE webhook_events SET outcome = $1 WHERE id = $2`, string(outcome), id)
	if err != nil {
		return fmt.Errorf("set webhook event outcome: %w", err)
	}
	return nil
}
