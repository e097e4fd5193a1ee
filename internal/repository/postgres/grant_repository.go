package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const grantColumns = `id, user_id, item_id, transaction_id, duration_days, start_at, end_at, created_at`

// GrantRepository implements entitlement.Repository using PostgreSQL.
type GrantRepository struct {
	pool *pgxpool.Pool
}

func NewGrantRepository(pool *pgxpool.Pool) *GrantRepository {
	return &GrantRepository{pool: pool}
}

func (r *GrantRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// CreateIfAbsent relies on the unique transaction_id constraint: a losing
// concurrent insert affects no row and the winner's grant is read back.
func (r *GrantRepository) CreateIfAbsent(ctx context.Context, g *entitlement.Grant) (*entitlement.Grant, bool, error) {
	created, err := scanGrant(r.db(ctx).QueryRow(ctx,
		`INSERT INTO access_grants (`+grantColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (transaction_id) DO NOTHING
		 RETURNING `+grantColumns,
		g.ID, g.UserID, g.ItemID, g.TransactionID, g.DurationDays, g.StartAt, g.EndAt, g.CreatedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, domainErrors.ErrGrantNotFound) {
		return nil, false, fmt.Errorf("insert access grant: %w", err)
	}

	existing, err := r.GetByTransactionID(ctx, g.TransactionID)
	if err != nil {
		return nil, false, fmt.Errorf("read back access grant for %s: %w", g.TransactionID, err)
	}
	return existing, false, nil
}

func (r *GrantRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*entitlement.Grant, error) {
	return scanGrant(r.db(ctx).QueryRow(ctx,
		`SELECT `+grantColumns+` FROM access_grants WHERE transaction_id = $1`, transactionID))
}

// FindActive returns the latest-ending grant covering now, inclusive at both ends.
func (r *GrantRepository) FindActive(ctx context.Context, userID string, itemID int64, now time.Time) (*entitlement.Grant, error) {
	return scanGrant(r.db(ctx).QueryRow(ctx,
		`SELECT `+grantColumns+` FROM access_grants
		 WHERE user_id = $1 AND item_id = $2 AND start_at <= $3 AND end_at >= $3
		 ORDER BY end_at DESC
		 LIMIT 1`, userID, itemID, now))
}

func (r *GrantRepository) ListByTransactionIDs(ctx context.Context, ids []uuid.UUID) ([]*entitlement.Grant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+grantColumns+` FROM access_grants WHERE transaction_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	var out []*entitlement.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(row scanner) (*entitlement.Grant, error) {
	g := &entitlement.Grant{}
	err := row.Scan(&g.ID, &g.UserID, &g.ItemID, &g.TransactionID, &g.DurationDays, &g.StartAt, &g.EndAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrGrantNotFound
		}
		return nil, fmt.Errorf("scan access grant: %w", err)
	}
	return g, nil
}
