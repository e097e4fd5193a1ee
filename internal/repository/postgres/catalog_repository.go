package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/bookaccess/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository reads items from the catalog projection.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetItem(ctx context.Context, id int64) (*catalog.Item, error) {
	item := &catalog.Item{}
	var rate string
	err := ConnFromCtx(ctx, r.pool).QueryRow(ctx,
		`SELECT id, title, monthly_rate::text FROM items WHERE id = $1`, id,
	).Scan(&item.ID, &item.Title, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", id, domainErrors.ErrItemNotFound)
		}
		return nil, fmt.Errorf("get item: %w", err)
	}

	if item.MonthlyRateCents, err = numericStringToCents(rate); err != nil {
		return nil, fmt.Errorf("item %d monthly rate: %w", id, err)
	}
	return item, nil
}
