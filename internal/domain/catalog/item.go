package catalog

import "context"

// Item is a purchasable piece of content as seen by the settlement core.
type Item struct {
	ID               int64
	Title            string
	MonthlyRateCents int64
}

// Catalog resolves item ids. Item CRUD lives outside this service.
type Catalog interface {
	GetItem(ctx context.Context, id int64) (*Item, error)
}
