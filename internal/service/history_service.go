package service

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/catalog"
	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HistoryEntry is one purchase as shown to its buyer.
type HistoryEntry struct {
	Transaction *transaction.Transaction
	ItemTitle   string
	AccessStart *time.Time
	AccessEnd   *time.Time
}

// HistoryService lists a user's purchases together with the access each one bought.
type HistoryService struct {
	transactions transaction.Repository
	grants       entitlement.Repository
	catalog      catalog.Catalog
	logger       zerolog.Logger
}

func NewHistoryService(transactions transaction.Repository, grants entitlement.Repository, catalog catalog.Catalog, logger zerolog.Logger) *HistoryService {
	return &HistoryService{
		transactions: transactions,
		grants:       grants,
		catalog:      catalog,
		logger:       logger.With().Str("component", "history").Logger(),
	}
}

// List returns the caller's transactions newest first.
func (s *HistoryService) List(ctx context.Context, userID string, filter transaction.ListFilter) ([]HistoryEntry, error) {
	if userID == "" {
		return nil, domainErrors.ErrUnauthorized
	}

	txs, err := s.transactions.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	if len(txs) == 0 {
		return []HistoryEntry{}, nil
	}

	ids := make([]uuid.UUID, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	grants, err := s.grants.ListByTransactionIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byTx := make(map[string]*entitlement.Grant, len(grants))
	for _, g := range grants {
		byTx[g.TransactionID.String()] = g
	}

	titles := make(map[int64]string)
	entries := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		title, ok := titles[tx.ItemID]
		if !ok {
			title = s.itemTitle(ctx, tx.ItemID)
			titles[tx.ItemID] = title
		}

		entry := HistoryEntry{Transaction: tx, ItemTitle: title}
		if g, ok := byTx[tx.ID.String()]; ok {
			start, end := g.StartAt, g.EndAt
			entry.AccessStart = &start
			entry.AccessEnd = &end
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// itemTitle resolves a title for display; a missing item leaves it blank.
func (s *HistoryService) itemTitle(ctx context.Context, itemID int64) string {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrNotFound) {
			s.logger.Warn().Err(err).Int64("item_id", itemID).Msg("item lookup failed")
		}
		return ""
	}
	return item.Title
}
