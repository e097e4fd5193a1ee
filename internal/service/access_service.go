package service

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/bookaccess/internal/domain/entitlement"
	domainErrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/cassiomorais/bookaccess/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// AccessCache holds positive access answers only.
type AccessCache interface {
	Get(ctx context.Context, userID string, itemID int64, now time.Time) (endAt time.Time, ok bool, err error)
	Put(ctx context.Context, userID string, itemID int64, endAt, now time.Time) error
}

// AccessService answers whether a user may read an item right now.
type AccessService struct {
	grants  entitlement.Repository
	cache   AccessCache
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewAccessService builds the service; cache may be nil.
func NewAccessService(grants entitlement.Repository, cache AccessCache, logger zerolog.Logger, metrics *observability.Metrics) *AccessService {
	return &AccessService{
		grants:  grants,
		cache:   cache,
		logger:  logger.With().Str("component", "access").Logger(),
		metrics: metrics,
	}
}

// HasActiveAccess reports whether some grant for (userID, itemID) covers now.
func (s *AccessService) HasActiveAccess(ctx context.Context, userID string, itemID int64, now time.Time) (bool, error) {
	if s.cache != nil {
		_, ok, err := s.cache.Get(ctx, userID, itemID, now)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("access cache read failed")
			s.countLookup("error")
		case ok:
			s.countLookup("hit")
			return true, nil
		default:
			s.countLookup("miss")
		}
	}

	grant, err := s.ActiveGrant(ctx, userID, itemID, now)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, userID, itemID, grant.EndAt, now); err != nil {
			s.logger.Warn().Err(err).Msg("access cache write failed")
		}
	}
	return true, nil
}

// ActiveGrant returns the grant covering now, or nil when there is none.
// It always reads the database.
func (s *AccessService) ActiveGrant(ctx context.Context, userID string, itemID int64, now time.Time) (*entitlement.Grant, error) {
	grant, err := s.grants.FindActive(ctx, userID, itemID, now)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !grant.ActiveAt(now) {
		return nil, nil
	}
	return grant, nil
}

func (s *AccessService) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.AccessCacheLookups.WithLabelValues(result).Inc()
	}
}
