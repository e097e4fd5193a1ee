package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AccessCache remembers positive access answers until the grant ends.
// A miss says nothing; callers fall back to the database.
type AccessCache struct {
	client redis.Cmdable
	maxTTL time.Duration
}

func NewAccessCache(client redis.Cmdable, maxTTL time.Duration) *AccessCache {
	return &AccessCache{client: client, maxTTL: maxTTL}
}

func accessKey(userID string, itemID int64) string {
	return fmt.Sprintf("access:%s:%d", userID, itemID)
}

// CacheTTL is how long a positive answer may be served: never past the grant end.
func CacheTTL(now, endAt time.Time, maxTTL time.Duration) time.Duration {
	ttl := endAt.Sub(now)
	if maxTTL > 0 && ttl > maxTTL {
		ttl = maxTTL
	}
	return ttl
}

// Get returns the cached grant end for (user, item) when present and still in force.
func (c *AccessCache) Get(ctx context.Context, userID string, itemID int64, now time.Time) (time.Time, bool, error) {
	raw, err := c.client.Get(ctx, accessKey(userID, itemID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read access cache: %w", err)
	}

	endAt := time.Unix(0, raw).UTC()
	if now.After(endAt) {
		return time.Time{}, false, nil
	}
	return endAt, true, nil
}

// Put records an active grant ending at endAt. Expired grants are not stored.
func (c *AccessCache) Put(ctx context.Context, userID string, itemID int64, endAt, now time.Time) error {
	ttl := CacheTTL(now, endAt, c.maxTTL)
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, accessKey(userID, itemID), endAt.UnixNano(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write access cache: %w", err)
	}
	return nil
}
