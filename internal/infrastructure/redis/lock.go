package redis

import (
	"context"
	"fmt"
	"time"

	domainerrors "github.com/cassiomorais/bookaccess/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Only the owner token may release.
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-holder lease over a Redis key.
// It only coordinates scheduling between instances; nothing relies on it for correctness.
type DistributedLock struct {
	client   redis.Cmdable
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client redis.Cmdable, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    LockKey(key),
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// LockKey namespaces a lock name.
func LockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// Acquire attempts to take the lock once without blocking.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}

	l.acquired = ok
	return ok, nil
}

// Extend pushes the expiry of a held lock forward.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainerrors.ErrLockNotHeld
	}

	result, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		l.acquired = false
		return domainerrors.ErrLockNotHeld
	}

	return nil
}

// Release gives the lock back if this holder still owns it.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}

	result, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	l.acquired = false
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if val, ok := result.(int64); !ok || val == 0 {
		return domainerrors.ErrLockNotHeld
	}

	return nil
}

func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}
