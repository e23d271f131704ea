package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrLockNotHeld means the lock expired, and possibly passed to another holder, before release.
	ErrLockNotHeld = errors.New("lock is not held")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Redis is a Locker shared by every process using the same redis instance.
// A lock expires after ttl if its holder dies without releasing it.
type Redis struct {
	rc         *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	timeout    time.Duration
}

func NewRedis(rc *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		rc:         rc,
		ttl:        ttl,
		retryDelay: 10 * time.Millisecond,
		timeout:    5 * time.Second,
	}
}

func (r *Redis) getLockKey(key string) string {
	return "lock:" + key
}

func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	lockKey := r.getLockKey(key)
	token := uuid.NewString()
	deadline := time.Now().Add(r.timeout)

	for {
		acquired, err := r.rc.SetNX(ctx, lockKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		if acquired {
			break
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			// release must not depend on the caller's (possibly cancelled) context
			err = r.release(context.Background(), lockKey, token)
		})
		return err
	}, nil
}

func (r *Redis) release(ctx context.Context, lockKey, token string) error {
	deleted, err := unlockScript.Run(ctx, r.rc, []string{lockKey}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if deleted == 0 {
		return ErrLockNotHeld
	}

	return nil
}
