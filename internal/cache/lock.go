package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock holder did not release within
// the caller's wait budget.
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the lock only while the caller still owns it, so a
// slow holder cannot release a lock that already expired and moved on.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AttemptLocker serializes writers of a single attempt across instances.
type AttemptLocker struct {
	client *redis.Client
}

func NewAttemptLocker(client *redis.Client) *AttemptLocker {
	return &AttemptLocker{client: client}
}

// Acquire takes the lock for key, waiting up to wait for the current holder
// to release it. The returned token must be passed back to Release.
func (l *AttemptLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Release frees the lock if token still owns it.
func (l *AttemptLocker) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
