// Package lock provides named advisory locks with a TTL on Redis. They
// guard sections like run finalization where duplicate execution is merely
// wasteful, not incorrect.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the lock lifetime when the holder dies without releasing.
const DefaultTTL = 60 * time.Second

// releaseScript deletes the lock only when held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker acquires and releases named advisory locks.
type Locker struct {
	rdb redis.UniversalClient
}

// New returns a Locker over the given Redis client.
func New(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

// Acquire attempts a non-blocking acquire of name with the given TTL.
// It returns an opaque owner token and whether the lock was obtained.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock acquire %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees name if it is still held under token. Releasing an expired
// or stolen lock is a no-op.
func (l *Locker) Release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{name}, token).Err(); err != nil {
		return fmt.Errorf("lock release %s: %w", name, err)
	}
	return nil
}
