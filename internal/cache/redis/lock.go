package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/azubet/azubet/internal/domain"
)

// releaseLua frees a lock only when the stored token is the caller's own, so
// a holder whose TTL expired cannot release the next holder's lock.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager is the distributed lock behind the wallet lock: SET NX with a
// TTL to acquire, the token-checked script to release. It satisfies
// domain.LockManager.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

// Acquire takes the lock named key for at most ttl and returns the release
// function. Calling release more than once is harmless. When another holder
// has the lock, Acquire fails fast with domain.ErrLockHeld; the bet service
// surfaces that as "wallet busy" rather than queueing.
func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	name := keyPrefix + "lock:" + key

	ok, err := m.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var done bool
	return func() {
		if done {
			return
		}
		done = true
		// The caller's context may already be dead; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.release.Run(rctx, m.rdb, []string{name}, token).Err()
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
