package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azubet/azubet/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// retryGap paces the Wait loop between Allow attempts.
const retryGap = 50 * time.Millisecond

// RateLimiter is a sliding-window limiter on Redis sorted sets. One instance
// serves every budget in the process: the per-wallet submission gap, the RPC
// request budget, and the HTTP per-client cap.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
	}
}

// Allow admits and counts the request when fewer than limit requests hit key
// within the trailing window. The check and the count are one Lua call, so
// concurrent callers cannot both squeeze through the last slot.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := l.script.Run(ctx, l.rdb,
		[]string{keyPrefix + "rl:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: bad script reply", key)
	}
	return res[0] == 1, nil
}

// Wait blocks until one request for key is admitted at 1/s, or the context
// dies. Callers with other budgets loop over Allow themselves.
func (l *RateLimiter) Wait(ctx context.Context, key string) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}

		ok, err := l.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer.Reset(retryGap)
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
