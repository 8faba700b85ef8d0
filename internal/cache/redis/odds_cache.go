package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azubet/azubet/internal/domain"
)

// OddsCache implements domain.OddsCache using Redis hashes. Each condition's
// odds live in a hash at key "odds:{conditionID}" with one field per outcome
// plus a "{outcomeID}:ts" field holding the update timestamp.
type OddsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOddsCache creates an OddsCache backed by the given Client. Entries
// expire after ttl so a dead odds stream cannot serve stale quotes forever.
func NewOddsCache(c *Client, ttl time.Duration) *OddsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OddsCache{rdb: c.Underlying(), ttl: ttl}
}

func oddsKey(conditionID string) string {
	return "odds:" + conditionID
}

// SetOdds stores the latest odds for an outcome.
func (oc *OddsCache) SetOdds(ctx context.Context, update domain.OddsUpdate) error {
	key := oddsKey(update.ConditionID)
	fields := map[string]interface{}{
		update.OutcomeID:         strconv.FormatFloat(update.Odds, 'f', -1, 64),
		update.OutcomeID + ":ts": strconv.FormatInt(update.Timestamp.UnixNano(), 10),
	}

	pipe := oc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, oc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set odds %s/%s: %w", update.ConditionID, update.OutcomeID, err)
	}
	return nil
}

// GetOdds retrieves the latest odds and update time for an outcome. It
// returns domain.ErrNotFound when no quote is cached.
func (oc *OddsCache) GetOdds(ctx context.Context, conditionID, outcomeID string) (float64, time.Time, error) {
	vals, err := oc.rdb.HMGet(ctx, oddsKey(conditionID), outcomeID, outcomeID+":ts").Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get odds %s/%s: %w", conditionID, outcomeID, err)
	}
	if len(vals) < 2 || vals[0] == nil {
		return 0, time.Time{}, domain.ErrNotFound
	}

	oddsStr, _ := vals[0].(string)
	odds, err := strconv.ParseFloat(oddsStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse odds %s/%s: %w", conditionID, outcomeID, err)
	}

	var ts time.Time
	if tsStr, ok := vals[1].(string); ok {
		if nano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			ts = time.Unix(0, nano)
		}
	}
	return odds, ts, nil
}

// GetConditionOdds retrieves all cached outcome odds for a condition. The
// result is empty (not an error) when nothing is cached.
func (oc *OddsCache) GetConditionOdds(ctx context.Context, conditionID string) (map[string]float64, error) {
	vals, err := oc.rdb.HGetAll(ctx, oddsKey(conditionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get condition odds %s: %w", conditionID, err)
	}

	result := make(map[string]float64, len(vals))
	for field, v := range vals {
		if strings.HasSuffix(field, ":ts") {
			continue
		}
		odds, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		result[field] = odds
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.OddsCache = (*OddsCache)(nil)
