package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type delayedEntry struct {
	Stream string         `json:"stream"`
	Origin string         `json:"origin"`
	Values map[string]any `json:"values"`
}

// PromoteDue moves retries whose ready time has passed back onto their lane.
// ZREM decides ownership, so concurrent promoters never add the same entry twice.
func (c *RedisConsumer) PromoteDue(ctx context.Context, limit int64) (int, error) {
	key := DelayedKey(c.cfg.Stream)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := c.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore delayed: %w", err)
	}

	promoted := 0
	for _, member := range members {
		removed, err := c.client.ZRem(ctx, key, member).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem delayed: %w", err)
		}
		if removed == 0 {
			continue
		}

		var entry delayedEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			slog.ErrorContext(ctx, "dropping undecodable delayed entry", "error", err)
			continue
		}
		if entry.Stream == "" {
			entry.Stream = c.cfg.Stream
		}

		if err := c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: entry.Stream,
			Values: entry.Values,
		}).Err(); err != nil {
			// Put it back so the next tick retries the promotion.
			_ = c.client.ZAdd(ctx, key, redis.Z{Score: float64(time.Now().UnixMilli()), Member: member}).Err()
			return promoted, fmt.Errorf("xadd promoted retry: %w", err)
		}
		promoted++
	}

	if promoted > 0 {
		slog.DebugContext(ctx, "promoted delayed retries", "count", promoted, "stream", c.cfg.Stream)
	}
	return promoted, nil
}
