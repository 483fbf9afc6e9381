package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "webhook:processed:"

// ErrDedupUnavailable wraps backing-store failures. Callers choose whether to
// admit (fail open) or reject (fail closed) when they see it.
var ErrDedupUnavailable = errors.New("dedup store unavailable")

type Deduplicator interface {
	// IsDuplicate marks eventID as seen and reports whether it already was.
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	// Release forgets eventID so a redelivery is admitted again. Used when
	// the event could not be stored after being marked.
	Release(ctx context.Context, eventID string) error
}

type dedupClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisDeduplicator struct {
	client dedupClient
	ttl    time.Duration
}

// NewRedisDeduplicator uses SET NX EX, so concurrent callers for the same id
// see exactly one "not duplicate" and the TTL is never extended.
func NewRedisDeduplicator(client dedupClient, ttl time.Duration) Deduplicator {
	return &redisDeduplicator{client: client, ttl: ttl}
}

func (d *redisDeduplicator) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	set, err := d.client.SetNX(ctx, dedupKeyPrefix+eventID, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDedupUnavailable, err)
	}
	return !set, nil
}

func (d *redisDeduplicator) Release(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, dedupKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDedupUnavailable, err)
	}
	return nil
}
