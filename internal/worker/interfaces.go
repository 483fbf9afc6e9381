package worker

import (
	"context"
	"time"

	"basegraph.app/trackersync/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Retry(ctx context.Context, msg queue.Message, delay time.Duration, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// StaleClaimer takes over messages abandoned by crashed consumers.
type StaleClaimer interface {
	ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error)
}

// Promoter moves due delayed retries back onto their stream.
type Promoter interface {
	PromoteDue(ctx context.Context, limit int64) (int, error)
}
