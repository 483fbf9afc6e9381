package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/trackersync/internal/model"
)

type Producer interface {
	// Enqueue adds the task unless the same task is already queued. queued is
	// false when the call coalesced into an existing entry.
	Enqueue(ctx context.Context, task Task) (queued bool, err error)
	Close() error
}

type producerClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

type ProducerConfig struct {
	WebhookStream string
	SyncStream    string
	MarkerTTL     time.Duration
}

type redisProducer struct {
	client producerClient
	cfg    ProducerConfig
	logger *slog.Logger
}

func NewRedisProducer(client producerClient, cfg ProducerConfig, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = time.Hour
	}
	return &redisProducer{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task Task) (bool, error) {
	if err := task.Validate(); err != nil {
		return false, fmt.Errorf("invalid task: %w", err)
	}
	if task.Attempt <= 0 {
		task.Attempt = 1
	}

	marker := markerKey(task)
	set, err := p.client.SetNX(ctx, marker, time.Now().Unix(), p.cfg.MarkerTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setting queued marker: %w", err)
	}
	if !set {
		p.logger.DebugContext(ctx, "task already queued, coalesced", "task_key", task.Key())
		return false, nil
	}

	stream := p.streamFor(task)
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: taskValues(task),
	}).Err(); err != nil {
		_ = p.client.Del(ctx, marker).Err()
		return false, fmt.Errorf("enqueue task: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued task",
		"task_type", task.TaskType,
		"task_key", task.Key(),
		"stream", stream,
		"attempt", task.Attempt)
	return true, nil
}

func (p *redisProducer) streamFor(task Task) string {
	if task.TaskType.Class() == ClassWebhook {
		if task.Priority == model.EventPriorityHigh {
			return HighLane(p.cfg.WebhookStream)
		}
		return p.cfg.WebhookStream
	}
	return p.cfg.SyncStream
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
