package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/model"
)

type ConsumerConfig struct {
	Stream    string        // Redis stream name (default lane)
	Priority  bool          // Read the high lane (<stream>:high) before the default lane
	Group     string        // Redis consumer group name
	Consumer  string        // Redis consumer name
	BatchSize int64         // Number of messages to process per batch
	Block     time.Duration // How long to block/poll for new messages
}

type Message struct {
	Task
	ID     string
	Stream string // lane the message was read from; acks go there
	Raw    redis.XMessage
}

// MessageProcessor processes a queue message.
type MessageProcessor func(ctx context.Context, msg Message) error

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroups(context.Background()); err != nil { //nolint:contextcheck
		return nil, err
	}

	return consumer, nil
}

// Lanes lists the streams this consumer reads, highest priority first.
func (c *RedisConsumer) Lanes() []string {
	if c.cfg.Priority {
		return []string{HighLane(c.cfg.Stream), c.cfg.Stream}
	}
	return []string{c.cfg.Stream}
}

func (c *RedisConsumer) ensureGroups(ctx context.Context) error {
	// Starting from "0" instead of "$" means we don't lose messages during restarts.
	for _, lane := range c.Lanes() {
		err := c.client.XGroupCreateMkStream(ctx, lane, c.cfg.Group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("creating consumer group on %s: %w", lane, err)
		}
	}
	return nil
}

// Read drains the high lane first without blocking, then blocks on all lanes.
func (c *RedisConsumer) Read(ctx context.Context) ([]Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trackersync.queue.consumer",
	})

	lanes := c.Lanes()
	if len(lanes) > 1 {
		messages, err := c.read(ctx, lanes[:1], -1)
		if err != nil || len(messages) > 0 {
			return messages, err
		}
	}
	return c.read(ctx, lanes, c.cfg.Block)
}

func (c *RedisConsumer) read(ctx context.Context, lanes []string, block time.Duration) ([]Message, error) {
	streamArgs := make([]string, 0, len(lanes)*2)
	streamArgs = append(streamArgs, lanes...)
	for range lanes {
		// > = new messages not yet delivered to anyone. Unacked messages are
		// handled by the reclaimer on a different goroutine.
		streamArgs = append(streamArgs, ">")
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  streamArgs,
		Count:    c.cfg.BatchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var messages []Message
	var markers []string
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, parseErr := ParseMessage(stream.Stream, msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse message",
					"error", parseErr,
					"raw_message_id", msg.ID,
					"stream", stream.Stream)
				_ = c.Ack(ctx, Message{ID: msg.ID, Stream: stream.Stream, Raw: msg})
				continue
			}
			messages = append(messages, parsed)
			markers = append(markers, markerKey(parsed.Task))
		}
	}

	// The task is no longer waiting, so a new enqueue must not coalesce into it.
	if len(markers) > 0 {
		if err := c.client.Del(ctx, markers...).Err(); err != nil {
			slog.WarnContext(ctx, "failed to clear queued markers", "error", err)
		}
		slog.DebugContext(ctx, "read messages from stream",
			"count", len(messages),
			"consumer", c.cfg.Consumer)
	}

	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, msg Message) error {
	stream := msg.Stream
	if stream == "" {
		stream = c.cfg.Stream
	}
	if err := c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", stream, err)
	}

	slog.DebugContext(ctx, "message acknowledged", "stream", stream)
	return nil
}

// Retry schedules the next attempt after delay. The message is parked in the
// delayed set before it is acknowledged, so a crash in between duplicates
// rather than loses it.
func (c *RedisConsumer) Retry(ctx context.Context, msg Message, delay time.Duration, errMsg string) error {
	next := msg.Task
	next.Attempt = msg.Attempt + 1

	values := taskValues(next)
	if errMsg != "" {
		values["last_error"] = logger.Truncate(errMsg, 500)
	}

	member, err := json.Marshal(delayedEntry{Stream: msg.Stream, Origin: msg.ID, Values: values})
	if err != nil {
		return fmt.Errorf("encoding delayed entry: %w", err)
	}

	readyAt := time.Now().Add(delay)
	if err := c.client.ZAdd(ctx, DelayedKey(c.cfg.Stream), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("zadd delayed retry: %w", err)
	}

	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking message after scheduling retry: %w", err)
	}

	slog.InfoContext(ctx, "message scheduled for retry",
		"next_attempt", next.Attempt,
		"delay_ms", delay.Milliseconds(),
		"reason", errMsg)
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, msg Message, errMsg string) error {
	values := taskValues(msg.Task)
	values["error"] = logger.Truncate(errMsg, 2000)
	values["origin_stream"] = msg.Stream

	dlq := DLQStream(c.cfg.Stream)
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlq,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", dlq, err)
	}

	if err := c.Ack(ctx, msg); err != nil {
		return fmt.Errorf("acking failed message for dlq: %w", err)
	}

	slog.ErrorContext(ctx, "message sent to DLQ",
		"final_error", errMsg,
		"dlq_stream", dlq)
	return nil
}

// ClaimStale takes over messages delivered to any consumer of the group that
// stayed unacknowledged for at least minIdle.
func (c *RedisConsumer) ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error) {
	var claimed []Message

	for _, lane := range c.Lanes() {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: lane,
			Group:  c.cfg.Group,
			Idle:   minIdle,
			Start:  "-",
			End:    "+",
			Count:  count,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("xpending (stream=%s): %w", lane, err)
		}
		if len(pending) == 0 {
			continue
		}

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
		}

		messages, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   lane,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  minIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("xclaim (stream=%s): %w", lane, err)
		}

		for _, msg := range messages {
			parsed, parseErr := ParseMessage(lane, msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "failed to parse reclaimed message, acknowledging to prevent loop",
					"error", parseErr,
					"raw_message_id", msg.ID)
				_ = c.Ack(ctx, Message{ID: msg.ID, Stream: lane, Raw: msg})
				continue
			}
			claimed = append(claimed, parsed)
		}
	}

	return claimed, nil
}

func ParseMessage(stream string, msg redis.XMessage) (Message, error) {
	webhookEventID, err := parseOptionalInt64(msg.Values, "webhook_event_id")
	if err != nil {
		return Message{}, err
	}
	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	traceID := parseOptionalString(msg.Values, "trace_id")
	task := Task{
		TaskType:       TaskType(parseOptionalString(msg.Values, "task_type")),
		WebhookEventID: webhookEventID,
		EventType:      parseOptionalString(msg.Values, "event_type"),
		IssueKey:       parseOptionalString(msg.Values, "issue_key"),
		SprintID:       parseOptionalString(msg.Values, "sprint_id"),
		Force:          parseOptionalString(msg.Values, "force") == "1",
		Priority:       model.EventPriority(parseOptionalString(msg.Values, "priority")),
		Attempt:        attempt,
	}
	if traceID != "" {
		task.TraceID = &traceID
	}

	if task.TaskType == "" {
		return Message{}, fmt.Errorf("missing task_type")
	}
	if err := task.Validate(); err != nil {
		return Message{}, err
	}

	return Message{
		Task:   task,
		ID:     msg.ID,
		Stream: stream,
		Raw:    msg,
	}, nil
}

func parseOptionalInt64(values map[string]any, key string) (*int64, error) {
	raw, ok := values[key]
	if !ok {
		return nil, nil
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &num, nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

// taskValues renders every field as a string so the values survive a JSON
// round trip through the delayed set unchanged.
func taskValues(t Task) map[string]any {
	values := map[string]any{
		"task_type": string(t.TaskType),
		"attempt":   strconv.Itoa(t.Attempt),
	}

	if t.WebhookEventID != nil {
		values["webhook_event_id"] = strconv.FormatInt(*t.WebhookEventID, 10)
	}
	if t.EventType != "" {
		values["event_type"] = t.EventType
	}
	if t.IssueKey != "" {
		values["issue_key"] = t.IssueKey
	}
	if t.SprintID != "" {
		values["sprint_id"] = t.SprintID
	}
	if t.Force {
		values["force"] = "1"
	}
	if t.Priority != "" {
		values["priority"] = string(t.Priority)
	}
	if t.TraceID != nil && *t.TraceID != "" {
		values["trace_id"] = *t.TraceID
	}

	return values
}
