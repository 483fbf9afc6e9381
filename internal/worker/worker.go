package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/queue"
)

// Hooks let the owner of a task class keep its own records in step with the
// queue's retry decisions.
type Hooks struct {
	// BeforeRetry runs before a retryable failure is rescheduled.
	BeforeRetry func(ctx context.Context, msg queue.Message) error
	// OnExhausted runs when a task leaves the queue without succeeding.
	OnExhausted func(ctx context.Context, msg queue.Message, res Result)
}

type Config struct {
	Name    string
	Policy  queue.RetryPolicy
	Limiter *rate.Limiter // nil disables rate limiting
	Hooks   Hooks
}

type Worker struct {
	consumer Consumer
	handlers map[queue.TaskType]Handler
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		handlers:  make(map[queue.TaskType]Handler),
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// PerMinute builds a limiter allowing n tasks per minute with a burst of
// a tenth of that.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60), max(1, n/10))
}

func (w *Worker) Register(taskType queue.TaskType, h Handler) {
	w.handlers[taskType] = h
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trackersync.worker." + w.cfg.Name,
	})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.Policy.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
				case <-w.stopCh:
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if w.cfg.Limiter != nil {
			if err := w.cfg.Limiter.Wait(ctx); err != nil {
				// Unacked messages are picked up by the reclaimer.
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		w.ProcessMessage(ctx, msg)
	}

	return nil
}

// ProcessMessage runs the task body and settles the message. Exported so it
// can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) Result {
	msgID := msg.ID
	taskType := string(msg.TaskType)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID:      &msgID,
		TaskType:       &taskType,
		WebhookEventID: msg.WebhookEventID,
	})

	ctx, span := logger.StartTaskSpan(ctx, msg.TraceID, "worker.process_task",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("task.type", taskType),
			attribute.String("task.key", msg.Key()),
			attribute.Int("task.attempt", msg.Attempt),
		))
	defer span.End()

	start := time.Now()
	res := w.handleSafe(ctx, msg)

	switch res.Outcome {
	case OutcomeSuccess:
		if err := w.consumer.Ack(ctx, msg); err != nil {
			// Redelivery is safe, handlers are idempotent per task key.
			slog.WarnContext(ctx, "failed to ACK message", "error", err)
		}
		slog.InfoContext(ctx, "task completed",
			"attempt", msg.Attempt,
			"duration_ms", time.Since(start).Milliseconds())
	default:
		span.Fail(res.Err)
		w.handleFailedMessage(ctx, msg, res)
	}

	return res
}

func (w *Worker) handleSafe(ctx context.Context, msg queue.Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in task processing", "panic", r)
			res = Retryable(fmt.Errorf("panic: %v", r))
		}
	}()

	h, ok := w.handlers[msg.TaskType]
	if !ok {
		return Permanent(fmt.Errorf("no handler for task type %q", msg.TaskType))
	}

	res = h.Handle(ctx, msg)
	if res.Outcome == "" {
		res.Outcome = OutcomeSuccess
	}
	return res
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, res Result) {
	if res.Outcome == OutcomePermanent || w.cfg.Policy.Exhausted(msg.Attempt) {
		slog.ErrorContext(ctx, "task failed terminally, sending to DLQ",
			"outcome", res.Outcome,
			"attempts", msg.Attempt,
			"error", res.Err)
		if w.cfg.Hooks.OnExhausted != nil {
			w.cfg.Hooks.OnExhausted(ctx, msg, res)
		}
		if err := w.consumer.SendDLQ(ctx, msg, res.Error()); err != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", err)
		}
		return
	}

	if w.cfg.Hooks.BeforeRetry != nil {
		if err := w.cfg.Hooks.BeforeRetry(ctx, msg); err != nil {
			slog.WarnContext(ctx, "retry hook failed", "error", err)
		}
	}

	delay := w.cfg.Policy.Delay(msg.Attempt)
	slog.WarnContext(ctx, "scheduling retry for failed task",
		"attempt", msg.Attempt,
		"delay_ms", delay.Milliseconds(),
		"error", res.Err)
	if err := w.consumer.Retry(ctx, msg, delay, res.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to schedule retry", "error", err)
	}
}
