package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/worker"
)

// WebhookWorkerHooks keeps webhook_events rows in step with the queue's
// retry decisions. The processor leaves a failed row behind on error; the
// row has to be pending again before the redelivered task can claim it.
func WebhookWorkerHooks(events store.WebhookEventStore) worker.Hooks {
	return worker.Hooks{
		BeforeRetry: func(ctx context.Context, msg queue.Message) error {
			if msg.WebhookEventID == nil {
				return nil
			}
			_, err := events.ResetFailedForAutoRetry(ctx, *msg.WebhookEventID, math.MaxInt32)
			if err != nil && !errors.Is(err, store.ErrStaleWrite) {
				return fmt.Errorf("resetting webhook event for retry: %w", err)
			}
			return nil
		},
		OnExhausted: func(ctx context.Context, msg queue.Message, res worker.Result) {
			if msg.WebhookEventID == nil {
				return
			}
			// A panicking handler leaves the row in processing.
			err := events.MarkFailed(ctx, *msg.WebhookEventID, res.Error(), res.Outcome != worker.OutcomePermanent)
			if err != nil && !errors.Is(err, store.ErrStaleWrite) {
				slog.ErrorContext(ctx, "marking exhausted webhook event failed", "error", err)
			}
			slog.ErrorContext(ctx, "webhook event left failed for manual retry",
				"webhook_event_id", *msg.WebhookEventID,
				"attempt", msg.Attempt,
				"outcome", res.Outcome,
				"error", res.Error())
		},
	}
}
