package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
)

var (
	ErrEventNotFound   = errors.New("webhook event not found")
	ErrRetryNotAllowed = errors.New("webhook event is not in a retryable status")
)

type RetryResult struct {
	Event    *model.WebhookEvent
	Enqueued bool
}

// WebhookEventService backs the operator endpoints: lookup, stats and manual retry.
type WebhookEventService interface {
	Get(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	Stats(ctx context.Context) (*model.WebhookEventStats, error)
	Retry(ctx context.Context, eventID string) (*RetryResult, error)
}

type webhookEventService struct {
	events   store.WebhookEventStore
	txRunner TxRunner
	queue    queue.Producer
}

func NewWebhookEventService(events store.WebhookEventStore, txRunner TxRunner, queue queue.Producer) WebhookEventService {
	return &webhookEventService{
		events:   events,
		txRunner: txRunner,
		queue:    queue,
	}
}

func (s *webhookEventService) Get(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	ev, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("fetching webhook event: %w", err)
	}
	return ev, nil
}

func (s *webhookEventService) Stats(ctx context.Context) (*model.WebhookEventStats, error) {
	stats, err := s.events.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("computing webhook stats: %w", err)
	}
	return stats, nil
}

// Retry moves a failed or completed event back to pending, bumps retry_count
// and queues it again. pending and processing events are refused.
func (s *webhookEventService) Retry(ctx context.Context, eventID string) (*RetryResult, error) {
	var reset *model.WebhookEvent

	err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		current, err := sp.WebhookEvents().GetByEventID(ctx, eventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrEventNotFound
			}
			return fmt.Errorf("fetching webhook event: %w", err)
		}
		if !current.ProcessingStatus.Retryable() {
			return fmt.Errorf("%w: %s", ErrRetryNotAllowed, current.ProcessingStatus)
		}

		reset, err = sp.WebhookEvents().ResetForRetry(ctx, current.ID)
		if err != nil {
			if errors.Is(err, store.ErrStaleWrite) {
				return fmt.Errorf("%w: status changed concurrently", ErrRetryNotAllowed)
			}
			return fmt.Errorf("resetting webhook event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	enqueued, err := s.queue.Enqueue(ctx, queue.Task{
		TaskType:       queue.TaskTypeWebhookEvent,
		WebhookEventID: &reset.ID,
		EventType:      reset.EventType,
		Priority:       reset.Priority,
		Attempt:        1,
	})
	if err != nil {
		slog.WarnContext(ctx, "enqueue after manual retry failed, leaving event for the sweeper",
			"error", err,
			"webhook_event_id", reset.ID)
		enqueued = false
	}

	slog.InfoContext(ctx, "webhook event reset for retry",
		"webhook_event_id", reset.ID,
		"event_id", reset.EventID,
		"retry_count", reset.RetryCount,
		"enqueued", enqueued)

	return &RetryResult{Event: reset, Enqueued: enqueued}, nil
}
