package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/webhook"
)

// ErrMalformedPayload is returned for bodies that are not a JSON object.
var ErrMalformedPayload = errors.New("malformed payload")

type IngestStatus string

const (
	IngestStatusReceived  IngestStatus = "received"
	IngestStatusDuplicate IngestStatus = "duplicate"
)

// EventIngestParams describes one delivery whose signature has already been
// verified. Body is the raw request body.
type EventIngestParams struct {
	Body       []byte
	DeliveryID string
	UserAgent  string
	TraceID    *string
}

type EventIngestResult struct {
	Event     *model.WebhookEvent
	EventID   string
	EventType string
	Status    IngestStatus
	// Enqueued is false for duplicates and when the queue refused the task.
	// In the latter case the sweeper picks the pending row up later.
	Enqueued bool
}

type EventIngestService interface {
	Ingest(ctx context.Context, params EventIngestParams) (*EventIngestResult, error)
}

type IngestConfig struct {
	Fields jira.FieldConfig
	// DedupFailOpen admits deliveries when the dedup store is unreachable.
	// When false such deliveries are rejected with webhook.ErrDedupUnavailable.
	DedupFailOpen bool
}

type eventIngestService struct {
	events store.WebhookEventStore
	dedup  webhook.Deduplicator
	queue  queue.Producer
	cfg    IngestConfig
	logger *slog.Logger
}

func NewEventIngestService(events store.WebhookEventStore, dedup webhook.Deduplicator, queue queue.Producer, cfg IngestConfig, logger *slog.Logger) EventIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventIngestService{
		events: events,
		dedup:  dedup,
		queue:  queue,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *eventIngestService) Ingest(ctx context.Context, params EventIngestParams) (*EventIngestResult, error) {
	parsed, err := jira.Parse(params.Body, s.cfg.Fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	meta := parsed.Metadata()
	eventID := webhook.EventID(params.DeliveryID, params.Body)

	duplicate, err := s.dedup.IsDuplicate(ctx, eventID)
	marked := err == nil
	if err != nil {
		if !s.cfg.DedupFailOpen {
			return nil, err
		}
		s.logger.WarnContext(ctx, "dedup store unavailable, admitting event",
			"error", err,
			"event_id", eventID,
			"policy", "fail_open")
	}
	if duplicate {
		s.logger.InfoContext(ctx, "duplicate event deduped", "event_id", eventID, "event_type", meta.EventType)
		return &EventIngestResult{EventID: eventID, EventType: meta.EventType, Status: IngestStatusDuplicate}, nil
	}

	event, created, err := s.events.CreateOrGet(ctx, &model.WebhookEvent{
		ID:               id.New(),
		EventID:          eventID,
		EventType:        meta.EventType,
		WebhookEvent:     meta.SubType,
		Payload:          params.Body,
		UserAccountID:    meta.UserAccountID,
		IssueID:          meta.IssueID,
		IssueKey:         meta.IssueKey,
		ProjectKey:       meta.ProjectKey,
		SprintID:         meta.SprintID,
		BoardID:          meta.BoardID,
		Priority:         meta.Priority,
		UserAgent:        params.UserAgent,
		ProcessingStatus: model.ProcessingStatusPending,
	})
	if err != nil {
		// Without a row the dedup mark would swallow the sender's redelivery.
		if marked {
			if relErr := s.dedup.Release(ctx, eventID); relErr != nil {
				s.logger.ErrorContext(ctx, "failed to release dedup mark after store error",
					"error", relErr,
					"event_id", eventID)
			}
		}
		return nil, fmt.Errorf("storing webhook event: %w", err)
	}
	if !created {
		s.logger.InfoContext(ctx, "event already stored", "event_id", eventID, "webhook_event_id", event.ID)
		return &EventIngestResult{Event: event, EventID: eventID, EventType: event.EventType, Status: IngestStatusDuplicate}, nil
	}

	enqueued, err := s.queue.Enqueue(ctx, queue.Task{
		TaskType:       queue.TaskTypeWebhookEvent,
		WebhookEventID: &event.ID,
		EventType:      event.EventType,
		Priority:       event.Priority,
		TraceID:        params.TraceID,
		Attempt:        1,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "enqueue failed, leaving event for the sweeper",
			"error", err,
			"webhook_event_id", event.ID)
		enqueued = false
	}

	return &EventIngestResult{
		Event:     event,
		EventID:   eventID,
		EventType: event.EventType,
		Status:    IngestStatusReceived,
		Enqueued:  enqueued,
	}, nil
}
