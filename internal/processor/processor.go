package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/worker"
)

const finalizeTimeout = 30 * time.Second

// Ledger is the part of the sync-state tracker the processor writes.
type Ledger interface {
	GetOrCreate(ctx context.Context, entityType model.EntityType, entityID, jiraID string) (*model.SyncState, error)
	RecordSuccess(ctx context.Context, row *model.SyncState, res syncstate.Success) error
	RecordFailure(ctx context.Context, row *model.SyncState, message string) error
}

type Config struct {
	Fields jira.FieldConfig
	// Lease is how long a processing claim is honoured before another
	// delivery may take the event over.
	Lease time.Duration
}

// Processor handles webhook_event tasks: it moves the stored event through
// pending → processing → completed|failed and applies the payload to local
// records.
type Processor struct {
	events   store.WebhookEventStore
	sprints  store.SprintStore
	boards   store.BoardStore
	items    store.QueueItemStore
	ledger   Ledger
	producer queue.Producer
	cfg      Config
}

func New(
	events store.WebhookEventStore,
	sprints store.SprintStore,
	boards store.BoardStore,
	items store.QueueItemStore,
	ledger Ledger,
	producer queue.Producer,
	cfg Config,
) *Processor {
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	return &Processor{
		events:   events,
		sprints:  sprints,
		boards:   boards,
		items:    items,
		ledger:   ledger,
		producer: producer,
		cfg:      cfg,
	}
}

func (p *Processor) Handle(ctx context.Context, msg queue.Message) worker.Result {
	if msg.WebhookEventID == nil {
		return worker.Permanent(errors.New("webhook_event task without webhook_event_id"))
	}
	id := *msg.WebhookEventID

	ev, err := p.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "webhook event not found, skipping")
			return worker.Success()
		}
		return worker.Retryable(fmt.Errorf("loading webhook event: %w", err))
	}
	if ev.ProcessingStatus.Terminal() {
		slog.InfoContext(ctx, "webhook event already terminal, skipping",
			"processing_status", ev.ProcessingStatus)
		return worker.Success()
	}

	claimed, err := p.events.Claim(ctx, id, p.cfg.Lease)
	if err != nil {
		if errors.Is(err, store.ErrStaleWrite) {
			slog.InfoContext(ctx, "webhook event claimed elsewhere, skipping")
			return worker.Success()
		}
		return worker.Retryable(fmt.Errorf("claiming webhook event: %w", err))
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:   &claimed.EventID,
		EventType: &claimed.EventType,
	})

	start := time.Now()
	applyErr := p.apply(ctx, claimed)
	durationMs := time.Since(start).Milliseconds()

	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if applyErr == nil {
		if err := p.events.MarkCompleted(finalizeCtx, id, durationMs); err != nil {
			return worker.Retryable(fmt.Errorf("marking webhook event completed: %w", err))
		}
		slog.InfoContext(ctx, "webhook event processed",
			"duration_ms", durationMs,
			"attempts", claimed.ProcessingAttempts)
		return worker.Success()
	}

	permanentErr := isPermanent(applyErr)
	if err := p.events.MarkFailed(finalizeCtx, id, logger.Truncate(applyErr.Error(), 2000), !permanentErr); err != nil {
		slog.ErrorContext(ctx, "marking webhook event failed", "error", err)
	}

	if permanentErr {
		return worker.Permanent(applyErr)
	}
	return worker.Retryable(applyErr)
}

func (p *Processor) apply(ctx context.Context, ev *model.WebhookEvent) error {
	parsed, err := jira.Parse(ev.Payload, p.cfg.Fields)
	if err != nil {
		return permanent(fmt.Errorf("parsing payload: %w", err))
	}

	switch jira.Classify(ev.EventType) {
	case jira.FamilyIssue:
		if parsed.Issue == nil || parsed.Issue.Key == "" {
			return permanent(errors.New("issue event without issue key"))
		}
		if jira.IsDeletion(ev.EventType) {
			return p.removeIssue(ctx, parsed.Issue)
		}
		return p.applyIssue(ctx, parsed.Issue)

	case jira.FamilySprint:
		if parsed.Sprint == nil {
			return permanent(errors.New("sprint event without sprint"))
		}
		if jira.IsDeletion(ev.EventType) {
			return p.archiveSprint(ctx, parsed.Sprint)
		}
		return p.applySprint(ctx, ev, parsed.Sprint)

	case jira.FamilyBoard:
		if parsed.Board == nil {
			return permanent(errors.New("board event without board"))
		}
		if jira.IsDeletion(ev.EventType) {
			return p.deactivateBoard(ctx, parsed.Board)
		}
		return p.applyBoard(ctx, parsed.Board)
	}

	slog.InfoContext(ctx, "no handler for event type, completing as no-op")
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent marks err as one no retry can fix.
func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
