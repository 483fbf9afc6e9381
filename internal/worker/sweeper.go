package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
)

// SweepStore is the part of the webhook event store the sweeper needs.
type SweepStore interface {
	ListStale(ctx context.Context, pendingBefore, leaseBefore time.Time, limit int32) ([]model.WebhookEvent, error)
	ListRetryableFailed(ctx context.Context, maxRetryCount int32, failedBefore time.Time, limit int32) ([]model.WebhookEvent, error)
	ResetFailedForAutoRetry(ctx context.Context, id int64, maxRetryCount int32) (*model.WebhookEvent, error)
}

type SweeperConfig struct {
	Interval        time.Duration
	StalePending    time.Duration
	ProcessingLease time.Duration
	// MaxAutoRetries bounds retry_count for automatic requeue of failed
	// events. Beyond it an event stays failed for an operator.
	MaxAutoRetries int32
	BatchSize      int32
}

// Sweeper re-enqueues webhook events the queue lost track of: pending rows
// never enqueued, processing rows whose worker died, and failed rows still
// under the automatic retry bound. Rows that failed permanently are left for
// an operator.
type Sweeper struct {
	events   SweepStore
	producer queue.Producer
	cfg      SweeperConfig
	now      func() time.Time

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewSweeper(events SweepStore, producer queue.Producer, cfg SweeperConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		events:    events,
		producer:  producer,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trackersync.worker.sweeper",
	})

	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "sweeper started",
		"interval", s.cfg.Interval,
		"stale_pending", s.cfg.StalePending,
		"processing_lease", s.cfg.ProcessingLease)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "sweep cycle error", "error", err, "requeued", n)
			} else if n > 0 {
				slog.InfoContext(ctx, "sweep requeued events", "count", n)
			}
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// SweepOnce returns the number of events handed back to the queue.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	requeued := 0

	stale, err := s.events.ListStale(ctx, now.Add(-s.cfg.StalePending), now.Add(-s.cfg.ProcessingLease), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for i := range stale {
		if s.enqueue(ctx, &stale[i]) {
			requeued++
		}
	}

	failed, err := s.events.ListRetryableFailed(ctx, s.cfg.MaxAutoRetries, now.Add(-s.cfg.StalePending), s.cfg.BatchSize)
	if err != nil {
		return requeued, err
	}
	for _, ev := range failed {
		reset, err := s.events.ResetFailedForAutoRetry(ctx, ev.ID, s.cfg.MaxAutoRetries)
		if err != nil {
			if !errors.Is(err, store.ErrStaleWrite) {
				slog.WarnContext(ctx, "resetting failed event", "error", err, "webhook_event_id", ev.ID)
			}
			continue
		}
		if s.enqueue(ctx, reset) {
			requeued++
		}
	}

	return requeued, nil
}

func (s *Sweeper) enqueue(ctx context.Context, ev *model.WebhookEvent) bool {
	queued, err := s.producer.Enqueue(ctx, queue.Task{
		TaskType:       queue.TaskTypeWebhookEvent,
		WebhookEventID: &ev.ID,
		EventType:      ev.EventType,
		Priority:       ev.Priority,
	})
	if err != nil {
		slog.WarnContext(ctx, "re-enqueue failed", "error", err, "webhook_event_id", ev.ID)
		return false
	}
	return queued
}
