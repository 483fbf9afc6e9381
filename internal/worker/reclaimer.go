package worker

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/logger"
)

type ReclaimerConfig struct {
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer periodically reclaims stale pending messages.
// This handles the crash recovery scenario where a worker dies
// after XREADGROUP but before XACK.
type Reclaimer struct {
	claimer StaleClaimer
	worker  *Worker
	cfg     ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(claimer StaleClaimer, worker *Worker, cfg ReclaimerConfig) *Reclaimer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Reclaimer{
		claimer:   claimer,
		worker:    worker,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the reclaimer loop. Blocks until Stop() is called.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trackersync.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			r.ReclaimOnce(ctx)
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce performs one reclaim cycle and returns how many messages it re-ran.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) int {
	messages, err := r.claimer.ClaimStale(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
	}
	if len(messages) == 0 {
		return 0
	}

	slog.InfoContext(ctx, "reclaimed stale pending messages", "count", len(messages))
	for _, msg := range messages {
		r.worker.ProcessMessage(ctx, msg)
	}
	return len(messages)
}
