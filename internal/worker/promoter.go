package worker

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/logger"
)

// RetryPromoter moves delayed retries back onto their stream once due.
type RetryPromoter struct {
	promoter Promoter
	interval time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewRetryPromoter(promoter Promoter, interval time.Duration) *RetryPromoter {
	return &RetryPromoter{
		promoter:  promoter,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (p *RetryPromoter) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trackersync.worker.promoter",
	})

	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if _, err := p.promoter.PromoteDue(ctx, 100); err != nil {
				slog.ErrorContext(ctx, "promoting delayed retries failed", "error", err)
			}
		}
	}
}

func (p *RetryPromoter) Stop() {
	close(p.stopCh)
	<-p.stoppedCh
}
