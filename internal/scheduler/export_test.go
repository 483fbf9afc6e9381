package scheduler

import (
	"context"
	"time"
)

func (s *Scheduler) SetNow(now func() time.Time) {
	s.now = now
}

func (s *Scheduler) SafeTick(ctx context.Context) error {
	return s.safeTick(ctx)
}
