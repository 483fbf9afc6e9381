// Package scheduler drives the periodic board refresh and sprint cleanup
// independently of webhook traffic.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
)

// Leader gates the periodic jobs to a single instance per deployment.
// *db.AdvisoryLock satisfies it.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Ledger interface {
	GetOrCreate(ctx context.Context, entityType model.EntityType, entityID, jiraID string) (*model.SyncState, error)
	MarkInProgress(ctx context.Context, row *model.SyncState) error
	RecordSuccess(ctx context.Context, row *model.SyncState, res syncstate.Success) error
	RecordFailure(ctx context.Context, row *model.SyncState, message string) error
}

type Config struct {
	Tick            time.Duration
	RefreshInterval time.Duration
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
	ErrorCooldown   time.Duration
}

func (c *Config) defaults() {
	if c.Tick <= 0 {
		c.Tick = time.Minute
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 2 * time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 24 * time.Hour
	}
	if c.CleanupMaxAge <= 0 {
		c.CleanupMaxAge = 30 * 24 * time.Hour
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = 5 * time.Minute
	}
}

// Scheduler is owned by the worker process. Construct one with New, start it
// with Run and stop it with Stop.
type Scheduler struct {
	client   tracker.Client
	boards   store.BoardStore
	sprints  store.SprintStore
	ledger   Ledger
	producer queue.Producer
	leader   Leader
	cfg      Config
	now      func() time.Time

	refreshMu sync.Mutex

	mu          sync.Mutex
	lastRefresh time.Time
	lastCleanup time.Time

	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a scheduler. A nil leader means this instance always runs the
// jobs; a nil producer disables the sprint issue sync follow-ups.
func New(
	client tracker.Client,
	boards store.BoardStore,
	sprints store.SprintStore,
	ledger Ledger,
	producer queue.Producer,
	leader Leader,
	cfg Config,
) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		client:    client,
		boards:    boards,
		sprints:   sprints,
		ledger:    ledger,
		producer:  producer,
		leader:    leader,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or Stop is called. Errors and panics in
// a cycle are logged and followed by the error cooldown.
func (s *Scheduler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "trackersync.scheduler",
	})
	defer close(s.stoppedCh)
	defer s.release(ctx)

	slog.InfoContext(ctx, "scheduler started",
		"tick", s.cfg.Tick,
		"refresh_interval", s.cfg.RefreshInterval,
		"cleanup_interval", s.cfg.CleanupInterval)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		wait := (<-chan time.Time)(ticker.C)
		if err := s.safeTick(ctx); err != nil {
			slog.ErrorContext(ctx, "scheduler cycle failed, cooling down",
				"error", err,
				"cooldown", s.cfg.ErrorCooldown)
			wait = time.After(s.cfg.ErrorCooldown)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "scheduler stopping")
			return
		case <-wait:
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.stoppedCh
}

func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scheduler cycle: %v", r)
		}
	}()
	return s.Tick(ctx)
}

// Tick runs whichever jobs are due. Instances that do not hold leadership do
// nothing.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.leader != nil {
		ok, err := s.leader.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("acquiring scheduler leadership: %w", err)
		}
		if !ok {
			slog.DebugContext(ctx, "another instance holds scheduler leadership")
			return nil
		}
	}

	refreshDue, cleanupDue := s.due()
	var errs []error

	if refreshDue {
		if _, err := s.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if cleanupDue {
		if _, err := s.Cleanup(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) due() (refresh, cleanup bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return now.Sub(s.lastRefresh) >= s.cfg.RefreshInterval,
		now.Sub(s.lastCleanup) >= s.cfg.CleanupInterval
}

// ForceRefresh runs the refresh job now, regardless of when it last ran.
func (s *Scheduler) ForceRefresh(ctx context.Context) error {
	stats, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "forced refresh finished", "boards", stats.BoardsScanned, "board_errors", len(stats.Errors))
	return nil
}

// LastRun reports when each job last ran in this process.
func (s *Scheduler) LastRun() (refresh, cleanup time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh, s.lastCleanup
}

// Cleanup archives closed sprints that have not been touched within the
// configured age.
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.CleanupMaxAge)
	n, err := s.sprints.ArchiveClosedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving closed sprints: %w", err)
	}

	s.mu.Lock()
	s.lastCleanup = s.now()
	s.mu.Unlock()

	slog.InfoContext(ctx, "sprint cleanup finished", "archived", n, "cutoff", cutoff)
	return n, nil
}

func (s *Scheduler) release(ctx context.Context) {
	if s.leader == nil {
		return
	}
	if err := s.leader.Release(context.WithoutCancel(ctx)); err != nil {
		slog.WarnContext(ctx, "releasing scheduler leadership", "error", err)
	}
}
