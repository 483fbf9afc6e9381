// Package reconcile runs the sync tasks that compare local records against
// Jira and record the outcome in the sync-state ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
	"basegraph.app/trackersync/internal/worker"
)

type Ledger interface {
	GetOrCreate(ctx context.Context, entityType model.EntityType, entityID, jiraID string) (*model.SyncState, error)
	MarkInProgress(ctx context.Context, row *model.SyncState) error
	RecordSuccess(ctx context.Context, row *model.SyncState, res syncstate.Success) error
	RecordSkipped(ctx context.Context, row *model.SyncState) error
	RecordFailure(ctx context.Context, row *model.SyncState, message string) error
	RecordConflict(ctx context.Context, row *model.SyncState, conflict model.Conflict, strategy model.ResolutionStrategy) error
}

// Refresher runs a full board refresh on demand.
type Refresher interface {
	ForceRefresh(ctx context.Context) error
}

type Config struct {
	// Strategies picks the conflict resolution per entity type. Missing
	// entries mean manual.
	Strategies map[model.EntityType]model.ResolutionStrategy
}

type Reconciler struct {
	client    tracker.Client
	items     store.QueueItemStore
	sprints   store.SprintStore
	ledger    Ledger
	producer  queue.Producer
	refresher Refresher
	cfg       Config
	now       func() time.Time
}

func New(
	client tracker.Client,
	items store.QueueItemStore,
	sprints store.SprintStore,
	ledger Ledger,
	producer queue.Producer,
	refresher Refresher,
	cfg Config,
) *Reconciler {
	return &Reconciler{
		client:    client,
		items:     items,
		sprints:   sprints,
		ledger:    ledger,
		producer:  producer,
		refresher: refresher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Register binds every sync task type to w.
func (r *Reconciler) Register(w *worker.Worker) {
	w.Register(queue.TaskTypeIssueSync, worker.HandlerFunc(r.SyncIssue))
	w.Register(queue.TaskTypeSprintSync, worker.HandlerFunc(r.SyncSprint))
	w.Register(queue.TaskTypeSprintIssuesSync, worker.HandlerFunc(r.SyncSprintIssues))
	w.Register(queue.TaskTypeBoardRefresh, worker.HandlerFunc(r.RefreshBoards))
}

func (r *Reconciler) RefreshBoards(ctx context.Context, msg queue.Message) worker.Result {
	if r.refresher == nil {
		return worker.Permanent(errors.New("board refresh not configured"))
	}
	if err := r.refresher.ForceRefresh(ctx); err != nil {
		return result(err)
	}
	return worker.Success()
}

func (r *Reconciler) strategy(t model.EntityType) model.ResolutionStrategy {
	if s, ok := r.cfg.Strategies[t]; ok && s.Valid() {
		return s
	}
	return model.ResolutionStrategyManual
}

// result converts an error into a task outcome. Only remote failures that
// cannot clear up by themselves and configuration problems are permanent.
func result(err error) worker.Result {
	if err == nil {
		return worker.Success()
	}
	var apiErr *tracker.APIError
	switch {
	case errors.Is(err, tracker.ErrNoCredential),
		errors.Is(err, syncstate.ErrInvalid):
		return worker.Permanent(err)
	case errors.As(err, &apiErr) && !apiErr.Retryable():
		return worker.Permanent(err)
	}
	return worker.Retryable(err)
}

func (r *Reconciler) fail(ctx context.Context, state *model.SyncState, err error) worker.Result {
	if recErr := r.ledger.RecordFailure(ctx, state, err.Error()); recErr != nil {
		return worker.Retryable(fmt.Errorf("%w (recording failure: %v)", err, recErr))
	}
	return result(err)
}
