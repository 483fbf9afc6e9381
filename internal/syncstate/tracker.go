package syncstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/store"
)

// ErrInvalid is returned before any write when a row holds a value outside
// its closed set or a negative counter.
var ErrInvalid = errors.New("invalid sync state")

const (
	defaultListLimit  = 100
	maxUpdateAttempts = 5
)

// Success carries what a completed sync observed. Zero fields leave the
// stored value alone, except DurationMs which is always written.
type Success struct {
	DurationMs     int64
	APICalls       int32
	ContentHash    string
	LocalModified  *time.Time
	RemoteModified *time.Time
}

// Tracker is the reconciliation ledger. Every write is a read-modify-write
// conditioned on the row version, re-read and re-applied when another writer
// got there first.
type Tracker struct {
	states    store.SyncStateStore
	direction model.SyncDirection
	now       func() time.Time
}

func New(states store.SyncStateStore) *Tracker {
	return &Tracker{
		states:    states,
		direction: model.SyncDirectionRemoteToLocal,
		now:       time.Now,
	}
}

// GetOrCreate returns the row for the entity, creating it as pending on first use.
func (t *Tracker) GetOrCreate(ctx context.Context, entityType model.EntityType, entityID, jiraID string) (*model.SyncState, error) {
	state, err := t.states.Get(ctx, entityType, entityID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading sync state: %w", err)
	}

	fresh := &model.SyncState{
		ID:            id.New(),
		EntityType:    entityType,
		EntityID:      entityID,
		JiraID:        jiraID,
		SyncStatus:    model.SyncStatusPending,
		SyncDirection: t.direction,
	}
	if err := Validate(fresh); err != nil {
		return nil, err
	}

	state, created, err := t.states.Insert(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("creating sync state: %w", err)
	}
	if created {
		slog.DebugContext(ctx, "sync state created",
			"entity_type", entityType,
			"entity_id", entityID)
	}
	return state, nil
}

// MarkInProgress records the start of a sync attempt.
func (t *Tracker) MarkInProgress(ctx context.Context, row *model.SyncState) error {
	now := t.now()
	return t.update(ctx, row, func(s *model.SyncState) {
		s.SyncStatus = model.SyncStatusInProgress
		s.LastSyncAttempt = &now
	})
}

func (t *Tracker) RecordSuccess(ctx context.Context, row *model.SyncState, res Success) error {
	now := t.now()
	return t.update(ctx, row, func(s *model.SyncState) {
		s.SyncStatus = model.SyncStatusCompleted
		s.LastSyncAttempt = &now
		s.LastSuccessfulSync = &now
		s.ErrorCount = 0
		s.LastError = nil
		s.SyncDurationMs = res.DurationMs
		s.APICallsCount += res.APICalls
		if res.ContentHash != "" {
			s.ContentHash = res.ContentHash
		}
		if res.LocalModified != nil {
			s.LocalModified = res.LocalModified
		}
		if res.RemoteModified != nil {
			s.RemoteModified = res.RemoteModified
		}
	})
}

// RecordSkipped marks an attempt that found nothing to do. Counters and
// hashes are left as they are.
func (t *Tracker) RecordSkipped(ctx context.Context, row *model.SyncState) error {
	now := t.now()
	return t.update(ctx, row, func(s *model.SyncState) {
		s.SyncStatus = model.SyncStatusSkipped
		s.LastSyncAttempt = &now
	})
}

func (t *Tracker) RecordFailure(ctx context.Context, row *model.SyncState, message string) error {
	now := t.now()
	return t.update(ctx, row, func(s *model.SyncState) {
		s.SyncStatus = model.SyncStatusFailed
		s.LastSyncAttempt = &now
		s.ErrorCount++
		s.LastError = &message
	})
}

// RecordConflict stores the divergence without touching sync_status. An
// empty strategy means manual.
func (t *Tracker) RecordConflict(ctx context.Context, row *model.SyncState, conflict model.Conflict, strategy model.ResolutionStrategy) error {
	if strategy == "" {
		strategy = model.ResolutionStrategyManual
	}
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = t.now()
	}
	payload, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("encoding conflict: %w", err)
	}

	return t.update(ctx, row, func(s *model.SyncState) {
		s.Conflicts = payload
		s.ResolutionStrategy = &strategy
	})
}

// ClearConflict drops a previously recorded divergence once it has been resolved.
func (t *Tracker) ClearConflict(ctx context.Context, row *model.SyncState) error {
	return t.update(ctx, row, func(s *model.SyncState) {
		s.Conflicts = nil
		s.ResolutionStrategy = nil
	})
}

func (t *Tracker) ListPending(ctx context.Context, limit int32) ([]model.SyncState, error) {
	return t.states.ListPending(ctx, listLimit(limit))
}

func (t *Tracker) ListFailed(ctx context.Context, limit int32) ([]model.SyncState, error) {
	return t.states.ListFailed(ctx, listLimit(limit))
}

func (t *Tracker) ListUnresolvedConflicts(ctx context.Context, limit int32) ([]model.SyncState, error) {
	return t.states.ListUnresolvedConflicts(ctx, listLimit(limit))
}

// update applies mutate to a copy of row and writes it. On a stale write the
// row is re-read and mutate applied again. row is replaced with the stored
// result on success and left untouched on failure.
func (t *Tracker) update(ctx context.Context, row *model.SyncState, mutate func(*model.SyncState)) error {
	current := *row

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		next := current
		mutate(&next)
		if err := Validate(&next); err != nil {
			return err
		}

		updated, err := t.states.Update(ctx, &next)
		if err == nil {
			*row = *updated
			return nil
		}
		if !errors.Is(err, store.ErrStaleWrite) {
			return fmt.Errorf("writing sync state: %w", err)
		}

		slog.DebugContext(ctx, "sync state changed underneath, re-reading",
			"entity_type", current.EntityType,
			"entity_id", current.EntityID,
			"attempt", attempt)

		fresh, err := t.states.Get(ctx, current.EntityType, current.EntityID)
		if err != nil {
			return fmt.Errorf("re-reading sync state: %w", err)
		}
		current = *fresh
	}

	return fmt.Errorf("writing sync state %s/%s: %w", row.EntityType, row.EntityID, store.ErrStaleWrite)
}

// Validate checks every closed set and counter on the row.
func Validate(s *model.SyncState) error {
	switch {
	case !s.EntityType.Valid():
		return fmt.Errorf("%w: entity_type %q", ErrInvalid, s.EntityType)
	case s.EntityID == "":
		return fmt.Errorf("%w: empty entity_id", ErrInvalid)
	case !s.SyncStatus.Valid():
		return fmt.Errorf("%w: sync_status %q", ErrInvalid, s.SyncStatus)
	case !s.SyncDirection.Valid():
		return fmt.Errorf("%w: sync_direction %q", ErrInvalid, s.SyncDirection)
	case s.ResolutionStrategy != nil && !s.ResolutionStrategy.Valid():
		return fmt.Errorf("%w: resolution_strategy %q", ErrInvalid, *s.ResolutionStrategy)
	case s.ErrorCount < 0:
		return fmt.Errorf("%w: negative error_count", ErrInvalid)
	case s.SyncDurationMs < 0:
		return fmt.Errorf("%w: negative sync_duration_ms", ErrInvalid)
	case s.APICallsCount < 0:
		return fmt.Errorf("%w: negative api_calls_count", ErrInvalid)
	}
	return nil
}

func listLimit(limit int32) int32 {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
