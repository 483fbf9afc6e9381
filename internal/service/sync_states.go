package service

import (
	"context"
	"errors"
	"fmt"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/store"
)

var (
	ErrSyncStateNotFound = errors.New("sync state not found")
	ErrInvalidSyncFilter = errors.New("invalid sync state filter")
	ErrNoConflict        = errors.New("sync state has no unresolved conflict")
)

type SyncStateFilter string

const (
	SyncStateFilterPending   SyncStateFilter = "pending"
	SyncStateFilterFailed    SyncStateFilter = "failed"
	SyncStateFilterConflicts SyncStateFilter = "conflicts"
)

// SyncLedger is the part of the sync-state tracker the admin surface reads
// and resolves through.
type SyncLedger interface {
	ListPending(ctx context.Context, limit int32) ([]model.SyncState, error)
	ListFailed(ctx context.Context, limit int32) ([]model.SyncState, error)
	ListUnresolvedConflicts(ctx context.Context, limit int32) ([]model.SyncState, error)
	ClearConflict(ctx context.Context, row *model.SyncState) error
}

type SyncStateService interface {
	List(ctx context.Context, filter SyncStateFilter, limit int32) ([]model.SyncState, error)
	Get(ctx context.Context, entityType model.EntityType, entityID string) (*model.SyncState, error)
	// ResolveConflict marks a manually reviewed divergence as handled.
	ResolveConflict(ctx context.Context, entityType model.EntityType, entityID string) (*model.SyncState, error)
}

type syncStateService struct {
	states store.SyncStateStore
	ledger SyncLedger
}

func NewSyncStateService(states store.SyncStateStore, ledger SyncLedger) SyncStateService {
	return &syncStateService{states: states, ledger: ledger}
}

func (s *syncStateService) List(ctx context.Context, filter SyncStateFilter, limit int32) ([]model.SyncState, error) {
	switch filter {
	case SyncStateFilterPending:
		return s.ledger.ListPending(ctx, limit)
	case SyncStateFilterFailed:
		return s.ledger.ListFailed(ctx, limit)
	case SyncStateFilterConflicts:
		return s.ledger.ListUnresolvedConflicts(ctx, limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSyncFilter, filter)
	}
}

func (s *syncStateService) Get(ctx context.Context, entityType model.EntityType, entityID string) (*model.SyncState, error) {
	row, err := s.states.Get(ctx, entityType, entityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSyncStateNotFound
		}
		return nil, fmt.Errorf("getting sync state: %w", err)
	}
	return row, nil
}

func (s *syncStateService) ResolveConflict(ctx context.Context, entityType model.EntityType, entityID string) (*model.SyncState, error) {
	row, err := s.Get(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if !row.HasUnresolvedConflict() {
		return nil, ErrNoConflict
	}
	if err := s.ledger.ClearConflict(ctx, row); err != nil {
		return nil, fmt.Errorf("clearing conflict: %w", err)
	}
	return row, nil
}
