package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/model"
)

const syncStateColumns = `id, entity_type, entity_id, jira_id, sync_status, sync_direction,
	last_sync_attempt, last_successful_sync, local_modified, remote_modified, error_count,
	last_error, content_hash, conflicts, resolution_strategy, sync_duration_ms, api_calls_count,
	version, created_at, updated_at`

type syncStateStore struct {
	queries db.Querier
}

func newSyncStateStore(queries db.Querier) SyncStateStore {
	return &syncStateStore{queries: queries}
}

func (s *syncStateStore) Get(ctx context.Context, entityType model.EntityType, entityID string) (*model.SyncState, error) {
	row := s.queries.QueryRow(ctx, `
		SELECT `+syncStateColumns+` FROM sync_states WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID,
	)
	state, err := scanSyncState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return state, nil
}

func (s *syncStateStore) Insert(ctx context.Context, state *model.SyncState) (*model.SyncState, bool, error) {
	row := s.queries.QueryRow(ctx, `
		INSERT INTO sync_states (id, entity_type, entity_id, jira_id, sync_status, sync_direction)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_type, entity_id) DO NOTHING
		RETURNING `+syncStateColumns,
		state.ID, state.EntityType, state.EntityID, state.JiraID, state.SyncStatus, state.SyncDirection,
	)

	created, err := scanSyncState(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting sync state: %w", err)
	}

	existing, err := s.Get(ctx, state.EntityType, state.EntityID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *syncStateStore) Update(ctx context.Context, state *model.SyncState) (*model.SyncState, error) {
	var conflicts []byte
	if len(state.Conflicts) > 0 {
		conflicts = state.Conflicts
	}

	row := s.queries.QueryRow(ctx, `
		UPDATE sync_states
		SET jira_id = $3,
			sync_status = $4,
			sync_direction = $5,
			last_sync_attempt = $6,
			last_successful_sync = $7,
			local_modified = $8,
			remote_modified = $9,
			error_count = $10,
			last_error = $11,
			content_hash = $12,
			conflicts = $13,
			resolution_strategy = $14,
			sync_duration_ms = $15,
			api_calls_count = $16,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+syncStateColumns,
		state.ID, state.Version, state.JiraID, state.SyncStatus, state.SyncDirection,
		state.LastSyncAttempt, state.LastSuccessfulSync, state.LocalModified, state.RemoteModified,
		state.ErrorCount, state.LastError, state.ContentHash, conflicts, state.ResolutionStrategy,
		state.SyncDurationMs, state.APICallsCount,
	)

	updated, err := scanSyncState(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleWrite
		}
		return nil, fmt.Errorf("updating sync state: %w", err)
	}
	return updated, nil
}

func (s *syncStateStore) ListPending(ctx context.Context, limit int32) ([]model.SyncState, error) {
	return s.list(ctx, `
		SELECT `+syncStateColumns+`
		FROM sync_states
		WHERE sync_status = 'pending'
		ORDER BY created_at
		LIMIT $1`, limit)
}

func (s *syncStateStore) ListFailed(ctx context.Context, limit int32) ([]model.SyncState, error) {
	return s.list(ctx, `
		SELECT `+syncStateColumns+`
		FROM sync_states
		WHERE sync_status = 'failed'
		ORDER BY error_count DESC, last_sync_attempt DESC NULLS LAST
		LIMIT $1`, limit)
}

func (s *syncStateStore) ListUnresolvedConflicts(ctx context.Context, limit int32) ([]model.SyncState, error) {
	return s.list(ctx, `
		SELECT `+syncStateColumns+`
		FROM sync_states
		WHERE conflicts IS NOT NULL
			AND (resolution_strategy IS NULL OR resolution_strategy = 'manual')
		ORDER BY updated_at
		LIMIT $1`, limit)
}

func (s *syncStateStore) list(ctx context.Context, query string, limit int32) ([]model.SyncState, error) {
	rows, err := s.queries.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync states: %w", err)
	}
	defer rows.Close()

	var result []model.SyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *state)
	}
	return result, rows.Err()
}

func scanSyncState(row pgx.Row) (*model.SyncState, error) {
	var st model.SyncState
	var conflicts []byte
	err := row.Scan(
		&st.ID, &st.EntityType, &st.EntityID, &st.JiraID, &st.SyncStatus, &st.SyncDirection,
		&st.LastSyncAttempt, &st.LastSuccessfulSync, &st.LocalModified, &st.RemoteModified,
		&st.ErrorCount, &st.LastError, &st.ContentHash, &conflicts, &st.ResolutionStrategy,
		&st.SyncDurationMs, &st.APICallsCount, &st.Version, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.Conflicts = conflicts
	return &st, nil
}
