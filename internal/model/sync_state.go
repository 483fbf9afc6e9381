package model

import (
	"encoding/json"
	"time"
)

type EntityType string

const (
	EntityTypeSprint  EntityType = "sprint"
	EntityTypeIssue   EntityType = "issue"
	EntityTypeProject EntityType = "project"
	EntityTypeBoard   EntityType = "board"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeSprint, EntityTypeIssue, EntityTypeProject, EntityTypeBoard:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
	SyncStatusSkipped    SyncStatus = "skipped"
)

func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusInProgress, SyncStatusCompleted, SyncStatusFailed, SyncStatusSkipped:
		return true
	}
	return false
}

type SyncDirection string

const (
	SyncDirectionLocalToRemote SyncDirection = "local_to_remote"
	SyncDirectionRemoteToLocal SyncDirection = "remote_to_local"
	SyncDirectionBidirectional SyncDirection = "bidirectional"
)

func (d SyncDirection) Valid() bool {
	switch d {
	case SyncDirectionLocalToRemote, SyncDirectionRemoteToLocal, SyncDirectionBidirectional:
		return true
	}
	return false
}

type ResolutionStrategy string

const (
	ResolutionStrategyAuto      ResolutionStrategy = "auto"
	ResolutionStrategyManual    ResolutionStrategy = "manual"
	ResolutionStrategyJiraWins  ResolutionStrategy = "jira_wins"
	ResolutionStrategyLocalWins ResolutionStrategy = "local_wins"
)

func (r ResolutionStrategy) Valid() bool {
	switch r {
	case ResolutionStrategyAuto, ResolutionStrategyManual, ResolutionStrategyJiraWins, ResolutionStrategyLocalWins:
		return true
	}
	return false
}

// SyncState is the reconciliation ledger row for one tracked entity.
// Version increments on every write and guards concurrent updates.
type SyncState struct {
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	LastSyncAttempt    *time.Time          `json:"last_sync_attempt,omitempty"`
	LastSuccessfulSync *time.Time          `json:"last_successful_sync,omitempty"`
	LocalModified      *time.Time          `json:"local_modified,omitempty"`
	RemoteModified     *time.Time          `json:"remote_modified,omitempty"`
	LastError          *string             `json:"last_error,omitempty"`
	ResolutionStrategy *ResolutionStrategy `json:"resolution_strategy,omitempty"`
	Conflicts          json.RawMessage     `json:"conflicts,omitempty"`
	EntityType         EntityType          `json:"entity_type"`
	EntityID           string              `json:"entity_id"`
	JiraID             string              `json:"jira_id"`
	SyncStatus         SyncStatus          `json:"sync_status"`
	SyncDirection      SyncDirection       `json:"sync_direction"`
	ContentHash        string              `json:"content_hash,omitempty"`
	ID                 int64               `json:"id"`
	SyncDurationMs     int64               `json:"sync_duration_ms"`
	Version            int64               `json:"version"`
	ErrorCount         int32               `json:"error_count"`
	APICallsCount      int32               `json:"api_calls_count"`
}

// HasUnresolvedConflict reports whether a human still has to look at the row.
func (s *SyncState) HasUnresolvedConflict() bool {
	if len(s.Conflicts) == 0 || string(s.Conflicts) == "null" {
		return false
	}
	return s.ResolutionStrategy == nil || *s.ResolutionStrategy == ResolutionStrategyManual
}

// Conflict describes divergence between the local record and Jira.
type Conflict struct {
	DetectedAt     time.Time      `json:"detected_at"`
	LocalModified  *time.Time     `json:"local_modified,omitempty"`
	RemoteModified *time.Time     `json:"remote_modified,omitempty"`
	Local          map[string]any `json:"local,omitempty"`
	Remote         map[string]any `json:"remote,omitempty"`
	Fields         []string       `json:"fields,omitempty"`
	LocalHash      string         `json:"local_hash"`
	RemoteHash     string         `json:"remote_hash"`
	AppliedSide    string         `json:"applied_side,omitempty"`
}
