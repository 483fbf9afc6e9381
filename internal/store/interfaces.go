package store

import (
	"context"
	"errors"
	"time"

	"basegraph.app/trackersync/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrStaleWrite is returned when a conditional update matched no row because
// another writer changed it first.
var ErrStaleWrite = errors.New("stale write")

// WebhookEventStore defines the contract for webhook event data access.
// Status changes are conditional updates on the row's current status.
type WebhookEventStore interface {
	// CreateOrGet inserts the event or returns the existing row with the same
	// event_id. created is false when the row already existed.
	CreateOrGet(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error)
	GetByID(ctx context.Context, id int64) (*model.WebhookEvent, error)
	GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error)

	// Claim moves a pending event (or a processing one whose lease expired)
	// to processing and bumps processing_attempts. ErrStaleWrite if not claimable.
	Claim(ctx context.Context, id int64, lease time.Duration) (*model.WebhookEvent, error)
	MarkCompleted(ctx context.Context, id int64, durationMs int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, retryable bool) error

	// ResetForRetry moves a failed or completed event back to pending and
	// increments retry_count. ErrStaleWrite if the status does not allow it.
	ResetForRetry(ctx context.Context, id int64) (*model.WebhookEvent, error)
	// ResetFailedForAutoRetry is ResetForRetry restricted to failed rows whose
	// retry_count is below maxRetryCount.
	ResetFailedForAutoRetry(ctx context.Context, id int64, maxRetryCount int32) (*model.WebhookEvent, error)

	ListStale(ctx context.Context, pendingBefore, leaseBefore time.Time, limit int32) ([]model.WebhookEvent, error)
	ListRetryableFailed(ctx context.Context, maxRetryCount int32, failedBefore time.Time, limit int32) ([]model.WebhookEvent, error)
	Stats(ctx context.Context) (*model.WebhookEventStats, error)
}

// SyncStateStore defines the contract for the reconciliation ledger.
type SyncStateStore interface {
	Get(ctx context.Context, entityType model.EntityType, entityID string) (*model.SyncState, error)
	// Insert creates the row or returns the existing one for the same entity.
	Insert(ctx context.Context, state *model.SyncState) (*model.SyncState, bool, error)
	// Update writes every mutable column when the stored version still equals
	// state.Version. ErrStaleWrite otherwise.
	Update(ctx context.Context, state *model.SyncState) (*model.SyncState, error)
	ListPending(ctx context.Context, limit int32) ([]model.SyncState, error)
	ListFailed(ctx context.Context, limit int32) ([]model.SyncState, error)
	ListUnresolvedConflicts(ctx context.Context, limit int32) ([]model.SyncState, error)
}

type SprintStore interface {
	GetByJiraID(ctx context.Context, jiraID string) (*model.Sprint, error)
	// Upsert creates or updates the sprint keyed by jira_id. Nil optional
	// fields keep their stored value.
	Upsert(ctx context.Context, sprint *model.Sprint) (*model.Sprint, bool, error)
	Archive(ctx context.Context, jiraID string) error
	ArchiveClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

type BoardStore interface {
	Upsert(ctx context.Context, board *model.Board) (*model.Board, bool, error)
	ListActive(ctx context.Context) ([]model.Board, error)
	Deactivate(ctx context.Context, jiraID string) error
}

// IssuePatch carries the issue fields a webhook or sync task observed.
// Nil pointers and nil slices leave the stored column unchanged. The Clear
// flags set the column to NULL and win over a value.
type IssuePatch struct {
	IssueID             *string
	Summary             *string
	Status              *string
	Priority            *string
	AssigneeAccountID   *string
	AssigneeDisplayName *string
	StoryPoints         *float64
	Discipline          *string
	SprintJiraID        *string
	Labels              []string
	Components          []string
	ClearAssignee       bool
	ClearStoryPoints    bool
	ClearDiscipline     bool
	ClearSprint         bool
}

type QueueItemStore interface {
	ListByIssueKey(ctx context.Context, issueKey string) ([]model.QueueItem, error)
	ApplyIssuePatch(ctx context.Context, issueKey string, patch IssuePatch) (int64, error)
	MarkRemoved(ctx context.Context, issueKey string) (int64, error)
}

// CredentialStore encrypts the API token on write and decrypts on read.
type CredentialStore interface {
	Upsert(ctx context.Context, cred *model.TrackerCredential) (*model.TrackerCredential, error)
	GetByName(ctx context.Context, name string) (*model.TrackerCredential, error)
}
