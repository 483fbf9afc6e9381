package model

import (
	"encoding/json"
	"time"
)

type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether the processor must leave an event in this status alone.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingStatusCompleted || s == ProcessingStatusFailed
}

// Retryable reports whether an operator retry may move the event back to pending.
func (s ProcessingStatus) Retryable() bool {
	return s.Terminal()
}

type EventPriority string

const (
	EventPriorityHigh    EventPriority = "high"
	EventPriorityDefault EventPriority = "default"
)

// WebhookEvent is one accepted inbound Jira delivery. Payload is never
// rewritten after insert.
type WebhookEvent struct {
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	LastProcessedAt      *time.Time       `json:"last_processed_at,omitempty"`
	ProcessedAt          *time.Time       `json:"processed_at,omitempty"`
	ErrorMessage         *string          `json:"error_message,omitempty"`
	ProcessingDurationMs *int64           `json:"processing_duration_ms,omitempty"`
	UserAccountID        *string          `json:"user_account_id,omitempty"`
	IssueID              *string          `json:"issue_id,omitempty"`
	IssueKey             *string          `json:"issue_key,omitempty"`
	ProjectKey           *string          `json:"project_key,omitempty"`
	SprintID             *string          `json:"sprint_id,omitempty"`
	BoardID              *string          `json:"board_id,omitempty"`
	EventID              string           `json:"event_id"`
	EventType            string           `json:"event_type"`
	WebhookEvent         string           `json:"webhook_event,omitempty"`
	UserAgent            string           `json:"user_agent,omitempty"`
	Priority             EventPriority    `json:"priority"`
	ProcessingStatus     ProcessingStatus `json:"processing_status"`
	Payload              json.RawMessage  `json:"payload"`
	ID                   int64            `json:"id"`
	RetryCount           int32            `json:"retry_count"`
	ProcessingAttempts   int32            `json:"processing_attempts"`
	// Retryable is false after a failure no automatic retry can fix.
	Retryable            bool             `json:"retryable"`
}

// WebhookEventStats aggregates event counts for the stats endpoint.
type WebhookEventStats struct {
	ByStatus    map[ProcessingStatus]int64 `json:"by_status"`
	LastHour    int64                      `json:"last_hour"`
	LastDay     int64                      `json:"last_day"`
	Total       int64                      `json:"total"`
	TotalFailed int64                      `json:"total_failed"`
}
