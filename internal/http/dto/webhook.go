package dto

import (
	"time"

	"basegraph.app/trackersync/internal/model"
)

type WebhookReceivedResponse struct {
	Status           string `json:"status"`
	EventID          string `json:"event_id"`
	EventType        string `json:"event_type,omitempty"`
	ProcessingStatus string `json:"processing_status,omitempty"`
}

type WebhookEventResponse struct {
	ID                   int64                  `json:"id,string"`
	EventID              string                 `json:"event_id"`
	EventType            string                 `json:"event_type"`
	ProcessingStatus     model.ProcessingStatus `json:"processing_status"`
	Priority             model.EventPriority    `json:"priority"`
	IssueKey             *string                `json:"issue_key,omitempty"`
	SprintID             *string                `json:"sprint_id,omitempty"`
	BoardID              *string                `json:"board_id,omitempty"`
	RetryCount           int32                  `json:"retry_count"`
	ProcessingAttempts   int32                  `json:"processing_attempts"`
	ErrorMessage         *string                `json:"error_message,omitempty"`
	Retryable            bool                   `json:"retryable"`
	ProcessingDurationMs *int64                 `json:"processing_duration_ms,omitempty"`
	LastProcessedAt      *time.Time             `json:"last_processed_at,omitempty"`
	ProcessedAt          *time.Time             `json:"processed_at,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

func NewWebhookEventResponse(ev *model.WebhookEvent) WebhookEventResponse {
	return WebhookEventResponse{
		ID:                   ev.ID,
		EventID:              ev.EventID,
		EventType:            ev.EventType,
		ProcessingStatus:     ev.ProcessingStatus,
		Priority:             ev.Priority,
		IssueKey:             ev.IssueKey,
		SprintID:             ev.SprintID,
		BoardID:              ev.BoardID,
		RetryCount:           ev.RetryCount,
		ProcessingAttempts:   ev.ProcessingAttempts,
		ErrorMessage:         ev.ErrorMessage,
		Retryable:            ev.Retryable,
		ProcessingDurationMs: ev.ProcessingDurationMs,
		LastProcessedAt:      ev.LastProcessedAt,
		ProcessedAt:          ev.ProcessedAt,
		CreatedAt:            ev.CreatedAt,
	}
}

type RetryResponse struct {
	Status     string `json:"status"`
	EventID    string `json:"event_id"`
	RetryCount int32  `json:"retry_count"`
	Enqueued   bool   `json:"enqueued"`
}

type RefreshResponse struct {
	Status string `json:"status"`
}

type SyncStateListResponse struct {
	Filter string            `json:"filter"`
	Count  int               `json:"count"`
	Items  []model.SyncState `json:"items"`
}
