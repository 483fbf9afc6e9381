package model

import "time"

type SprintState string

const (
	SprintStateFuture SprintState = "future"
	SprintStateActive SprintState = "active"
	SprintStateClosed SprintState = "closed"
)

type Sprint struct {
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	StartDate    *time.Time  `json:"start_date,omitempty"`
	EndDate      *time.Time  `json:"end_date,omitempty"`
	CompleteDate *time.Time  `json:"complete_date,omitempty"`
	Goal         *string     `json:"goal,omitempty"`
	BoardJiraID  *string     `json:"board_jira_id,omitempty"`
	JiraID       string      `json:"jira_id"`
	Name         string      `json:"name"`
	State        SprintState `json:"state"`
	ID           int64       `json:"id"`
	Archived     bool        `json:"archived"`
}

type Board struct {
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ProjectKey *string   `json:"project_key,omitempty"`
	JiraID     string    `json:"jira_id"`
	Name       string    `json:"name"`
	BoardType  string    `json:"board_type"`
	ID         int64     `json:"id"`
	Active     bool      `json:"active"`
}
