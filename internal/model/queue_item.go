package model

import "time"

// QueueItem is a local planning-queue entry that mirrors a Jira issue.
type QueueItem struct {
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	IssueID             *string   `json:"issue_id,omitempty"`
	Summary             *string   `json:"summary,omitempty"`
	Status              *string   `json:"status,omitempty"`
	Priority            *string   `json:"priority,omitempty"`
	AssigneeAccountID   *string   `json:"assignee_account_id,omitempty"`
	AssigneeDisplayName *string   `json:"assignee_display_name,omitempty"`
	StoryPoints         *float64  `json:"story_points,omitempty"`
	Discipline          *string   `json:"discipline,omitempty"`
	SprintJiraID        *string   `json:"sprint_jira_id,omitempty"`
	IssueKey            string    `json:"issue_key"`
	Labels              []string  `json:"labels"`
	Components          []string  `json:"components"`
	ID                  int64     `json:"id"`
	Removed             bool      `json:"removed"`
}
