package jira

import (
	"strings"

	"basegraph.app/trackersync/internal/model"
)

type Family string

const (
	FamilyUnknown Family = "unknown"
	FamilyIssue   Family = "issue"
	FamilySprint  Family = "sprint"
	FamilyBoard   Family = "board"
)

// Classify maps a webhookEvent value to the processor family that handles it.
// Comment and worklog events carry the parent issue and are processed as issue updates.
func Classify(eventType string) Family {
	switch {
	case strings.HasPrefix(eventType, "jira:issue_"),
		strings.HasPrefix(eventType, "comment_"),
		strings.HasPrefix(eventType, "worklog_"):
		return FamilyIssue
	case strings.HasPrefix(eventType, "sprint_"):
		return FamilySprint
	case strings.HasPrefix(eventType, "board_"):
		return FamilyBoard
	}
	return FamilyUnknown
}

// IsDeletion reports whether the event removes its subject entity.
func IsDeletion(eventType string) bool {
	return eventType == "jira:issue_deleted" || eventType == "sprint_deleted" || eventType == "board_deleted"
}

// PriorityFor is an advisory lane hint: creation, deletion and sprint
// lifecycle changes go to the high lane, routine updates to the default lane.
func PriorityFor(eventType string) model.EventPriority {
	switch {
	case strings.HasSuffix(eventType, "_created"),
		strings.HasSuffix(eventType, "_deleted"),
		eventType == "sprint_started",
		eventType == "sprint_closed":
		return model.EventPriorityHigh
	}
	return model.EventPriorityDefault
}

// Metadata is the denormalized routing information stored with every event.
type Metadata struct {
	UserAccountID *string
	IssueID       *string
	IssueKey      *string
	ProjectKey    *string
	SprintID      *string
	BoardID       *string
	EventType     string
	SubType       string
	Priority      model.EventPriority
}

func (e *Event) Metadata() Metadata {
	m := Metadata{
		EventType: e.Type,
		SubType:   e.SubType,
		Priority:  PriorityFor(e.Type),
	}
	if m.EventType == "" {
		m.EventType = "unknown"
	}
	if e.User != nil {
		m.UserAccountID = &e.User.AccountID
	}
	if e.Issue != nil {
		if e.Issue.ID != "" {
			m.IssueID = &e.Issue.ID
		}
		if e.Issue.Key != "" {
			m.IssueKey = &e.Issue.Key
		}
		m.ProjectKey = e.Issue.ProjectKey
		if e.Issue.Sprint != nil {
			m.SprintID = &e.Issue.Sprint.ID
		}
	}
	if e.Sprint != nil {
		m.SprintID = &e.Sprint.ID
		m.BoardID = e.Sprint.OriginBoardID
	}
	if e.Board != nil {
		m.BoardID = &e.Board.ID
		if m.ProjectKey == nil {
			m.ProjectKey = e.Board.ProjectKey
		}
	}
	return m
}
