package jira

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrMalformed = errors.New("payload is not a JSON object")

// Event is the typed view of a webhook delivery.
type Event struct {
	OccurredAt *time.Time
	User       *User
	Issue      *Issue
	Sprint     *Sprint
	Board      *Board
	Type       string
	SubType    string
}

type User struct {
	AccountID   string
	DisplayName *string
}

type Issue struct {
	ProjectKey  *string
	ProjectID   *string
	Summary     *string
	Status      *string
	Priority    *string
	Assignee    *User
	StoryPoints *float64
	Discipline  *string
	Sprint      *Sprint
	Updated     *time.Time
	ID          string
	Key         string
	Labels      []string
	Components  []string
	// Cleared holds fields the payload carried as an explicit null. They
	// differ from absent fields, which say nothing about the stored value.
	Cleared ClearedFields
}

type ClearedFields struct {
	Assignee    bool
	StoryPoints bool
	Discipline  bool
	Sprint      bool
}

type Sprint struct {
	Name          *string
	State         *string
	Goal          *string
	StartDate     *time.Time
	EndDate       *time.Time
	CompleteDate  *time.Time
	OriginBoardID *string
	ID            string
}

type Board struct {
	Name       *string
	Type       *string
	ProjectKey *string
	ID         string
}

// Parse decodes a webhook body. Only a body that is not a JSON object is an
// error; every section that is absent or has an unexpected shape is left nil.
func Parse(body []byte, cfg FieldConfig) (*Event, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		return nil, ErrMalformed
	}

	ev := &Event{
		Type:    stringValue(top["webhookEvent"]),
		SubType: stringValue(top["issue_event_type_name"]),
		User:    parseUser(top["user"]),
		Issue:   ParseIssue(top["issue"], cfg),
		Sprint:  ParseSprint(top["sprint"]),
		Board:   ParseBoard(top["board"]),
	}

	var ts int64
	if err := json.Unmarshal(top["timestamp"], &ts); err == nil && ts > 0 {
		t := time.UnixMilli(ts).UTC()
		ev.OccurredAt = &t
	}

	return ev, nil
}

// ParseIssue reads an issue object as found in webhooks and in the REST API.
func ParseIssue(raw json.RawMessage, cfg FieldConfig) *Issue {
	var p struct {
		ID     FlexString                 `json:"id"`
		Key    string                     `json:"key"`
		Fields map[string]json.RawMessage `json:"fields"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return nil
	}
	if p.ID == "" && p.Key == "" {
		return nil
	}

	issue := &Issue{ID: string(p.ID), Key: p.Key}
	f := p.Fields
	if f == nil {
		return issue
	}

	issue.Summary = optionalString(f["summary"])
	issue.Status = namedValue(f["status"])
	issue.Priority = namedValue(f["priority"])
	issue.Assignee = parseUser(f["assignee"])
	issue.Cleared.Assignee = isNull(f["assignee"])
	issue.Updated = parseTime(optionalString(f["updated"]))

	var project ProjectPayload
	if decodeInto(f["project"], &project) {
		if project.Key != "" {
			issue.ProjectKey = &project.Key
		}
		if project.ID != "" {
			id := string(project.ID)
			issue.ProjectID = &id
		}
	}

	var labels []string
	if decodeInto(f["labels"], &labels) {
		issue.Labels = nonNil(labels)
	}

	var components []NamedPayload
	if decodeInto(f["components"], &components) {
		names := make([]string, 0, len(components))
		for _, c := range components {
			if c.Name != "" {
				names = append(names, c.Name)
			}
		}
		issue.Components = names
	}

	issue.StoryPoints, issue.Cleared.StoryPoints = cfg.storyPoints(f)
	issue.Discipline, issue.Cleared.Discipline = cfg.discipline(f)
	issue.Sprint, issue.Cleared.Sprint = cfg.sprint(f)

	return issue
}

// ParseSprint reads a sprint object from a webhook, the sprint custom field or
// the agile REST API.
func ParseSprint(raw json.RawMessage) *Sprint {
	var p SprintPayload
	if !decodeInto(raw, &p) || p.ID == "" {
		return nil
	}

	sp := &Sprint{
		ID:           string(p.ID),
		Goal:         p.Goal,
		StartDate:    parseTime(p.StartDate),
		EndDate:      parseTime(p.EndDate),
		CompleteDate: parseTime(p.CompleteDate),
	}
	if p.Name != "" {
		sp.Name = &p.Name
	}
	if p.State != "" {
		state := strings.ToLower(p.State)
		sp.State = &state
	}
	if p.OriginBoardID != nil && *p.OriginBoardID != "" {
		board := string(*p.OriginBoardID)
		sp.OriginBoardID = &board
	}
	return sp
}

func ParseBoard(raw json.RawMessage) *Board {
	var p BoardPayload
	if !decodeInto(raw, &p) || p.ID == "" {
		return nil
	}

	b := &Board{ID: string(p.ID)}
	if p.Name != "" {
		b.Name = &p.Name
	}
	if p.Type != "" {
		b.Type = &p.Type
	}
	if p.Location != nil && p.Location.ProjectKey != "" {
		b.ProjectKey = &p.Location.ProjectKey
	}
	return b
}

func parseUser(raw json.RawMessage) *User {
	var p UserPayload
	if !decodeInto(raw, &p) || p.AccountID == "" {
		return nil
	}
	u := &User{AccountID: p.AccountID}
	if p.DisplayName != "" {
		u.DisplayName = &p.DisplayName
	}
	return u
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func decodeInto(raw json.RawMessage, v any) bool {
	if len(raw) == 0 || isNull(raw) {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func stringValue(raw json.RawMessage) string {
	if s := optionalString(raw); s != nil {
		return *s
	}
	return ""
}

func optionalString(raw json.RawMessage) *string {
	var s string
	if !decodeInto(raw, &s) {
		return nil
	}
	return &s
}

func namedValue(raw json.RawMessage) *string {
	var n NamedPayload
	if !decodeInto(raw, &n) || n.Name == "" {
		return nil
	}
	return &n.Name
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
