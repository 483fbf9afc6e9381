// Package jira maps Jira webhook and REST payloads into typed, partially
// optional structures. Every field is optional: a missing or malformed section
// yields nil, never an error.
package jira

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/invopop/jsonschema"
)

// WebhookPayload is the wire shape of a Jira webhook delivery. It documents the
// sections this service reads and is published as JSON schema.
type WebhookPayload struct {
	Timestamp          *int64          `json:"timestamp,omitempty" jsonschema:"description=Event time in epoch milliseconds"`
	WebhookEvent       string          `json:"webhookEvent" jsonschema:"example=jira:issue_updated,example=sprint_started"`
	IssueEventTypeName string          `json:"issue_event_type_name,omitempty"`
	User               *UserPayload    `json:"user,omitempty"`
	Issue              *IssuePayload   `json:"issue,omitempty"`
	Sprint             *SprintPayload  `json:"sprint,omitempty"`
	Board              *BoardPayload   `json:"board,omitempty"`
	Changelog          json.RawMessage `json:"changelog,omitempty"`
	Comment            json.RawMessage `json:"comment,omitempty"`
}

type UserPayload struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName,omitempty"`
}

type IssuePayload struct {
	ID     FlexString   `json:"id"`
	Key    string       `json:"key"`
	Fields *IssueFields `json:"fields,omitempty"`
}

// IssueFields lists the system fields read by name. Custom fields
// (customfield_*) are resolved through FieldConfig.
type IssueFields struct {
	Summary    *string         `json:"summary,omitempty"`
	Status     *NamedPayload   `json:"status,omitempty"`
	Priority   *NamedPayload   `json:"priority,omitempty"`
	Assignee   *UserPayload    `json:"assignee,omitempty"`
	Labels     []string        `json:"labels,omitempty"`
	Components []NamedPayload  `json:"components,omitempty"`
	Project    *ProjectPayload `json:"project,omitempty"`
	Updated    *string         `json:"updated,omitempty"`
}

type NamedPayload struct {
	ID   FlexString `json:"id,omitempty"`
	Name string     `json:"name"`
}

type ProjectPayload struct {
	ID  FlexString `json:"id,omitempty"`
	Key string     `json:"key"`
}

type SprintPayload struct {
	ID            FlexString  `json:"id"`
	Name          string      `json:"name,omitempty"`
	State         string      `json:"state,omitempty" jsonschema:"enum=future,enum=active,enum=closed"`
	Goal          *string     `json:"goal,omitempty"`
	StartDate     *string     `json:"startDate,omitempty"`
	EndDate       *string     `json:"endDate,omitempty"`
	CompleteDate  *string     `json:"completeDate,omitempty"`
	OriginBoardID *FlexString `json:"originBoardId,omitempty"`
}

type BoardPayload struct {
	ID       FlexString       `json:"id"`
	Name     string           `json:"name,omitempty"`
	Type     string           `json:"type,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
}

type LocationPayload struct {
	ProjectKey string `json:"projectKey,omitempty"`
}

// FlexString accepts both JSON strings and numbers. Jira sends numeric ids for
// sprints and boards but string ids for issues.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (FlexString) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string"},
			{Type: "integer"},
		},
	}
}

// Schema returns the JSON schema of WebhookPayload.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	s := r.Reflect(&WebhookPayload{})
	s.Title = "Jira webhook payload"
	return s
}
