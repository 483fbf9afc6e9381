package jira

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FieldConfig names the custom fields that carry story points, the discipline
// (team) tag and sprint membership. Jira instances differ, so ids are configured.
type FieldConfig struct {
	StoryPointsFields     []string
	DisciplineFields      []string
	SprintFields          []string
	DisciplineFieldPrefix string
}

func DefaultFieldConfig() FieldConfig {
	return FieldConfig{
		StoryPointsFields:     []string{"customfield_10016", "customfield_10026"},
		SprintFields:          []string{"customfield_10020"},
		DisciplineFieldPrefix: "customfield_discipline",
	}
}

// storyPoints returns the first configured field holding a number. cleared
// is set when no field has a value and at least one was sent as null.
func (c FieldConfig) storyPoints(fields map[string]json.RawMessage) (value *float64, cleared bool) {
	for _, key := range c.StoryPointsFields {
		if v := numberValue(fields[key]); v != nil {
			return v, false
		}
		cleared = cleared || isNull(fields[key])
	}
	return nil, cleared
}

func (c FieldConfig) discipline(fields map[string]json.RawMessage) (value *string, cleared bool) {
	for _, key := range c.DisciplineFields {
		if v := optionValue(fields[key]); v != nil {
			return v, false
		}
		cleared = cleared || isNull(fields[key])
	}
	if c.DisciplineFieldPrefix == "" {
		return nil, cleared
	}

	var keys []string
	for key := range fields {
		if strings.HasPrefix(key, c.DisciplineFieldPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if v := optionValue(fields[key]); v != nil {
			return v, false
		}
		cleared = cleared || isNull(fields[key])
	}
	return nil, cleared
}

// sprint picks the active sprint from the sprint field, else the last listed.
// A null or empty list means the issue left every sprint.
func (c FieldConfig) sprint(fields map[string]json.RawMessage) (value *Sprint, cleared bool) {
	for _, key := range c.SprintFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if isNull(raw) {
			cleared = true
			continue
		}
		var sprints []json.RawMessage
		if err := json.Unmarshal(raw, &sprints); err != nil {
			continue
		}
		if len(sprints) == 0 {
			cleared = true
			continue
		}

		var chosen *Sprint
		for _, raw := range sprints {
			sp := ParseSprint(raw)
			if sp == nil {
				continue
			}
			chosen = sp
			if sp.State != nil && *sp.State == "active" {
				return sp, false
			}
		}
		if chosen != nil {
			return chosen, false
		}
	}
	return nil, cleared
}

func numberValue(raw json.RawMessage) *float64 {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	return nil
}

// optionValue reads plain strings, select options ({"value": ...}) and
// multi-selects (first option).
func optionValue(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return &s
		}
		return nil
	}

	var opt struct {
		Value string `json:"value"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(raw, &opt); err == nil {
		if opt.Value != "" {
			return &opt.Value
		}
		if opt.Name != "" {
			return &opt.Name
		}
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if v := optionValue(item); v != nil {
				return v
			}
		}
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
