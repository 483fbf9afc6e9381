package mapper

import (
	"slices"

	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/store"
)

// IssuePatch maps the fields present on issue onto a queue-item patch.
// Fields the payload did not carry stay nil and leave stored values alone;
// fields sent as null are cleared.
func IssuePatch(issue *jira.Issue) store.IssuePatch {
	patch := store.IssuePatch{
		Summary:     issue.Summary,
		Status:      issue.Status,
		Priority:    issue.Priority,
		StoryPoints: issue.StoryPoints,
		Discipline:  issue.Discipline,
		Labels:      issue.Labels,
		Components:  issue.Components,

		ClearAssignee:    issue.Cleared.Assignee,
		ClearStoryPoints: issue.Cleared.StoryPoints,
		ClearDiscipline:  issue.Cleared.Discipline,
		ClearSprint:      issue.Cleared.Sprint,
	}
	if issue.ID != "" {
		id := issue.ID
		patch.IssueID = &id
	}
	if issue.Assignee != nil {
		accountID := issue.Assignee.AccountID
		patch.AssigneeAccountID = &accountID
		patch.AssigneeDisplayName = issue.Assignee.DisplayName
	}
	if issue.Sprint != nil {
		sprintID := issue.Sprint.ID
		patch.SprintJiraID = &sprintID
	}
	return patch
}

// IssueContent is the synchronized view of an issue used for content hashing.
// Only fields present on the issue are included.
func IssueContent(issue *jira.Issue) map[string]any {
	c := make(map[string]any)
	putString(c, "summary", issue.Summary)
	putString(c, "status", issue.Status)
	putString(c, "priority", issue.Priority)
	putString(c, "discipline", issue.Discipline)
	if issue.StoryPoints != nil {
		c["story_points"] = *issue.StoryPoints
	}
	if issue.Assignee != nil {
		c["assignee"] = issue.Assignee.AccountID
	}
	if issue.Sprint != nil {
		c["sprint"] = issue.Sprint.ID
	}
	if issue.Labels != nil {
		c["labels"] = sorted(issue.Labels)
	}
	if issue.Components != nil {
		c["components"] = sorted(issue.Components)
	}
	return c
}

func putString(c map[string]any, key string, v *string) {
	if v != nil {
		c[key] = *v
	}
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

// QueueItemContent is IssueContent for the local copy of an issue, so the two
// hash equal when they hold the same values.
func QueueItemContent(item *model.QueueItem) map[string]any {
	c := make(map[string]any)
	putString(c, "summary", item.Summary)
	putString(c, "status", item.Status)
	putString(c, "priority", item.Priority)
	putString(c, "discipline", item.Discipline)
	putString(c, "assignee", item.AssigneeAccountID)
	putString(c, "sprint", item.SprintJiraID)
	if item.StoryPoints != nil {
		c["story_points"] = *item.StoryPoints
	}
	if item.Labels != nil {
		c["labels"] = sorted(item.Labels)
	}
	if item.Components != nil {
		c["components"] = sorted(item.Components)
	}
	return c
}
