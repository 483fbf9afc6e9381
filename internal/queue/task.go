package queue

import (
	"fmt"
	"strconv"

	"basegraph.app/trackersync/internal/model"
)

type TaskType string

const (
	TaskTypeWebhookEvent     TaskType = "webhook_event"
	TaskTypeIssueSync        TaskType = "issue_sync"
	TaskTypeSprintSync       TaskType = "sprint_sync"
	TaskTypeSprintIssuesSync TaskType = "sprint_issues_sync"
	TaskTypeBoardRefresh     TaskType = "board_refresh"
)

// Class groups task types that share a stream, a rate limit and a retry policy.
type Class string

const (
	ClassWebhook Class = "webhook"
	ClassSync    Class = "sync"
)

func (t TaskType) Class() Class {
	if t == TaskTypeWebhookEvent {
		return ClassWebhook
	}
	return ClassSync
}

type Task struct {
	TaskType       TaskType
	WebhookEventID *int64
	EventType      string
	IssueKey       string
	SprintID       string
	Force          bool
	Priority       model.EventPriority
	TraceID        *string
	Attempt        int
}

// Key is the stable identity used to coalesce re-enqueues of the same work.
func (t Task) Key() string {
	switch t.TaskType {
	case TaskTypeWebhookEvent:
		if t.WebhookEventID != nil {
			return "webhook_event:" + strconv.FormatInt(*t.WebhookEventID, 10)
		}
	case TaskTypeIssueSync:
		return "issue:" + t.IssueKey
	case TaskTypeSprintSync:
		return "sprint:" + t.SprintID
	case TaskTypeSprintIssuesSync:
		return "sprint_issues:" + t.SprintID
	case TaskTypeBoardRefresh:
		return "board_refresh"
	}
	return string(t.TaskType)
}

func (t Task) Validate() error {
	switch t.TaskType {
	case TaskTypeWebhookEvent:
		if t.WebhookEventID == nil {
			return fmt.Errorf("missing webhook_event_id")
		}
	case TaskTypeIssueSync:
		if t.IssueKey == "" {
			return fmt.Errorf("missing issue_key")
		}
	case TaskTypeSprintSync, TaskTypeSprintIssuesSync:
		if t.SprintID == "" {
			return fmt.Errorf("missing sprint_id")
		}
	case TaskTypeBoardRefresh:
	default:
		return fmt.Errorf("unknown task_type %q", t.TaskType)
	}
	return nil
}

func markerKey(t Task) string {
	return fmt.Sprintf("queue:queued:%s:%s", t.TaskType.Class(), t.Key())
}

// HighLane is the stream read before stream for the same class.
func HighLane(stream string) string {
	return stream + ":high"
}

func DLQStream(stream string) string {
	return stream + ":dlq"
}

func DelayedKey(stream string) string {
	return stream + ":delayed"
}
