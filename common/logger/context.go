package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so business context (webhook_event_id,
// entity_id, etc.) is included in every log statement without passing it around.
type LogFields struct {
	WebhookEventID *int64  // webhook_events row id
	EventID        *string // source or derived event id (dedup key)
	MessageID      *string // Redis stream message ID
	TaskType       *string // queue task type (e.g., "webhook_event", "issue_sync")
	EntityType     *string // sync-state entity type
	EntityID       *string // local entity id
	EventType      *string // Jira event type (e.g., "jira:issue_updated")
	Component      string  // Component name, e.g. "trackersync.processor"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.WebhookEventID != nil {
		result.WebhookEventID = new.WebhookEventID
	}
	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.TaskType != nil {
		result.TaskType = new.TaskType
	}
	if new.EntityType != nil {
		result.EntityType = new.EntityType
	}
	if new.EntityID != nil {
		result.EntityID = new.EntityID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

func (f LogFields) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 8)
	if f.WebhookEventID != nil {
		attrs = append(attrs, slog.Int64("webhook_event_id", *f.WebhookEventID))
	}
	for _, s := range []struct {
		key string
		val *string
	}{
		{"event_id", f.EventID},
		{"message_id", f.MessageID},
		{"task_type", f.TaskType},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
		{"event_type", f.EventType},
	} {
		if s.val != nil {
			attrs = append(attrs, slog.String(s.key, *s.val))
		}
	}
	if f.Component != "" {
		attrs = append(attrs, slog.String("component", f.Component))
	}
	return attrs
}

// WithEntity tags logs with the sync-state entity being worked on.
func WithEntity(ctx context.Context, entityType, entityID string) context.Context {
	return WithLogFields(ctx, LogFields{EntityType: &entityType, EntityID: &entityID})
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like payloads or error messages.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
