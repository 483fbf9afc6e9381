package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/model"
)

const webhookEventColumns = `id, event_id, event_type, webhook_event, payload, user_account_id, issue_id,
	issue_key, project_key, sprint_id, board_id, priority, user_agent, processing_status,
	retry_count, processing_attempts, error_message, retryable, last_processed_at, processed_at,
	processing_duration_ms, created_at, updated_at`

type webhookEventStore struct {
	queries db.Querier
}

func newWebhookEventStore(queries db.Querier) WebhookEventStore {
	return &webhookEventStore{queries: queries}
}

func (s *webhookEventStore) CreateOrGet(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error) {
	row := s.queries.QueryRow(ctx, `
		INSERT INTO webhook_events (id, event_id, event_type, webhook_event, payload, user_account_id,
			issue_id, issue_key, project_key, sprint_id, board_id, priority, user_agent, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'pending')
		ON CONFLICT (event_id) DO NOTHING
		RETURNING `+webhookEventColumns,
		event.ID, event.EventID, event.EventType, event.WebhookEvent, []byte(event.Payload),
		event.UserAccountID, event.IssueID, event.IssueKey, event.ProjectKey, event.SprintID,
		event.BoardID, event.Priority, event.UserAgent,
	)

	created, err := scanWebhookEvent(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting webhook event: %w", err)
	}

	existing, err := s.GetByEventID(ctx, event.EventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *webhookEventStore) GetByID(ctx context.Context, id int64) (*model.WebhookEvent, error) {
	row := s.queries.QueryRow(ctx, `SELECT `+webhookEventColumns+` FROM webhook_events WHERE id = $1`, id)
	return getWebhookEvent(row)
}

func (s *webhookEventStore) GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	row := s.queries.QueryRow(ctx, `SELECT `+webhookEventColumns+` FROM webhook_events WHERE event_id = $1`, eventID)
	return getWebhookEvent(row)
}

func (s *webhookEventStore) Claim(ctx context.Context, id int64, lease time.Duration) (*model.WebhookEvent, error) {
	row := s.queries.QueryRow(ctx, `
		UPDATE webhook_events
		SET processing_status = 'processing',
			processing_attempts = processing_attempts + 1,
			last_processed_at = now(),
			updated_at = now()
		WHERE id = $1
			AND (processing_status = 'pending'
				OR (processing_status = 'processing' AND last_processed_at < now() - make_interval(secs => $2)))
		RETURNING `+webhookEventColumns,
		id, lease.Seconds(),
	)
	return conditionalWebhookEvent(row)
}

func (s *webhookEventStore) MarkCompleted(ctx context.Context, id int64, durationMs int64) error {
	tag, err := s.queries.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = 'completed',
			processed_at = now(),
			processing_duration_ms = $2,
			error_message = NULL,
			updated_at = now()
		WHERE id = $1 AND processing_status = 'processing'`,
		id, durationMs,
	)
	if err != nil {
		return fmt.Errorf("marking webhook event completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (s *webhookEventStore) MarkFailed(ctx context.Context, id int64, errMsg string, retryable bool) error {
	tag, err := s.queries.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = 'failed',
			error_message = $2,
			retryable = $3,
			updated_at = now()
		WHERE id = $1 AND processing_status = 'processing'`,
		id, errMsg, retryable,
	)
	if err != nil {
		return fmt.Errorf("marking webhook event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (s *webhookEventStore) ResetForRetry(ctx context.Context, id int64) (*model.WebhookEvent, error) {
	row := s.queries.QueryRow(ctx, `
		UPDATE webhook_events
		SET processing_status = 'pending',
			retry_count = retry_count + 1,
			retryable = true,
			updated_at = now()
		WHERE id = $1 AND processing_status IN ('failed', 'completed')
		RETURNING `+webhookEventColumns,
		id,
	)
	return conditionalWebhookEvent(row)
}

func (s *webhookEventStore) ResetFailedForAutoRetry(ctx context.Context, id int64, maxRetryCount int32) (*model.WebhookEvent, error) {
	row := s.queries.QueryRow(ctx, `
		UPDATE webhook_events
		SET processing_status = 'pending',
			retry_count = retry_count + 1,
			updated_at = now()
		WHERE id = $1 AND processing_status = 'failed' AND retryable AND retry_count < $2
		RETURNING `+webhookEventColumns,
		id, maxRetryCount,
	)
	return conditionalWebhookEvent(row)
}

func (s *webhookEventStore) ListStale(ctx context.Context, pendingBefore, leaseBefore time.Time, limit int32) ([]model.WebhookEvent, error) {
	rows, err := s.queries.Query(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE (processing_status = 'pending' AND updated_at < $1)
			OR (processing_status = 'processing' AND last_processed_at < $2)
		ORDER BY created_at
		LIMIT $3`,
		pendingBefore, leaseBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale webhook events: %w", err)
	}
	return collectWebhookEvents(rows)
}

func (s *webhookEventStore) ListRetryableFailed(ctx context.Context, maxRetryCount int32, failedBefore time.Time, limit int32) ([]model.WebhookEvent, error) {
	rows, err := s.queries.Query(ctx, `
		SELECT `+webhookEventColumns+`
		FROM webhook_events
		WHERE processing_status = 'failed' AND retryable AND retry_count < $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		maxRetryCount, failedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing retryable webhook events: %w", err)
	}
	return collectWebhookEvents(rows)
}

func (s *webhookEventStore) Stats(ctx context.Context) (*model.WebhookEventStats, error) {
	stats := &model.WebhookEventStats{ByStatus: make(map[model.ProcessingStatus]int64)}

	rows, err := s.queries.Query(ctx, `
		SELECT processing_status, count(*) FROM webhook_events GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("counting webhook events by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status model.ProcessingStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.TotalFailed = stats.ByStatus[model.ProcessingStatusFailed]

	err = s.queries.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE created_at > now() - interval '1 hour'),
			count(*) FILTER (WHERE created_at > now() - interval '1 day')
		FROM webhook_events
		WHERE created_at > now() - interval '1 day'`,
	).Scan(&stats.LastHour, &stats.LastDay)
	if err != nil {
		return nil, fmt.Errorf("counting recent webhook events: %w", err)
	}

	return stats, nil
}

func getWebhookEvent(row pgx.Row) (*model.WebhookEvent, error) {
	event, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return event, nil
}

func conditionalWebhookEvent(row pgx.Row) (*model.WebhookEvent, error) {
	event, err := scanWebhookEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleWrite
		}
		return nil, err
	}
	return event, nil
}

func collectWebhookEvents(rows pgx.Rows) ([]model.WebhookEvent, error) {
	defer rows.Close()

	var result []model.WebhookEvent
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	return result, rows.Err()
}

func scanWebhookEvent(row pgx.Row) (*model.WebhookEvent, error) {
	var e model.WebhookEvent
	var payload []byte
	err := row.Scan(
		&e.ID, &e.EventID, &e.EventType, &e.WebhookEvent, &payload, &e.UserAccountID, &e.IssueID,
		&e.IssueKey, &e.ProjectKey, &e.SprintID, &e.BoardID, &e.Priority, &e.UserAgent,
		&e.ProcessingStatus, &e.RetryCount, &e.ProcessingAttempts, &e.ErrorMessage, &e.Retryable,
		&e.LastProcessedAt, &e.ProcessedAt, &e.ProcessingDurationMs, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
