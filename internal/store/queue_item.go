package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/model"
)

const queueItemColumns = `id, issue_key, issue_id, summary, status, priority, assignee_account_id,
	assignee_display_name, story_points, discipline, labels, components, sprint_jira_id, removed,
	created_at, updated_at`

type queueItemStore struct {
	queries db.Querier
}

func newQueueItemStore(queries db.Querier) QueueItemStore {
	return &queueItemStore{queries: queries}
}

func (s *queueItemStore) ListByIssueKey(ctx context.Context, issueKey string) ([]model.QueueItem, error) {
	rows, err := s.queries.Query(ctx, `
		SELECT `+queueItemColumns+` FROM queue_items WHERE issue_key = $1 ORDER BY id`, issueKey)
	if err != nil {
		return nil, fmt.Errorf("listing queue items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.QueueItem, error) {
		var q model.QueueItem
		err := row.Scan(&q.ID, &q.IssueKey, &q.IssueID, &q.Summary, &q.Status, &q.Priority,
			&q.AssigneeAccountID, &q.AssigneeDisplayName, &q.StoryPoints, &q.Discipline, &q.Labels,
			&q.Components, &q.SprintJiraID, &q.Removed, &q.CreatedAt, &q.UpdatedAt)
		return q, err
	})
}

func (s *queueItemStore) ApplyIssuePatch(ctx context.Context, issueKey string, patch IssuePatch) (int64, error) {
	tag, err := s.queries.Exec(ctx, applyIssuePatchSQL,
		issueKey, patch.IssueID, patch.Summary, patch.Status, patch.Priority, patch.AssigneeAccountID,
		patch.AssigneeDisplayName, patch.StoryPoints, patch.Discipline, patch.SprintJiraID,
		patch.Labels, patch.Components,
		patch.ClearAssignee, patch.ClearStoryPoints, patch.ClearDiscipline, patch.ClearSprint,
	)
	if err != nil {
		return 0, fmt.Errorf("updating queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

const applyIssuePatchSQL = `
		UPDATE queue_items SET
			issue_id = COALESCE($2, issue_id),
			summary = COALESCE($3, summary),
			status = COALESCE($4, status),
			priority = COALESCE($5, priority),
			assignee_account_id = CASE WHEN $13 THEN NULL ELSE COALESCE($6, assignee_account_id) END,
			assignee_display_name = CASE WHEN $13 THEN NULL ELSE COALESCE($7, assignee_display_name) END,
			story_points = CASE WHEN $14 THEN NULL ELSE COALESCE($8, story_points) END,
			discipline = CASE WHEN $15 THEN NULL ELSE COALESCE($9, discipline) END,
			sprint_jira_id = CASE WHEN $16 THEN NULL ELSE COALESCE($10, sprint_jira_id) END,
			labels = COALESCE($11, labels),
			components = COALESCE($12, components),
			updated_at = now()
		WHERE issue_key = $1 AND NOT removed`

func (s *queueItemStore) MarkRemoved(ctx context.Context, issueKey string) (int64, error) {
	tag, err := s.queries.Exec(ctx, `
		UPDATE queue_items SET removed = true, updated_at = now() WHERE issue_key = $1 AND NOT removed`, issueKey)
	if err != nil {
		return 0, fmt.Errorf("marking queue items removed: %w", err)
	}
	return tag.RowsAffected(), nil
}
