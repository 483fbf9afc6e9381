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

const sprintColumns = `id, jira_id, name, state, goal, board_jira_id, start_date, end_date,
	complete_date, archived, created_at, updated_at`

type sprintStore struct {
	queries db.Querier
}

func newSprintStore(queries db.Querier) SprintStore {
	return &sprintStore{queries: queries}
}

func (s *sprintStore) GetByJiraID(ctx context.Context, jiraID string) (*model.Sprint, error) {
	row := s.queries.QueryRow(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE jira_id = $1`, jiraID)
	sprint, _, err := scanSprint(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sprint, nil
}

func (s *sprintStore) Upsert(ctx context.Context, sprint *model.Sprint) (*model.Sprint, bool, error) {
	row := s.queries.QueryRow(ctx, `
		INSERT INTO sprints (id, jira_id, name, state, goal, board_jira_id, start_date, end_date, complete_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (jira_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name = '' THEN sprints.name ELSE EXCLUDED.name END,
			state = EXCLUDED.state,
			goal = COALESCE(EXCLUDED.goal, sprints.goal),
			board_jira_id = COALESCE(EXCLUDED.board_jira_id, sprints.board_jira_id),
			start_date = COALESCE(EXCLUDED.start_date, sprints.start_date),
			end_date = COALESCE(EXCLUDED.end_date, sprints.end_date),
			complete_date = COALESCE(EXCLUDED.complete_date, sprints.complete_date),
			archived = false,
			updated_at = now()
		RETURNING `+sprintColumns+`, (xmax = 0) AS inserted`,
		sprint.ID, sprint.JiraID, sprint.Name, sprint.State, sprint.Goal, sprint.BoardJiraID,
		sprint.StartDate, sprint.EndDate, sprint.CompleteDate,
	)

	saved, inserted, err := scanSprint(row, true)
	if err != nil {
		return nil, false, fmt.Errorf("upserting sprint: %w", err)
	}
	return saved, inserted, nil
}

func (s *sprintStore) Archive(ctx context.Context, jiraID string) error {
	tag, err := s.queries.Exec(ctx, `
		UPDATE sprints SET archived = true, updated_at = now() WHERE jira_id = $1`, jiraID)
	if err != nil {
		return fmt.Errorf("archiving sprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sprintStore) ArchiveClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.queries.Exec(ctx, `
		UPDATE sprints
		SET archived = true, updated_at = now()
		WHERE state = 'closed' AND NOT archived AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("archiving closed sprints: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSprint(row pgx.Row, withInserted bool) (*model.Sprint, bool, error) {
	var sp model.Sprint
	var inserted bool
	dest := []any{
		&sp.ID, &sp.JiraID, &sp.Name, &sp.State, &sp.Goal, &sp.BoardJiraID, &sp.StartDate,
		&sp.EndDate, &sp.CompleteDate, &sp.Archived, &sp.CreatedAt, &sp.UpdatedAt,
	}
	if withInserted {
		dest = append(dest, &inserted)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, false, err
	}
	return &sp, inserted, nil
}
