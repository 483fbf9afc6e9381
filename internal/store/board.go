package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/trackersync/core/db"
	"basegraph.app/trackersync/internal/model"
)

const boardColumns = `id, jira_id, name, board_type, project_key, active, created_at, updated_at`

type boardStore struct {
	queries db.Querier
}

func newBoardStore(queries db.Querier) BoardStore {
	return &boardStore{queries: queries}
}

func (s *boardStore) Upsert(ctx context.Context, board *model.Board) (*model.Board, bool, error) {
	row := s.queries.QueryRow(ctx, `
		INSERT INTO boards (id, jira_id, name, board_type, project_key, active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (jira_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name = '' THEN boards.name ELSE EXCLUDED.name END,
			board_type = CASE WHEN EXCLUDED.board_type = '' THEN boards.board_type ELSE EXCLUDED.board_type END,
			project_key = COALESCE(EXCLUDED.project_key, boards.project_key),
			active = true,
			updated_at = now()
		RETURNING `+boardColumns+`, (xmax = 0) AS inserted`,
		board.ID, board.JiraID, board.Name, board.BoardType, board.ProjectKey,
	)

	var b model.Board
	var inserted bool
	err := row.Scan(&b.ID, &b.JiraID, &b.Name, &b.BoardType, &b.ProjectKey, &b.Active,
		&b.CreatedAt, &b.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upserting board: %w", err)
	}
	return &b, inserted, nil
}

func (s *boardStore) ListActive(ctx context.Context) ([]model.Board, error) {
	rows, err := s.queries.Query(ctx, `SELECT `+boardColumns+` FROM boards WHERE active ORDER BY jira_id`)
	if err != nil {
		return nil, fmt.Errorf("listing boards: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Board, error) {
		var b model.Board
		err := row.Scan(&b.ID, &b.JiraID, &b.Name, &b.BoardType, &b.ProjectKey, &b.Active,
			&b.CreatedAt, &b.UpdatedAt)
		return b, err
	})
}

func (s *boardStore) Deactivate(ctx context.Context, jiraID string) error {
	tag, err := s.queries.Exec(ctx, `UPDATE boards SET active = false, updated_at = now() WHERE jira_id = $1`, jiraID)
	if err != nil {
		return fmt.Errorf("deactivating board: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
