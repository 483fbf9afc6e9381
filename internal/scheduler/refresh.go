package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/mapper"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
)

type BoardError struct {
	BoardID string
	Err     error
}

func (e BoardError) Error() string {
	return fmt.Sprintf("board %s: %v", e.BoardID, e.Err)
}

func (e BoardError) Unwrap() error { return e.Err }

type RefreshStats struct {
	BoardsDiscovered int
	BoardsScanned    int
	SprintsFound     int
	SprintsCreated   int
	SprintsUpdated   int
	SprintsUnchanged int
	Errors           []BoardError
}

// Refresh walks every tracked board and upserts its sprints. A failing board
// is recorded in the stats and does not stop the others; only failing to list
// the boards is an error.
func (s *Scheduler) Refresh(ctx context.Context) (RefreshStats, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	var stats RefreshStats

	boards, err := s.boards.ListActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing boards: %w", err)
	}
	if len(boards) == 0 {
		if boards, err = s.discoverBoards(ctx); err != nil {
			return stats, err
		}
		stats.BoardsDiscovered = len(boards)
	}

	for i := range boards {
		if err := s.refreshBoard(ctx, &boards[i], &stats); err != nil {
			slog.WarnContext(ctx, "board refresh failed", "board_id", boards[i].JiraID, "error", err)
			stats.Errors = append(stats.Errors, BoardError{BoardID: boards[i].JiraID, Err: err})
		}
		stats.BoardsScanned++
	}

	s.mu.Lock()
	s.lastRefresh = s.now()
	s.mu.Unlock()

	slog.InfoContext(ctx, "board refresh finished",
		"boards_scanned", stats.BoardsScanned,
		"boards_discovered", stats.BoardsDiscovered,
		"sprints_found", stats.SprintsFound,
		"sprints_created", stats.SprintsCreated,
		"sprints_updated", stats.SprintsUpdated,
		"errors", len(stats.Errors),
		"duration_ms", time.Since(start).Milliseconds())

	return stats, nil
}

// discoverBoards seeds the board table from Jira when nothing is tracked yet.
func (s *Scheduler) discoverBoards(ctx context.Context) ([]model.Board, error) {
	remote, err := s.client.ListBoards(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering boards: %w", err)
	}

	out := make([]model.Board, 0, len(remote))
	for i := range remote {
		board := mapper.Board(&remote[i])
		board.ID = id.New()
		saved, _, err := s.boards.Upsert(ctx, &board)
		if err != nil {
			return nil, fmt.Errorf("saving board %s: %w", board.JiraID, err)
		}
		out = append(out, *saved)
	}
	slog.InfoContext(ctx, "discovered boards", "count", len(out))
	return out, nil
}

func (s *Scheduler) refreshBoard(ctx context.Context, board *model.Board, stats *RefreshStats) error {
	start := time.Now()
	ctx = logger.WithEntity(ctx, string(model.EntityTypeBoard), board.JiraID)

	state, err := s.ledger.GetOrCreate(ctx, model.EntityTypeBoard, board.JiraID, board.JiraID)
	if err != nil {
		return err
	}
	if err := s.ledger.MarkInProgress(ctx, state); err != nil {
		return err
	}

	counted, calls := tracker.WithCallCounter(ctx)
	sprints, err := s.client.ListBoardSprints(counted, board.JiraID)
	if err != nil {
		s.recordFailure(ctx, state, err)
		return err
	}
	stats.SprintsFound += len(sprints)

	var errs []error
	for i := range sprints {
		if sprints[i].OriginBoardID == nil {
			sprints[i].OriginBoardID = &board.JiraID
		}
		if err := s.upsertSprint(ctx, &sprints[i], stats); err != nil {
			errs = append(errs, fmt.Errorf("sprint %s: %w", sprints[i].ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.recordFailure(ctx, state, err)
		return err
	}

	return s.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs: time.Since(start).Milliseconds(),
		APICalls:   calls.Count(),
	})
}

func (s *Scheduler) upsertSprint(ctx context.Context, sp *jira.Sprint, stats *RefreshStats) error {
	prev, err := s.sprints.GetByJiraID(ctx, sp.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	record := mapper.Sprint(sp, prev)
	hash, err := syncstate.ContentHash(mapper.SprintContent(&record))
	if err != nil {
		return err
	}
	if prev != nil {
		prevHash, err := syncstate.ContentHash(mapper.SprintContent(prev))
		if err != nil {
			return err
		}
		if prevHash == hash {
			stats.SprintsUnchanged++
			return nil
		}
	}

	if record.ID == 0 {
		record.ID = id.New()
	}
	saved, created, err := s.sprints.Upsert(ctx, &record)
	if err != nil {
		return err
	}
	if created {
		stats.SprintsCreated++
	} else {
		stats.SprintsUpdated++
	}

	if s.producer != nil && saved.State != model.SprintStateFuture && (prev == nil || prev.State != saved.State) {
		if _, err := s.producer.Enqueue(ctx, queue.Task{
			TaskType: queue.TaskTypeSprintIssuesSync,
			SprintID: saved.JiraID,
		}); err != nil {
			slog.WarnContext(ctx, "enqueueing sprint issue sync", "sprint_id", saved.JiraID, "error", err)
		}
	}

	state, err := s.ledger.GetOrCreate(ctx, model.EntityTypeSprint, saved.JiraID, saved.JiraID)
	if err != nil {
		return err
	}
	return s.ledger.RecordSuccess(ctx, state, syncstate.Success{ContentHash: hash})
}

func (s *Scheduler) recordFailure(ctx context.Context, state *model.SyncState, cause error) {
	if err := s.ledger.RecordFailure(ctx, state, cause.Error()); err != nil {
		slog.WarnContext(ctx, "recording board sync failure", "board_id", state.EntityID, "error", err)
	}
}
