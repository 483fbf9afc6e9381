package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/mapper"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
)

func (p *Processor) applySprint(ctx context.Context, ev *model.WebhookEvent, sp *jira.Sprint) error {
	start := time.Now()

	prev, err := p.sprints.GetByJiraID(ctx, sp.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading sprint %s: %w", sp.ID, err)
	}

	record := mapper.Sprint(sp, prev)
	if record.ID == 0 {
		record.ID = id.New()
	}

	saved, created, err := p.sprints.Upsert(ctx, &record)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "sprint upserted",
		"sprint_id", saved.JiraID,
		"state", saved.State,
		"created", created)

	if needsIssueSync(ev.EventType, prev, saved) {
		if _, err := p.producer.Enqueue(ctx, queue.Task{
			TaskType: queue.TaskTypeSprintIssuesSync,
			SprintID: saved.JiraID,
		}); err != nil {
			return fmt.Errorf("enqueueing sprint issue sync: %w", err)
		}
	}

	state, err := p.ledger.GetOrCreate(ctx, model.EntityTypeSprint, saved.JiraID, saved.JiraID)
	if err != nil {
		return err
	}
	hash, err := syncstate.ContentHash(mapper.SprintContent(saved))
	if err != nil {
		return permanent(err)
	}
	return p.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs:  time.Since(start).Milliseconds(),
		ContentHash: hash,
	})
}

// needsIssueSync is true when the sprint entered active or closed. Explicit
// start/close events always qualify so a redelivery after a crash still
// enqueues; the queue coalesces duplicates.
func needsIssueSync(eventType string, prev, saved *model.Sprint) bool {
	if saved.State != model.SprintStateActive && saved.State != model.SprintStateClosed {
		return false
	}
	if eventType == "sprint_started" || eventType == "sprint_closed" {
		return true
	}
	return prev == nil || prev.State != saved.State
}

func (p *Processor) archiveSprint(ctx context.Context, sp *jira.Sprint) error {
	if err := p.sprints.Archive(ctx, sp.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.InfoContext(ctx, "deleted sprint was never tracked", "sprint_id", sp.ID)
			return nil
		}
		return err
	}
	slog.InfoContext(ctx, "sprint archived", "sprint_id", sp.ID)
	return nil
}

func (p *Processor) applyBoard(ctx context.Context, b *jira.Board) error {
	board := mapper.Board(b)
	board.ID = id.New()

	saved, created, err := p.boards.Upsert(ctx, &board)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "board upserted", "board_id", saved.JiraID, "created", created)
	return nil
}

func (p *Processor) deactivateBoard(ctx context.Context, b *jira.Board) error {
	if err := p.boards.Deactivate(ctx, b.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	slog.InfoContext(ctx, "board deactivated", "board_id", b.ID)
	return nil
}
