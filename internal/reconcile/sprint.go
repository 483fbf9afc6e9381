package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/id"
	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/mapper"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
	"basegraph.app/trackersync/internal/worker"
)

// SyncSprint reconciles one local sprint record with Jira.
func (r *Reconciler) SyncSprint(ctx context.Context, msg queue.Message) worker.Result {
	sprintID := msg.SprintID
	start := time.Now()
	ctx = logger.WithEntity(ctx, string(model.EntityTypeSprint), sprintID)

	local, err := r.sprints.GetByJiraID(ctx, sprintID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return worker.Retryable(fmt.Errorf("loading sprint %s: %w", sprintID, err))
	}

	state, err := r.ledger.GetOrCreate(ctx, model.EntityTypeSprint, sprintID, sprintID)
	if err != nil {
		return result(err)
	}

	var localContent map[string]any
	localHash := ""
	if local != nil {
		localContent = mapper.SprintContent(local)
		if localHash, err = syncstate.ContentHash(localContent); err != nil {
			return worker.Permanent(err)
		}
		if !msg.Force && state.ContentHash != "" && state.ContentHash == localHash {
			if err := r.ledger.RecordSkipped(ctx, state); err != nil {
				return result(err)
			}
			return worker.Success()
		}
	}

	if err := r.ledger.MarkInProgress(ctx, state); err != nil {
		return result(err)
	}

	counted, calls := tracker.WithCallCounter(ctx)
	remote, err := r.client.GetSprint(counted, sprintID)
	if err != nil {
		if tracker.IsNotFound(err) && local != nil {
			if err := r.sprints.Archive(ctx, sprintID); err != nil {
				return r.fail(ctx, state, err)
			}
			slog.InfoContext(ctx, "sprint no longer exists in jira, archived", "sprint_id", sprintID)
			return result(r.ledger.RecordSuccess(ctx, state, syncstate.Success{
				DurationMs: time.Since(start).Milliseconds(),
				APICalls:   calls.Count(),
			}))
		}
		return r.fail(ctx, state, err)
	}

	record := mapper.Sprint(remote, local)
	remoteContent := mapper.SprintContent(&record)
	remoteHash, err := syncstate.ContentHash(remoteContent)
	if err != nil {
		return worker.Permanent(err)
	}

	applyRemote := true
	if local != nil {
		d := decide(state,
			side{content: localContent, hash: localHash, modified: &local.UpdatedAt},
			side{content: remoteContent, hash: remoteHash},
			r.strategy(model.EntityTypeSprint), r.now())
		if d.conflict != nil {
			if err := r.ledger.RecordConflict(ctx, state, *d.conflict, r.strategy(model.EntityTypeSprint)); err != nil {
				return result(err)
			}
		}
		applyRemote = d.applyRemote
	}

	finalHash := localHash
	if applyRemote {
		if record.ID == 0 {
			record.ID = id.New()
		}
		if _, _, err := r.sprints.Upsert(ctx, &record); err != nil {
			return r.fail(ctx, state, err)
		}
		finalHash = remoteHash
	}

	return result(r.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs:  time.Since(start).Milliseconds(),
		APICalls:    calls.Count(),
		ContentHash: finalHash,
	}))
}
