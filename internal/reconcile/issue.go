package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/mapper"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
	"basegraph.app/trackersync/internal/worker"
)

// SyncIssue reconciles the local queue items of one issue with Jira.
func (r *Reconciler) SyncIssue(ctx context.Context, msg queue.Message) worker.Result {
	key := msg.IssueKey
	start := time.Now()
	ctx = logger.WithEntity(ctx, string(model.EntityTypeIssue), key)

	items, err := r.items.ListByIssueKey(ctx, key)
	if err != nil {
		return worker.Retryable(fmt.Errorf("loading queue items for %s: %w", key, err))
	}
	if len(items) == 0 {
		slog.InfoContext(ctx, "issue not tracked locally, nothing to sync", "issue_key", key)
		return worker.Success()
	}
	local := &items[0]

	jiraID := ""
	if local.IssueID != nil {
		jiraID = *local.IssueID
	}
	state, err := r.ledger.GetOrCreate(ctx, model.EntityTypeIssue, key, jiraID)
	if err != nil {
		return result(err)
	}

	localContent := mapper.QueueItemContent(local)
	localHash, err := syncstate.ContentHash(localContent)
	if err != nil {
		return worker.Permanent(err)
	}

	if !msg.Force && state.ContentHash != "" && state.ContentHash == localHash {
		slog.DebugContext(ctx, "issue unchanged since last sync, skipping", "issue_key", key)
		if err := r.ledger.RecordSkipped(ctx, state); err != nil {
			return result(err)
		}
		return worker.Success()
	}

	if err := r.ledger.MarkInProgress(ctx, state); err != nil {
		return result(err)
	}

	counted, calls := tracker.WithCallCounter(ctx)
	remote, err := r.client.GetIssue(counted, key)
	if err != nil {
		if tracker.IsNotFound(err) {
			return r.issueGone(ctx, state, key, start, calls.Count())
		}
		return r.fail(ctx, state, err)
	}

	remoteContent := mapper.IssueContent(remote)
	remoteHash, err := syncstate.ContentHash(remoteContent)
	if err != nil {
		return worker.Permanent(err)
	}

	d := decide(state,
		side{content: localContent, hash: localHash, modified: &local.UpdatedAt},
		side{content: remoteContent, hash: remoteHash, modified: remote.Updated},
		r.strategy(model.EntityTypeIssue), r.now())

	if d.conflict != nil {
		slog.WarnContext(ctx, "issue diverged on both sides",
			"issue_key", key,
			"fields", d.conflict.Fields,
			"apply_remote", d.applyRemote)
		if err := r.ledger.RecordConflict(ctx, state, *d.conflict, r.strategy(model.EntityTypeIssue)); err != nil {
			return result(err)
		}
	}

	finalHash := localHash
	if d.applyRemote {
		if _, err := r.items.ApplyIssuePatch(ctx, key, mapper.IssuePatch(remote)); err != nil {
			return r.fail(ctx, state, fmt.Errorf("applying issue %s: %w", key, err))
		}
		finalHash = remoteHash
	}

	if err := r.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs:     time.Since(start).Milliseconds(),
		APICalls:       calls.Count(),
		ContentHash:    finalHash,
		LocalModified:  &local.UpdatedAt,
		RemoteModified: remote.Updated,
	}); err != nil {
		return result(err)
	}
	return worker.Success()
}

func (r *Reconciler) issueGone(ctx context.Context, state *model.SyncState, key string, start time.Time, calls int32) worker.Result {
	removed, err := r.items.MarkRemoved(ctx, key)
	if err != nil {
		return r.fail(ctx, state, err)
	}
	slog.InfoContext(ctx, "issue no longer exists in jira", "issue_key", key, "queue_items", removed)

	if err := r.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs: time.Since(start).Milliseconds(),
		APICalls:   calls,
	}); err != nil {
		return result(err)
	}
	return worker.Success()
}

// SyncSprintIssues pulls every issue of a sprint and applies it to the local
// queue items. Issues edited locally since their last sync are handed to
// issue_sync instead of being overwritten.
func (r *Reconciler) SyncSprintIssues(ctx context.Context, msg queue.Message) worker.Result {
	sprintID := msg.SprintID
	start := time.Now()
	ctx = logger.WithEntity(ctx, string(model.EntityTypeSprint), sprintID)

	state, err := r.ledger.GetOrCreate(ctx, model.EntityTypeSprint, sprintID, sprintID)
	if err != nil {
		return result(err)
	}
	if err := r.ledger.MarkInProgress(ctx, state); err != nil {
		return result(err)
	}

	counted, calls := tracker.WithCallCounter(ctx)
	issues, err := r.client.ListSprintIssues(counted, sprintID)
	if err != nil {
		return r.fail(ctx, state, err)
	}

	var errs []error
	applied, deferred := 0, 0
	for i := range issues {
		ok, err := r.applySprintIssue(ctx, &issues[i])
		switch {
		case err != nil:
			errs = append(errs, err)
		case ok:
			applied++
		default:
			deferred++
		}
	}

	slog.InfoContext(ctx, "sprint issues synced",
		"sprint_id", sprintID,
		"found", len(issues),
		"applied", applied,
		"deferred", deferred,
		"errors", len(errs))

	if err := errors.Join(errs...); err != nil {
		return r.fail(ctx, state, err)
	}

	if err := r.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs: time.Since(start).Milliseconds(),
		APICalls:   calls.Count(),
	}); err != nil {
		return result(err)
	}
	return worker.Success()
}

// applySprintIssue returns false when the issue was deferred to issue_sync.
func (r *Reconciler) applySprintIssue(ctx context.Context, issue *jira.Issue) (bool, error) {
	hash, err := syncstate.ContentHash(mapper.IssueContent(issue))
	if err != nil {
		return false, err
	}

	state, err := r.ledger.GetOrCreate(ctx, model.EntityTypeIssue, issue.Key, issue.ID)
	if err != nil {
		return false, err
	}

	if state.LocalModified != nil && state.LastSuccessfulSync != nil &&
		state.LocalModified.After(*state.LastSuccessfulSync) && state.ContentHash != hash {
		_, err := r.producer.Enqueue(ctx, queue.Task{TaskType: queue.TaskTypeIssueSync, IssueKey: issue.Key})
		return false, err
	}

	if _, err := r.items.ApplyIssuePatch(ctx, issue.Key, mapper.IssuePatch(issue)); err != nil {
		return false, fmt.Errorf("applying issue %s: %w", issue.Key, err)
	}
	return true, r.ledger.RecordSuccess(ctx, state, syncstate.Success{
		ContentHash:    hash,
		RemoteModified: issue.Updated,
	})
}
