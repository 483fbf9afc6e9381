package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/trackersync/common/logger"
	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/mapper"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/syncstate"
)

func (p *Processor) applyIssue(ctx context.Context, issue *jira.Issue) error {
	start := time.Now()
	ctx = logger.WithEntity(ctx, string(model.EntityTypeIssue), issue.Key)

	hash, err := syncstate.ContentHash(mapper.IssueContent(issue))
	if err != nil {
		return permanent(fmt.Errorf("hashing issue content: %w", err))
	}

	state, err := p.ledger.GetOrCreate(ctx, model.EntityTypeIssue, issue.Key, issue.ID)
	if err != nil {
		return err
	}

	if locallyModified(state, hash) {
		// Local edits since the last sync: leave the local record as it is and
		// let the sync task decide which side wins.
		slog.InfoContext(ctx, "issue changed on both sides, deferring to issue sync",
			"issue_key", issue.Key)
		_, err := p.producer.Enqueue(ctx, queue.Task{
			TaskType: queue.TaskTypeIssueSync,
			IssueKey: issue.Key,
		})
		return err
	}

	updated, err := p.items.ApplyIssuePatch(ctx, issue.Key, mapper.IssuePatch(issue))
	if err != nil {
		if recErr := p.ledger.RecordFailure(ctx, state, err.Error()); recErr != nil {
			slog.WarnContext(ctx, "recording issue sync failure", "error", recErr)
		}
		return fmt.Errorf("applying issue %s: %w", issue.Key, err)
	}

	slog.DebugContext(ctx, "issue applied to queue items",
		"issue_key", issue.Key,
		"queue_items", updated)

	return p.ledger.RecordSuccess(ctx, state, syncstate.Success{
		DurationMs:     time.Since(start).Milliseconds(),
		ContentHash:    hash,
		RemoteModified: issue.Updated,
	})
}

func (p *Processor) removeIssue(ctx context.Context, issue *jira.Issue) error {
	removed, err := p.items.MarkRemoved(ctx, issue.Key)
	if err != nil {
		return fmt.Errorf("removing issue %s: %w", issue.Key, err)
	}
	slog.InfoContext(ctx, "issue deleted in jira",
		"issue_key", issue.Key,
		"queue_items", removed)
	return nil
}

// locallyModified reports local edits newer than the last successful sync
// whose content differs from what Jira now sends.
func locallyModified(state *model.SyncState, incomingHash string) bool {
	if state.LocalModified == nil || state.LastSuccessfulSync == nil {
		return false
	}
	return state.LocalModified.After(*state.LastSuccessfulSync) && state.ContentHash != incomingHash
}
