package processor_test

import (
	"context"
	"time"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
)

type memEvents struct {
	rows     map[int64]*model.WebhookEvent
	getErr   error
	claimErr error
}

func newMemEvents(events ...model.WebhookEvent) *memEvents {
	m := &memEvents{rows: make(map[int64]*model.WebhookEvent)}
	for i := range events {
		ev := events[i]
		m.rows[ev.ID] = &ev
	}
	return m
}

func (m *memEvents) CreateOrGet(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error) {
	panic("not used")
}

func (m *memEvents) GetByID(ctx context.Context, id int64) (*model.WebhookEvent, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	ev, ok := m.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *memEvents) GetByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	panic("not used")
}

func (m *memEvents) Claim(ctx context.Context, id int64, lease time.Duration) (*model.WebhookEvent, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	ev, ok := m.rows[id]
	if !ok {
		return nil, store.ErrStaleWrite
	}
	expired := ev.LastProcessedAt != nil && time.Since(*ev.LastProcessedAt) > lease
	if ev.ProcessingStatus != model.ProcessingStatusPending &&
		!(ev.ProcessingStatus == model.ProcessingStatusProcessing && expired) {
		return nil, store.ErrStaleWrite
	}
	now := time.Now()
	ev.ProcessingStatus = model.ProcessingStatusProcessing
	ev.ProcessingAttempts++
	ev.LastProcessedAt = &now
	cp := *ev
	return &cp, nil
}

func (m *memEvents) MarkCompleted(ctx context.Context, id int64, durationMs int64) error {
	ev := m.rows[id]
	if ev.ProcessingStatus != model.ProcessingStatusProcessing {
		return store.ErrStaleWrite
	}
	now := time.Now()
	ev.ProcessingStatus = model.ProcessingStatusCompleted
	ev.ProcessedAt = &now
	ev.ProcessingDurationMs = &durationMs
	ev.ErrorMessage = nil
	return nil
}

func (m *memEvents) MarkFailed(ctx context.Context, id int64, errMsg string, retryable bool) error {
	ev := m.rows[id]
	if ev.ProcessingStatus != model.ProcessingStatusProcessing {
		return store.ErrStaleWrite
	}
	ev.ProcessingStatus = model.ProcessingStatusFailed
	ev.ErrorMessage = &errMsg
	ev.Retryable = retryable
	return nil
}

func (m *memEvents) ResetForRetry(ctx context.Context, id int64) (*model.WebhookEvent, error) {
	panic("not used")
}

func (m *memEvents) ResetFailedForAutoRetry(ctx context.Context, id int64, maxRetryCount int32) (*model.WebhookEvent, error) {
	panic("not used")
}

func (m *memEvents) ListStale(ctx context.Context, pendingBefore, leaseBefore time.Time, limit int32) ([]model.WebhookEvent, error) {
	panic("not used")
}

func (m *memEvents) ListRetryableFailed(ctx context.Context, maxRetryCount int32, failedBefore time.Time, limit int32) ([]model.WebhookEvent, error) {
	panic("not used")
}

func (m *memEvents) Stats(ctx context.Context) (*model.WebhookEventStats, error) {
	panic("not used")
}

type memItems struct {
	items    map[string]*model.QueueItem
	patchErr error
	patches  int
}

func newMemItems(items ...model.QueueItem) *memItems {
	m := &memItems{items: make(map[string]*model.QueueItem)}
	for i := range items {
		it := items[i]
		m.items[it.IssueKey] = &it
	}
	return m
}

func (m *memItems) ListByIssueKey(ctx context.Context, issueKey string) ([]model.QueueItem, error) {
	if it, ok := m.items[issueKey]; ok {
		return []model.QueueItem{*it}, nil
	}
	return nil, nil
}

func (m *memItems) ApplyIssuePatch(ctx context.Context, issueKey string, p store.IssuePatch) (int64, error) {
	m.patches++
	if m.patchErr != nil {
		return 0, m.patchErr
	}
	it, ok := m.items[issueKey]
	if !ok {
		return 0, nil
	}
	setIf(&it.IssueID, p.IssueID)
	setIf(&it.Summary, p.Summary)
	setIf(&it.Status, p.Status)
	setIf(&it.Priority, p.Priority)
	setIf(&it.AssigneeAccountID, p.AssigneeAccountID)
	setIf(&it.AssigneeDisplayName, p.AssigneeDisplayName)
	setIf(&it.Discipline, p.Discipline)
	setIf(&it.SprintJiraID, p.SprintJiraID)
	if p.StoryPoints != nil {
		it.StoryPoints = p.StoryPoints
	}
	if p.ClearAssignee {
		it.AssigneeAccountID, it.AssigneeDisplayName = nil, nil
	}
	if p.ClearStoryPoints {
		it.StoryPoints = nil
	}
	if p.ClearDiscipline {
		it.Discipline = nil
	}
	if p.ClearSprint {
		it.SprintJiraID = nil
	}
	if p.Labels != nil {
		it.Labels = p.Labels
	}
	if p.Components != nil {
		it.Components = p.Components
	}
	return 1, nil
}

func setIf(dst **string, v *string) {
	if v != nil {
		*dst = v
	}
}

func (m *memItems) MarkRemoved(ctx context.Context, issueKey string) (int64, error) {
	it, ok := m.items[issueKey]
	if !ok {
		return 0, nil
	}
	it.Removed = true
	return 1, nil
}

type memSprints struct {
	rows map[string]*model.Sprint
}

func newMemSprints() *memSprints {
	return &memSprints{rows: make(map[string]*model.Sprint)}
}

func (m *memSprints) GetByJiraID(ctx context.Context, jiraID string) (*model.Sprint, error) {
	sp, ok := m.rows[jiraID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sp
	return &cp, nil
}

func (m *memSprints) Upsert(ctx context.Context, sprint *model.Sprint) (*model.Sprint, bool, error) {
	prev, ok := m.rows[sprint.JiraID]
	next := *sprint
	if ok {
		next.ID = prev.ID
		if next.Name == "" {
			next.Name = prev.Name
		}
		if next.Goal == nil {
			next.Goal = prev.Goal
		}
	}
	m.rows[sprint.JiraID] = &next
	cp := next
	return &cp, !ok, nil
}

func (m *memSprints) Archive(ctx context.Context, jiraID string) error {
	sp, ok := m.rows[jiraID]
	if !ok {
		return store.ErrNotFound
	}
	sp.Archived = true
	return nil
}

func (m *memSprints) ArchiveClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type memBoards struct {
	rows map[string]*model.Board
}

func newMemBoards() *memBoards {
	return &memBoards{rows: make(map[string]*model.Board)}
}

func (m *memBoards) Upsert(ctx context.Context, board *model.Board) (*model.Board, bool, error) {
	_, existed := m.rows[board.JiraID]
	b := *board
	b.Active = true
	m.rows[board.JiraID] = &b
	return &b, !existed, nil
}

func (m *memBoards) ListActive(ctx context.Context) ([]model.Board, error) {
	var out []model.Board
	for _, b := range m.rows {
		if b.Active {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBoards) Deactivate(ctx context.Context, jiraID string) error {
	b, ok := m.rows[jiraID]
	if !ok {
		return store.ErrNotFound
	}
	b.Active = false
	return nil
}

type fakeLedger struct {
	states    map[string]*model.SyncState
	successes int
	failures  int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{states: make(map[string]*model.SyncState)}
}

func (f *fakeLedger) GetOrCreate(ctx context.Context, entityType model.EntityType, entityID, jiraID string) (*model.SyncState, error) {
	k := string(entityType) + "/" + entityID
	if s, ok := f.states[k]; ok {
		cp := *s
		return &cp, nil
	}
	s := &model.SyncState{
		EntityType:    entityType,
		EntityID:      entityID,
		JiraID:        jiraID,
		SyncStatus:    model.SyncStatusPending,
		SyncDirection: model.SyncDirectionRemoteToLocal,
	}
	f.states[k] = s
	cp := *s
	return &cp, nil
}

func (f *fakeLedger) RecordSuccess(ctx context.Context, row *model.SyncState, res syncstate.Success) error {
	f.successes++
	now := time.Now()
	row.SyncStatus = model.SyncStatusCompleted
	row.LastSuccessfulSync = &now
	row.ContentHash = res.ContentHash
	row.RemoteModified = res.RemoteModified
	f.states[string(row.EntityType)+"/"+row.EntityID] = row
	return nil
}

func (f *fakeLedger) RecordFailure(ctx context.Context, row *model.SyncState, message string) error {
	f.failures++
	row.SyncStatus = model.SyncStatusFailed
	row.ErrorCount++
	f.states[string(row.EntityType)+"/"+row.EntityID] = row
	return nil
}

type fakeProducer struct {
	tasks []queue.Task
}

func (f *fakeProducer) Enqueue(ctx context.Context, task queue.Task) (bool, error) {
	f.tasks = append(f.tasks, task)
	return true, nil
}

func (f *fakeProducer) Close() error { return nil }
