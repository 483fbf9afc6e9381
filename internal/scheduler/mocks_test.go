package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/store"
	"basegraph.app/trackersync/internal/syncstate"
	"basegraph.app/trackersync/internal/tracker"
)

type fakeClient struct {
	mu           sync.Mutex
	boards       []jira.Board
	boardSprints map[string][]jira.Sprint
	boardErrs    map[string]error
	panicOnList  bool
	sprintCalls  int
}

func (f *fakeClient) GetIssue(ctx context.Context, key string) (*jira.Issue, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) GetSprint(ctx context.Context, sprintID string) (*jira.Sprint, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) ListSprintIssues(ctx context.Context, sprintID string) ([]jira.Issue, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) ListBoards(ctx context.Context) ([]jira.Board, error) {
	tracker.RecordCall(ctx)
	return f.boards, nil
}

func (f *fakeClient) ListBoardSprints(ctx context.Context, boardID string) ([]jira.Sprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnList {
		panic("boom")
	}
	f.sprintCalls++
	tracker.RecordCall(ctx)
	if err := f.boardErrs[boardID]; err != nil {
		return nil, err
	}
	return f.boardSprints[boardID], nil
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sprintCalls
}

type memBoards struct {
	rows    []model.Board
	listErr error
}

func (m *memBoards) Upsert(ctx context.Context, b *model.Board) (*model.Board, bool, error) {
	m.rows = append(m.rows, *b)
	return b, true, nil
}

func (m *memBoards) ListActive(ctx context.Context) ([]model.Board, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Board
	for _, b := range m.rows {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBoards) Deactivate(ctx context.Context, jiraID string) error {
	return nil
}

type memSprints struct {
	rows         map[string]*model.Sprint
	archiveAfter time.Time
	archived     int64
	archiveErr   error
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

func (m *memSprints) Upsert(ctx context.Context, sp *model.Sprint) (*model.Sprint, bool, error) {
	_, existed := m.rows[sp.JiraID]
	next := *sp
	m.rows[sp.JiraID] = &next
	return &next, !existed, nil
}

func (m *memSprints) Archive(ctx context.Context, jiraID string) error {
	return nil
}

func (m *memSprints) ArchiveClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	m.archiveAfter = before
	return m.archived, m.archiveErr
}

type outcome struct {
	status   model.SyncStatus
	apiCalls int32
	hash     string
	message  string
}

// fakeLedger keeps the last outcome per entity.
type fakeLedger struct {
	outcomes map[string]outcome
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{outcomes: make(map[string]outcome)}
}

func (f *fakeLedger) GetOrCreate(ctx context.Context, t model.EntityType, entityID, jiraID string) (*model.SyncState, error) {
	return &model.SyncState{EntityType: t, EntityID: entityID, JiraID: jiraID}, nil
}

func (f *fakeLedger) MarkInProgress(ctx context.Context, row *model.SyncState) error {
	f.outcomes[string(row.EntityType)+"/"+row.EntityID] = outcome{status: model.SyncStatusInProgress}
	return nil
}

func (f *fakeLedger) RecordSuccess(ctx context.Context, row *model.SyncState, res syncstate.Success) error {
	f.outcomes[string(row.EntityType)+"/"+row.EntityID] = outcome{
		status:   model.SyncStatusCompleted,
		apiCalls: res.APICalls,
		hash:     res.ContentHash,
	}
	return nil
}

func (f *fakeLedger) RecordFailure(ctx context.Context, row *model.SyncState, message string) error {
	f.outcomes[string(row.EntityType)+"/"+row.EntityID] = outcome{status: model.SyncStatusFailed, message: message}
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

type fakeLeader struct {
	mu       sync.Mutex
	leading  bool
	err      error
	attempts int
	released int
}

func (f *fakeLeader) TryAcquire(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	return f.leading, f.err
}

func (f *fakeLeader) Release(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func (f *fakeLeader) counts() (attempts, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, f.released
}
