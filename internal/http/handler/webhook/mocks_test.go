package webhook_test

import (
	"context"
	"errors"
	"time"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
	"basegraph.app/trackersync/internal/service"
	"basegraph.app/trackersync/internal/store"
)

type stubIngest struct {
	ingestFn func(ctx context.Context, params service.EventIngestParams) (*service.EventIngestResult, error)
	calls    int
}

func (s *stubIngest) Ingest(ctx context.Context, params service.EventIngestParams) (*service.EventIngestResult, error) {
	s.calls++
	return s.ingestFn(ctx, params)
}

// memEvents implements only what ingestion touches.
type memEvents struct {
	store.WebhookEventStore
	rows map[string]*model.WebhookEvent
}

func (m *memEvents) CreateOrGet(ctx context.Context, ev *model.WebhookEvent) (*model.WebhookEvent, bool, error) {
	if existing, ok := m.rows[ev.EventID]; ok {
		return existing, false, nil
	}
	row := *ev
	row.CreatedAt = time.Now()
	m.rows[ev.EventID] = &row
	return &row, true, nil
}

type memDedup struct {
	seen map[string]bool
}

func (m *memDedup) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	dup := m.seen[eventID]
	m.seen[eventID] = true
	return dup, nil
}

func (m *memDedup) Release(ctx context.Context, eventID string) error {
	delete(m.seen, eventID)
	return nil
}

type recordingProducer struct {
	tasks []queue.Task
	err   error
}

func (r *recordingProducer) Enqueue(ctx context.Context, task queue.Task) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.tasks = append(r.tasks, task)
	return true, nil
}

func (r *recordingProducer) Close() error { return nil }

var errBoom = errors.New("boom")
