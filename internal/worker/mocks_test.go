package worker_test

import (
	"context"
	"sync"
	"time"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
)

type retryCall struct {
	msg   queue.Message
	delay time.Duration
	err   string
}

type mockConsumer struct {
	readFn  func(ctx context.Context) ([]queue.Message, error)
	acked   []queue.Message
	retried []retryCall
	dlq     []queue.Message
}

func (m *mockConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	if m.readFn != nil {
		return m.readFn(ctx)
	}
	return nil, nil
}

func (m *mockConsumer) Ack(ctx context.Context, msg queue.Message) error {
	m.acked = append(m.acked, msg)
	return nil
}

func (m *mockConsumer) Retry(ctx context.Context, msg queue.Message, delay time.Duration, errMsg string) error {
	m.retried = append(m.retried, retryCall{msg: msg, delay: delay, err: errMsg})
	return nil
}

func (m *mockConsumer) SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error {
	m.dlq = append(m.dlq, msg)
	return nil
}

type mockClaimer struct {
	claimFn func(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error)
}

func (m *mockClaimer) ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, minIdle, count)
	}
	return nil, nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, task queue.Task) (bool, error)
	tasks     []queue.Task
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.Task) (bool, error) {
	m.tasks = append(m.tasks, task)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, task)
	}
	return true, nil
}

func (m *mockProducer) Close() error { return nil }

type mockSweepStore struct {
	listStaleFn  func(ctx context.Context, pendingBefore, leaseBefore time.Time, limit int32) ([]model.WebhookEvent, error)
	listFailedFn func(ctx context.Context, maxRetryCount int32, failedBefore time.Time, limit int32) ([]model.WebhookEvent, error)
	resetFn      func(ctx context.Context, id int64, maxRetryCount int32) (*model.WebhookEvent, error)
}

func (m *mockSweepStore) ListStale(ctx context.Context, pendingBefore, leaseBefore time.Time, limit int32) ([]model.WebhookEvent, error) {
	if m.listStaleFn != nil {
		return m.listStaleFn(ctx, pendingBefore, leaseBefore, limit)
	}
	return nil, nil
}

func (m *mockSweepStore) ListRetryableFailed(ctx context.Context, maxRetryCount int32, failedBefore time.Time, limit int32) ([]model.WebhookEvent, error) {
	if m.listFailedFn != nil {
		return m.listFailedFn(ctx, maxRetryCount, failedBefore, limit)
	}
	return nil, nil
}

func (m *mockSweepStore) ResetFailedForAutoRetry(ctx context.Context, id int64, maxRetryCount int32) (*model.WebhookEvent, error) {
	if m.resetFn != nil {
		return m.resetFn(ctx, id, maxRetryCount)
	}
	return nil, nil
}

type mockPromoter struct {
	mu    sync.Mutex
	calls int
}

func (m *mockPromoter) PromoteDue(ctx context.Context, limit int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 0, nil
}

func (m *mockPromoter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
