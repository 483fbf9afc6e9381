package queue_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/queue"
)

type fakeProducerClient struct {
	markers map[string]bool
	added   []*redis.XAddArgs
	deleted []string
	xaddErr error
}

func newFakeProducerClient() *fakeProducerClient {
	return &fakeProducerClient{markers: map[string]bool{}}
}

func (f *fakeProducerClient) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if f.markers[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.markers[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeProducerClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if f.xaddErr != nil {
		return redis.NewStringResult("", f.xaddErr)
	}
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeProducerClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.markers, k)
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeProducerClient) Close() error { return nil }

var _ = Describe("RedisProducer", func() {
	var (
		ctx      context.Context
		client   *fakeProducerClient
		producer queue.Producer
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = newFakeProducerClient()
		producer = queue.NewRedisProducer(client, queue.ProducerConfig{
			WebhookStream: "jira_webhooks",
			SyncStream:    "jira_sync",
		}, nil)
	})

	webhookTask := func(id int64, priority model.EventPriority) queue.Task {
		return queue.Task{TaskType: queue.TaskTypeWebhookEvent, WebhookEventID: &id, Priority: priority}
	}

	It("coalesces a second enqueue of the same task", func() {
		queued, err := producer.Enqueue(ctx, webhookTask(1, model.EventPriorityDefault))
		Expect(err).NotTo(HaveOccurred())
		Expect(queued).To(BeTrue())

		queued, err = producer.Enqueue(ctx, webhookTask(1, model.EventPriorityDefault))
		Expect(err).NotTo(HaveOccurred())
		Expect(queued).To(BeFalse())
		Expect(client.added).To(HaveLen(1))
		Expect(client.markers).To(HaveKey("queue:queued:webhook:webhook_event:1"))
	})

	It("routes high priority webhook tasks to the high lane", func() {
		_, _ = producer.Enqueue(ctx, webhookTask(2, model.EventPriorityHigh))
		_, _ = producer.Enqueue(ctx, webhookTask(3, model.EventPriorityDefault))
		_, _ = producer.Enqueue(ctx, queue.Task{TaskType: queue.TaskTypeSprintIssuesSync, SprintID: "9"})

		Expect(client.added[0].Stream).To(Equal("jira_webhooks:high"))
		Expect(client.added[1].Stream).To(Equal("jira_webhooks"))
		Expect(client.added[2].Stream).To(Equal("jira_sync"))
	})

	It("clears the marker when the stream write fails", func() {
		client.xaddErr = errors.New("READONLY")

		_, err := producer.Enqueue(ctx, queue.Task{TaskType: queue.TaskTypeIssueSync, IssueKey: "A-1"})
		Expect(err).To(HaveOccurred())
		Expect(client.markers).To(BeEmpty())
		Expect(client.deleted).To(ConsistOf("queue:queued:sync:issue:A-1"))
	})

	It("rejects tasks missing their key", func() {
		_, err := producer.Enqueue(ctx, queue.Task{TaskType: queue.TaskTypeSprintSync})
		Expect(err).To(MatchError(ContainSubstring("sprint_id")))
		Expect(client.added).To(BeEmpty())
	})
})

var _ = Describe("ParseMessage", func() {
	It("reads back what the producer wrote", func() {
		id := int64(42)
		trace := "4bf92f3577b34da6a3ce929d0e0e4736"
		task := queue.Task{
			TaskType:       queue.TaskTypeWebhookEvent,
			WebhookEventID: &id,
			EventType:      "jira:issue_updated",
			Priority:       model.EventPriorityHigh,
			TraceID:        &trace,
			Attempt:        2,
		}

		msg, err := queue.ParseMessage("jira_webhooks:high", redis.XMessage{ID: "1-1", Values: queue.TaskValues(task)})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Task).To(Equal(task))
		Expect(msg.Stream).To(Equal("jira_webhooks:high"))
	})

	It("defaults the attempt to 1", func() {
		msg, err := queue.ParseMessage("s", redis.XMessage{Values: map[string]any{"task_type": "board_refresh"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
	})

	DescribeTable("rejects invalid messages",
		func(values map[string]any) {
			_, err := queue.ParseMessage("s", redis.XMessage{Values: values})
			Expect(err).To(HaveOccurred())
		},
		Entry("missing task type", map[string]any{"attempt": "1"}),
		Entry("unknown task type", map[string]any{"task_type": "reindex"}),
		Entry("webhook without id", map[string]any{"task_type": "webhook_event"}),
		Entry("bad id", map[string]any{"task_type": "webhook_event", "webhook_event_id": "x"}),
		Entry("bad attempt", map[string]any{"task_type": "board_refresh", "attempt": "two"}),
	)
})

var _ = Describe("RetryPolicy", func() {
	policy := queue.RetryPolicy{MaxAttempts: 3, Base: time.Second, Max: time.Minute}

	It("bounds attempts", func() {
		Expect(policy.Exhausted(2)).To(BeFalse())
		Expect(policy.Exhausted(3)).To(BeTrue())
	})

	It("grows exponentially within the jitter window", func() {
		for i := 0; i < 20; i++ {
			Expect(policy.Delay(1)).To(BeNumerically("~", time.Second, 500*time.Millisecond))
			Expect(policy.Delay(3)).To(BeNumerically("~", 4*time.Second, 2*time.Second))
		}
	})

	It("caps the delay", func() {
		Expect(policy.Delay(20)).To(BeNumerically("<=", 90*time.Second))
	})
})
