package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/common/logger"
)

var _ = Describe("TraceHandler", func() {
	var (
		buf *bytes.Buffer
		log *slog.Logger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log = slog.New(logger.NewTraceHandler(slog.NewJSONHandler(buf, nil)))
	})

	decode := func() map[string]any {
		var out map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		return out
	}

	It("adds context fields to every record", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			WebhookEventID: logger.Ptr(int64(42)),
			EventID:        logger.Ptr("evt-1"),
			Component:      "trackersync.processor",
		})
		ctx = logger.WithLogFields(ctx, logger.LogFields{TaskType: logger.Ptr("webhook_event")})

		log.InfoContext(ctx, "hello")

		out := decode()
		Expect(out).To(HaveKeyWithValue("webhook_event_id", BeNumerically("==", 42)))
		Expect(out).To(HaveKeyWithValue("event_id", "evt-1"))
		Expect(out).To(HaveKeyWithValue("task_type", "webhook_event"))
		Expect(out).To(HaveKeyWithValue("component", "trackersync.processor"))
		Expect(out).NotTo(HaveKey("entity_id"))
	})

	It("lets later fields override earlier ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{EntityID: logger.Ptr("a"), Component: "x"})
		ctx = logger.WithLogFields(ctx, logger.LogFields{EntityID: logger.Ptr("b")})

		log.InfoContext(ctx, "hello")

		out := decode()
		Expect(out).To(HaveKeyWithValue("entity_id", "b"))
		Expect(out).To(HaveKeyWithValue("component", "x"))
	})

	It("tags records with the entity under sync", func() {
		ctx := logger.WithEntity(context.Background(), "sprint", "42")

		log.InfoContext(ctx, "hello")

		out := decode()
		Expect(out).To(HaveKeyWithValue("entity_type", "sprint"))
		Expect(out).To(HaveKeyWithValue("entity_id", "42"))
	})

	It("adds trace ids when the context carries a span", func() {
		traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
		ctx, span := logger.StartTaskSpan(context.Background(), &traceID, "test")
		defer span.End()

		log.InfoContext(ctx, "hello")

		Expect(decode()).To(HaveKeyWithValue("trace_id", traceID))
	})
})

var _ = Describe("StartTaskSpan", func() {
	It("joins the propagated trace", func() {
		traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
		ctx, span := logger.StartTaskSpan(context.Background(), &traceID, "worker.process_task")
		defer span.End()

		Expect(logger.TraceID(ctx)).To(Equal(traceID))
	})

	DescribeTable("starts without a parent for unusable ids",
		func(traceID *string) {
			ctx, span := logger.StartTaskSpan(context.Background(), traceID, "worker.process_task")
			defer span.End()

			Expect(logger.TraceID(ctx)).To(BeEmpty())
		},
		Entry("nil", nil),
		Entry("empty", logger.Ptr("")),
		Entry("not hex", logger.Ptr("req-123")),
	)

	It("tolerates a nil span", func() {
		var span *logger.Span
		Expect(func() {
			span.Fail(context.Canceled)
			span.End()
		}).NotTo(Panic())
	})
})

var _ = Describe("Truncate", func() {
	It("keeps short strings", func() {
		Expect(logger.Truncate("abc", 5)).To(Equal("abc"))
	})

	It("cuts long strings", func() {
		Expect(logger.Truncate("abcdefgh", 3)).To(Equal("abc..."))
	})
})
