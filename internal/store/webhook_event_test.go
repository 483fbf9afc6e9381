package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/store"
)

var _ = Describe("WebhookEventStore", func() {
	var (
		ctx     context.Context
		querier *recordingQuerier
		events  store.WebhookEventStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		querier = &recordingQuerier{}
		events = store.NewStores(querier).WebhookEvents()
	})

	Describe("CreateOrGet", func() {
		// Valid JSON that a jsonb column would reject or rewrite.
		body := `{"b":1,"a":"nul\u0000byte","a":2}`

		It("binds the body byte for byte", func() {
			_, created, err := events.CreateOrGet(ctx, &model.WebhookEvent{
				ID:        1,
				EventID:   "d-1",
				EventType: "jira:issue_updated",
				Payload:   json.RawMessage(body),
				Priority:  model.EventPriorityDefault,
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			insert := querier.calls[0]
			Expect(squash(insert.sql)).To(ContainSubstring("ON CONFLICT (event_id) DO NOTHING"))
			Expect(insert.args[4]).To(Equal([]byte(body)))
		})

		It("reads the existing row when the event id is taken", func() {
			querier.rowErrs = []error{pgx.ErrNoRows, nil}

			_, created, err := events.CreateOrGet(ctx, &model.WebhookEvent{ID: 2, EventID: "d-1"})

			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(querier.calls).To(HaveLen(2))
			Expect(squash(querier.last().sql)).To(ContainSubstring("WHERE event_id = $1"))
			Expect(querier.last().args).To(Equal([]any{"d-1"}))
		})

		It("wraps insert failures", func() {
			querier.rowErrs = []error{errors.New("too many connections")}

			_, _, err := events.CreateOrGet(ctx, &model.WebhookEvent{EventID: "d-1"})

			Expect(err).To(MatchError(ContainSubstring("inserting webhook event")))
			Expect(querier.calls).To(HaveLen(1))
		})
	})

	Describe("Claim", func() {
		It("takes pending rows and processing rows whose lease expired", func() {
			_, err := events.Claim(ctx, 7, 90*time.Second)

			Expect(err).NotTo(HaveOccurred())
			sql := squash(querier.last().sql)
			Expect(sql).To(ContainSubstring("processing_attempts = processing_attempts + 1"))
			Expect(sql).To(ContainSubstring("processing_status = 'pending' OR (processing_status = 'processing' AND last_processed_at < now() - make_interval(secs => $2))"))
			Expect(querier.last().args).To(Equal([]any{int64(7), 90.0}))
		})

		It("reports an unclaimable row as a stale write", func() {
			querier.rowErrs = []error{pgx.ErrNoRows}

			_, err := events.Claim(ctx, 7, time.Minute)
			Expect(err).To(MatchError(store.ErrStaleWrite))
		})
	})

	Describe("status transitions", func() {
		It("completes only rows that are processing", func() {
			querier.execTag = pgconn.NewCommandTag("UPDATE 1")

			Expect(events.MarkCompleted(ctx, 3, 120)).To(Succeed())
			Expect(squash(querier.last().sql)).To(ContainSubstring("WHERE id = $1 AND processing_status = 'processing'"))
			Expect(querier.last().args).To(Equal([]any{int64(3), int64(120)}))
		})

		It("treats a failed update that matched nothing as stale", func() {
			querier.execTag = pgconn.NewCommandTag("UPDATE 0")

			Expect(events.MarkFailed(ctx, 3, "boom", true)).To(MatchError(store.ErrStaleWrite))
		})

		It("records whether a failure may be retried automatically", func() {
			querier.execTag = pgconn.NewCommandTag("UPDATE 1")

			Expect(events.MarkFailed(ctx, 3, "bad payload", false)).To(Succeed())
			Expect(squash(querier.last().sql)).To(ContainSubstring("retryable = $3"))
			Expect(querier.last().args).To(Equal([]any{int64(3), "bad payload", false}))
		})

		It("retries manually only from failed or completed", func() {
			querier.rowErrs = []error{pgx.ErrNoRows}

			_, err := events.ResetForRetry(ctx, 4)

			Expect(err).To(MatchError(store.ErrStaleWrite))
			sql := squash(querier.last().sql)
			Expect(sql).To(ContainSubstring("retry_count = retry_count + 1"))
			Expect(sql).To(ContainSubstring("processing_status IN ('failed', 'completed')"))
			Expect(sql).To(ContainSubstring("retryable = true"))
		})

		It("bounds automatic retries by retry_count", func() {
			_, err := events.ResetFailedForAutoRetry(ctx, 5, 3)

			Expect(err).NotTo(HaveOccurred())
			Expect(squash(querier.last().sql)).To(ContainSubstring("processing_status = 'failed' AND retryable AND retry_count < $2"))
			Expect(querier.last().args).To(Equal([]any{int64(5), int32(3)}))
		})
	})

	Describe("sweeper queries", func() {
		It("lists stale pending and lease-expired rows oldest first", func() {
			pendingBefore := time.Unix(1000, 0)
			leaseBefore := time.Unix(2000, 0)

			rows, err := events.ListStale(ctx, pendingBefore, leaseBefore, 25)

			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
			sql := squash(querier.last().sql)
			Expect(sql).To(ContainSubstring("(processing_status = 'pending' AND updated_at < $1) OR (processing_status = 'processing' AND last_processed_at < $2)"))
			Expect(sql).To(ContainSubstring("ORDER BY created_at"))
			Expect(querier.last().args).To(Equal([]any{pendingBefore, leaseBefore, int32(25)}))
		})

		It("lists only retryable failed rows still under the retry bound", func() {
			_, err := events.ListRetryableFailed(ctx, 3, time.Unix(1000, 0), 10)

			Expect(err).NotTo(HaveOccurred())
			Expect(squash(querier.last().sql)).To(ContainSubstring("processing_status = 'failed' AND retryable AND retry_count < $1 AND updated_at < $2"))
		})

		It("wraps query failures", func() {
			querier.queryErr = errors.New("conn closed")

			_, err := events.ListStale(ctx, time.Now(), time.Now(), 1)
			Expect(err).To(MatchError(ContainSubstring("listing stale webhook events")))
		})
	})
})
