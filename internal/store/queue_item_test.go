package store_test

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/internal/store"
)

var _ = Describe("QueueItemStore", func() {
	var (
		ctx     context.Context
		querier *recordingQuerier
		items   store.QueueItemStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		querier = &recordingQuerier{execTag: pgconn.NewCommandTag("UPDATE 2")}
		items = store.NewStores(querier).QueueItems()
	})

	It("coalesces absent fields and nulls cleared ones", func() {
		points := 5.0
		n, err := items.ApplyIssuePatch(ctx, "PROJ-1", store.IssuePatch{
			StoryPoints:   &points,
			ClearAssignee: true,
			ClearSprint:   true,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		sql := squash(querier.last().sql)
		Expect(sql).To(ContainSubstring("summary = COALESCE($3, summary)"))
		Expect(sql).To(ContainSubstring("assignee_account_id = CASE WHEN $13 THEN NULL ELSE COALESCE($6, assignee_account_id) END"))
		Expect(sql).To(ContainSubstring("assignee_display_name = CASE WHEN $13 THEN NULL"))
		Expect(sql).To(ContainSubstring("story_points = CASE WHEN $14 THEN NULL"))
		Expect(sql).To(ContainSubstring("discipline = CASE WHEN $15 THEN NULL"))
		Expect(sql).To(ContainSubstring("sprint_jira_id = CASE WHEN $16 THEN NULL"))
		Expect(sql).To(HaveSuffix("WHERE issue_key = $1 AND NOT removed"))

		args := querier.last().args
		Expect(args).To(HaveLen(16))
		Expect(args[0]).To(Equal("PROJ-1"))
		Expect(args[7]).To(Equal(&points))
		Expect(args[12:]).To(Equal([]any{true, false, false, true}))
	})
})
