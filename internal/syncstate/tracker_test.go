package syncstate_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/internal/model"
	"basegraph.app/trackersync/internal/syncstate"
)

var _ = Describe("Tracker", func() {
	var (
		ctx     context.Context
		states  *memStates
		tracker *syncstate.Tracker
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		states = newMemStates()
		tracker = syncstate.New(states)
		now = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
		tracker.SetNow(func() time.Time { return now })
	})

	Describe("GetOrCreate", func() {
		It("creates a pending row on first use and returns it afterwards", func() {
			first, err := tracker.GetOrCreate(ctx, model.EntityTypeIssue, "PROJ-1", "10001")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.SyncStatus).To(Equal(model.SyncStatusPending))
			Expect(first.SyncDirection).To(Equal(model.SyncDirectionRemoteToLocal))
			Expect(first.JiraID).To(Equal("10001"))

			second, err := tracker.GetOrCreate(ctx, model.EntityTypeIssue, "PROJ-1", "10001")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(states.rows).To(HaveLen(1))
		})

		It("rejects entity types outside the closed set without writing", func() {
			_, err := tracker.GetOrCreate(ctx, model.EntityType("epic"), "E-1", "1")
			Expect(err).To(MatchError(syncstate.ErrInvalid))
			Expect(states.writes).To(BeZero())
		})
	})

	Describe("recording outcomes", func() {
		var row *model.SyncState

		BeforeEach(func() {
			var err error
			row, err = tracker.GetOrCreate(ctx, model.EntityTypeSprint, "42", "42")
			Expect(err).NotTo(HaveOccurred())
		})

		It("counts failures and resets them on success", func() {
			Expect(tracker.RecordFailure(ctx, row, "jira 502")).To(Succeed())
			Expect(tracker.RecordFailure(ctx, row, "jira 504")).To(Succeed())
			Expect(row.SyncStatus).To(Equal(model.SyncStatusFailed))
			Expect(row.ErrorCount).To(Equal(int32(2)))
			Expect(*row.LastError).To(Equal("jira 504"))
			Expect(*row.LastSyncAttempt).To(Equal(now))

			Expect(tracker.RecordSuccess(ctx, row, syncstate.Success{DurationMs: 120, APICalls: 3, ContentHash: "abc"})).To(Succeed())
			Expect(row.SyncStatus).To(Equal(model.SyncStatusCompleted))
			Expect(row.ErrorCount).To(BeZero())
			Expect(row.LastError).To(BeNil())
			Expect(*row.LastSuccessfulSync).To(Equal(now))
			Expect(*row.LastSyncAttempt).To(Equal(now))
			Expect(row.SyncDurationMs).To(Equal(int64(120)))
			Expect(row.APICallsCount).To(Equal(int32(3)))
			Expect(row.ContentHash).To(Equal("abc"))
		})

		It("marks skipped attempts without touching counters", func() {
			Expect(tracker.RecordSuccess(ctx, row, syncstate.Success{APICalls: 2, ContentHash: "h1"})).To(Succeed())
			Expect(tracker.RecordSkipped(ctx, row)).To(Succeed())

			Expect(row.SyncStatus).To(Equal(model.SyncStatusSkipped))
			Expect(row.APICallsCount).To(Equal(int32(2)))
			Expect(row.ContentHash).To(Equal("h1"))
		})

		It("stores conflicts with a manual default and leaves the status alone", func() {
			Expect(tracker.RecordSuccess(ctx, row, syncstate.Success{})).To(Succeed())
			Expect(tracker.RecordConflict(ctx, row, model.Conflict{Fields: []string{"name"}, LocalHash: "a", RemoteHash: "b"}, "")).To(Succeed())

			Expect(row.SyncStatus).To(Equal(model.SyncStatusCompleted))
			Expect(*row.ResolutionStrategy).To(Equal(model.ResolutionStrategyManual))
			Expect(row.HasUnresolvedConflict()).To(BeTrue())

			var stored model.Conflict
			Expect(json.Unmarshal(row.Conflicts, &stored)).To(Succeed())
			Expect(stored.Fields).To(ConsistOf("name"))
			Expect(stored.DetectedAt).To(Equal(now))

			unresolved, err := tracker.ListUnresolvedConflicts(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(unresolved).To(HaveLen(1))

			Expect(tracker.ClearConflict(ctx, row)).To(Succeed())
			Expect(row.HasUnresolvedConflict()).To(BeFalse())
		})

		It("does not list conflicts resolved by an automatic strategy", func() {
			Expect(tracker.RecordConflict(ctx, row, model.Conflict{}, model.ResolutionStrategyJiraWins)).To(Succeed())

			unresolved, err := tracker.ListUnresolvedConflicts(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(unresolved).To(BeEmpty())
		})

		It("rejects invalid strategies and commits nothing", func() {
			writes := states.writes
			version := row.Version

			err := tracker.RecordConflict(ctx, row, model.Conflict{}, model.ResolutionStrategy("coin_flip"))

			Expect(err).To(MatchError(syncstate.ErrInvalid))
			Expect(states.writes).To(Equal(writes))
			Expect(row.Version).To(Equal(version))
		})

		It("rejects negative counters and commits nothing", func() {
			writes := states.writes

			err := tracker.RecordSuccess(ctx, row, syncstate.Success{DurationMs: -1})

			Expect(err).To(MatchError(syncstate.ErrInvalid))
			Expect(states.writes).To(Equal(writes))
		})

		It("re-applies the change on top of a concurrent write", func() {
			states.beforeUpdate = func(m *memStates) {
				m.bump(model.EntityTypeSprint, "42", func(s *model.SyncState) {
					s.ErrorCount = 4
					s.ContentHash = "from-scheduler"
				})
			}

			Expect(tracker.RecordFailure(ctx, row, "timeout")).To(Succeed())

			Expect(row.ErrorCount).To(Equal(int32(5)))
			Expect(row.ContentHash).To(Equal("from-scheduler"))
			stored, _ := states.Get(ctx, model.EntityTypeSprint, "42")
			Expect(stored.ErrorCount).To(Equal(int32(5)))
		})
	})

	Describe("Validate", func() {
		valid := func() *model.SyncState {
			return &model.SyncState{
				EntityType:    model.EntityTypeBoard,
				EntityID:      "7",
				SyncStatus:    model.SyncStatusPending,
				SyncDirection: model.SyncDirectionBidirectional,
			}
		}

		It("accepts a well-formed row", func() {
			Expect(syncstate.Validate(valid())).To(Succeed())
		})

		DescribeTable("rejects values outside the closed sets",
			func(mutate func(*model.SyncState)) {
				s := valid()
				mutate(s)
				Expect(syncstate.Validate(s)).To(MatchError(syncstate.ErrInvalid))
			},
			Entry("entity type", func(s *model.SyncState) { s.EntityType = "epic" }),
			Entry("sync status", func(s *model.SyncState) { s.SyncStatus = "done" }),
			Entry("sync direction", func(s *model.SyncState) { s.SyncDirection = "sideways" }),
			Entry("resolution strategy", func(s *model.SyncState) {
				r := model.ResolutionStrategy("latest")
				s.ResolutionStrategy = &r
			}),
			Entry("error count", func(s *model.SyncState) { s.ErrorCount = -1 }),
			Entry("api calls", func(s *model.SyncState) { s.APICallsCount = -2 }),
			Entry("empty entity id", func(s *model.SyncState) { s.EntityID = "" }),
		)
	})
})

var _ = Describe("ContentHash", func() {
	It("is stable regardless of map insertion order", func() {
		a, err := syncstate.ContentHash(map[string]any{"summary": "x", "status": "Done"})
		Expect(err).NotTo(HaveOccurred())
		b, err := syncstate.ContentHash(map[string]any{"status": "Done", "summary": "x"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
		Expect(a).To(HaveLen(64))
	})
})
