package mapper_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/internal/jira"
	"basegraph.app/trackersync/internal/mapper"
	"basegraph.app/trackersync/internal/model"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("Mapper", func() {
	Describe("IssuePatch", func() {
		It("carries only the fields the payload had", func() {
			issue := &jira.Issue{
				ID:          "10001",
				Key:         "PROJ-1",
				StoryPoints: ptr(3.0),
				Assignee:    &jira.User{AccountID: "a-1", DisplayName: ptr("Sam")},
			}

			patch := mapper.IssuePatch(issue)

			Expect(*patch.IssueID).To(Equal("10001"))
			Expect(*patch.StoryPoints).To(Equal(3.0))
			Expect(*patch.AssigneeDisplayName).To(Equal("Sam"))
			Expect(patch.Summary).To(BeNil())
			Expect(patch.Labels).To(BeNil())
			Expect(patch.SprintJiraID).To(BeNil())
			Expect(patch.ClearAssignee).To(BeFalse())
		})

		It("passes explicit nulls through as clears", func() {
			body := `{"issue":{"key":"P-1","fields":{"assignee":null,"customfield_10016":null}}}`
			ev, err := jira.Parse([]byte(body), jira.DefaultFieldConfig())
			Expect(err).NotTo(HaveOccurred())

			patch := mapper.IssuePatch(ev.Issue)

			Expect(patch.ClearAssignee).To(BeTrue())
			Expect(patch.ClearStoryPoints).To(BeTrue())
			Expect(patch.ClearDiscipline).To(BeFalse())
			Expect(patch.ClearSprint).To(BeFalse())
		})
	})

	Describe("IssueContent", func() {
		It("ignores label order", func() {
			a := mapper.IssueContent(&jira.Issue{Labels: []string{"b", "a"}})
			b := mapper.IssueContent(&jira.Issue{Labels: []string{"a", "b"}})
			Expect(a).To(Equal(b))
		})
	})

	Describe("Sprint", func() {
		It("keeps the stored state when the payload has none", func() {
			prev := &model.Sprint{ID: 5, JiraID: "42", State: model.SprintStateActive}

			out := mapper.Sprint(&jira.Sprint{ID: "42", Name: ptr("Sprint 7")}, prev)

			Expect(out.ID).To(Equal(int64(5)))
			Expect(out.State).To(Equal(model.SprintStateActive))
			Expect(out.Name).To(Equal("Sprint 7"))
		})

		It("defaults new sprints to future and ignores unknown states", func() {
			out := mapper.Sprint(&jira.Sprint{ID: "42", State: ptr("paused")}, nil)
			Expect(out.State).To(Equal(model.SprintStateFuture))
		})

		It("takes a known incoming state", func() {
			out := mapper.Sprint(&jira.Sprint{ID: "42", State: ptr("closed")}, &model.Sprint{State: model.SprintStateActive})
			Expect(out.State).To(Equal(model.SprintStateClosed))
		})
	})
})

var _ = Describe("QueueItemContent", func() {
	It("matches IssueContent for the same values", func() {
		issue := &jira.Issue{
			Key:         "PROJ-1",
			Summary:     ptr("Fix login"),
			Status:      ptr("Done"),
			StoryPoints: ptr(2.0),
			Assignee:    &jira.User{AccountID: "a-1"},
			Sprint:      &jira.Sprint{ID: "42"},
			Labels:      []string{"x", "a"},
			Components:  []string{},
		}
		item := &model.QueueItem{
			IssueKey:          "PROJ-1",
			Summary:           ptr("Fix login"),
			Status:            ptr("Done"),
			StoryPoints:       ptr(2.0),
			AssigneeAccountID: ptr("a-1"),
			SprintJiraID:      ptr("42"),
			Labels:            []string{"a", "x"},
			Components:        []string{},
		}

		Expect(mapper.QueueItemContent(item)).To(Equal(mapper.IssueContent(issue)))
	})
})
