package app_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/core/config"
	"basegraph.app/trackersync/internal/app"
)

var _ = Describe("Runtime", func() {
	It("fails before touching any backend when config is invalid", func() {
		GinkgoT().Setenv("APP_ENV", "test")
		GinkgoT().Setenv("JIRA_WEBHOOK_SECRET", "")

		rt, err := app.Start(context.Background(), config.ServiceTypeServer, app.Options{Redis: true})
		Expect(err).To(MatchError(ContainSubstring("loading config")))
		Expect(rt).To(BeNil())
	})

	It("maps the configured field layout", func() {
		rt := &app.Runtime{Config: config.Config{Fields: config.FieldConfig{
			StoryPointsFields:     []string{"customfield_10016"},
			SprintFields:          []string{"customfield_10020"},
			DisciplineFieldPrefix: "discipline_",
		}}}

		fields := rt.Fields()
		Expect(fields.StoryPointsFields).To(ConsistOf("customfield_10016"))
		Expect(fields.SprintFields).To(ConsistOf("customfield_10020"))
		Expect(fields.DisciplineFields).To(BeEmpty())
		Expect(fields.DisciplineFieldPrefix).To(Equal("discipline_"))
	})

	It("closes a runtime that never finished starting", func() {
		rt := &app.Runtime{}
		Expect(func() { rt.Close(context.Background()) }).NotTo(Panic())
	})
})
