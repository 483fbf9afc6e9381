package otel_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/trackersync/common/otel"
	"basegraph.app/trackersync/core/config"
)

var _ = Describe("Setup", func() {
	It("is a no-op without an endpoint", func() {
		tel, err := otel.Setup(context.Background(), config.OTelConfig{ServiceName: "trackersync-test"})
		Expect(err).NotTo(HaveOccurred())
		Expect(tel).To(BeNil())
		Expect(tel.Shutdown(context.Background())).To(Succeed())
	})
})

var _ = Describe("ParseHeaders", func() {
	DescribeTable("parses key=value pairs",
		func(raw string, want map[string]string) {
			Expect(otel.ParseHeaders(raw)).To(Equal(want))
		},
		Entry("empty", "", map[string]string{}),
		Entry("single", "x-api-key=abc", map[string]string{"x-api-key": "abc"}),
		Entry("several with spaces", " a = 1 , b=2", map[string]string{"a": "1", "b": "2"}),
		Entry("value containing =", "authorization=Basic dXNlcjpw==", map[string]string{"authorization": "Basic dXNlcjpw=="}),
		Entry("malformed pairs skipped", "novalue,=x,k=v", map[string]string{"k": "v"}),
	)
})
