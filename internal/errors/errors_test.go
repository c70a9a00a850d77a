package errors

import (
	stderrors "errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Errors Suite")
}

var _ = Describe("AppError", func() {
	Context("basic error creation", func() {
		It("should create an error with the right properties", func() {
			err := New(ErrorTypeTransientStore, "query failed")

			Expect(err.Type).To(Equal(ErrorTypeTransientStore))
			Expect(err.Message).To(Equal("query failed"))
			Expect(err.Details).To(BeEmpty())
			Expect(err.Cause).To(BeNil())
		})

		It("should implement the error interface", func() {
			err := New(ErrorTypeTransientStore, "query failed")

			Expect(err.Error()).To(Equal("transient_store: query failed"))
		})

		It("should include details in the error string when present", func() {
			err := New(ErrorTypeTransientStore, "query failed").WithDetails("timeout after 5s")

			Expect(err.Error()).To(Equal("transient_store: query failed (timeout after 5s)"))
		})
	})

	Context("wrapping", func() {
		It("should wrap an underlying error", func() {
			cause := stderrors.New("connection refused")
			wrapped := Wrap(cause, ErrorTypePreparation, "could not reach tempesta-fw")

			Expect(wrapped.Type).To(Equal(ErrorTypePreparation))
			Expect(wrapped.Cause).To(Equal(cause))
			Expect(wrapped.Unwrap()).To(Equal(cause))
			Expect(stderrors.Is(wrapped, cause)).To(BeTrue())
		})

		It("should format a wrapped message", func() {
			cause := stderrors.New("exit status 1")
			wrapped := Wrapf(cause, ErrorTypeEnforcement, "blocker %q apply failed", "ipset")

			Expect(wrapped.Message).To(Equal(`blocker "ipset" apply failed`))
		})
	})

	Context("constructors", func() {
		It("should build a preparation error", func() {
			err := NewPreparationError("tft", stderrors.New("binary not found"))
			Expect(err.Type).To(Equal(ErrorTypePreparation))
		})

		It("should build a transient store error", func() {
			err := NewTransientStoreError("ip_rps", stderrors.New("timeout"))
			Expect(err.Type).To(Equal(ErrorTypeTransientStore))
		})

		It("should build an enforcement error", func() {
			err := NewEnforcementError("nft", "release", stderrors.New("no such element"))
			Expect(err.Type).To(Equal(ErrorTypeEnforcement))
		})

		It("should build a config parse error with the offending line", func() {
			err := NewConfigParseError("garbage line")
			Expect(err.Type).To(Equal(ErrorTypeConfigParse))
			Expect(err.Details).To(ContainSubstring("garbage line"))
		})

		It("should build a fatal error", func() {
			err := NewFatalError("config file not found")
			Expect(err.Fatal()).To(BeTrue())
		})
	})

	Context("type checks", func() {
		It("should identify a matching type", func() {
			err := NewTransientStoreError("ip_rps", stderrors.New("boom"))
			Expect(IsType(err, ErrorTypeTransientStore)).To(BeTrue())
			Expect(IsType(err, ErrorTypePreparation)).To(BeFalse())
		})

		It("should treat non-AppErrors as recoverable, not fatal", func() {
			regular := stderrors.New("plain error")
			Expect(IsType(regular, ErrorTypeTransientStore)).To(BeFalse())
			Expect(GetType(regular)).To(Equal(ErrorTypeEnforcement))
			Expect(IsFatal(regular)).To(BeFalse())
		})

		It("should report fatal only for the fatal type", func() {
			Expect(IsFatal(NewFatalError("x"))).To(BeTrue())
			Expect(IsFatal(NewTransientStoreError("d", stderrors.New("e")))).To(BeFalse())
		})
	})
})
