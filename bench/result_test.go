package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/fft"
)

var _ = Describe("Result", func() {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	It("should report minutes and seconds", func() {
		r := &Result{
			Status: StatusOK,
			Start:  start,
			End:    start.Add(125*time.Second + 900*time.Millisecond),
		}

		Expect(r.Elapsed()).To(Equal(125*time.Second + 900*time.Millisecond))
		Expect(r.String()).To(Equal("execution time : 2:5"))
	})

	It("should not report timing for a failed run", func() {
		r := &Result{
			RunID:           "r1",
			Status:          StatusFailed,
			Start:           start,
			End:             start.Add(time.Minute),
			Requested:       3,
			FailedIteration: 0,
			Cause:           errors.New("boom"),
		}

		Expect(r.Elapsed()).To(BeZero())
		Expect(r.String()).To(Equal("run r1 failed at iteration 0 of 3: boom"))
	})

	It("should dump samples", func() {
		r := &Result{Samples: []fft.Sample{{Real: 3, Imag: -2}, {Real: 0, Imag: 7}}}

		Expect(r.DumpSamples()).To(Equal([]string{
			"rx[0] = 3 + -2 j",
			"rx[1] = 0 + 7 j",
		}))
	})
})

var _ = Describe("FailureReason", func() {
	DescribeTable("classifying errors",
		func(err error, reason string) {
			Expect(FailureReason(err)).To(Equal(reason))
		},
		Entry("nil", nil, ""),
		Entry("timeout", &IterationError{Err: &TimeoutError{Direction: Inbound}}, "timeout"),
		Entry("transfer", &TransferError{Direction: Outbound}, "transfer"),
		Entry("submit", &SubmitError{Direction: Inbound, Cookie: -1}, "submit"),
		Entry("cancelled", fmt.Errorf("inbound wait: %w", context.Canceled), "cancelled"),
		Entry("mapping", fmt.Errorf("map: %w", dma.ErrMapping), "mapping"),
		Entry("allocation", fmt.Errorf("%w: %w", ErrAllocation, dma.ErrNoMemory), "allocation"),
		Entry("channel", ErrChannelUnavailable, "channel"),
		Entry("other", errors.New("boom"), "other"),
	)
})

var _ = Describe("FormatExecutionTime", func() {
	It("should not pad seconds", func() {
		Expect(FormatExecutionTime(61 * time.Second)).To(Equal("execution time : 1:1"))
		Expect(FormatExecutionTime(999 * time.Millisecond)).To(Equal("execution time : 0:0"))
	})
})
