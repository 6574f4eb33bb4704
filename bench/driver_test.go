package bench

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/dma/simdma"
	"github.com/sarchlab/dmabench/fft"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sarchlab/dmabench/tracing"
)

const poison = 0xab

type funcHook struct {
	f func(ctx sim.HookCtx)
}

func (h *funcHook) Func(ctx sim.HookCtx) {
	h.f(ctx)
}

func testConfig(iterations int) Config {
	cfg := DefaultConfig()
	cfg.Iterations = iterations
	cfg.OutboundTimeout = time.Second
	cfg.InboundTimeout = time.Second
	return cfg
}

var _ = Describe("Driver", func() {
	var (
		engine *simdma.Engine
		dev    *platform.Device
	)

	build := func(cfg Config) *Driver {
		return MakeBuilder().
			WithEngine(engine).
			WithAllocator(engine).
			WithDevice(dev).
			WithConfig(cfg).
			Build("Driver")
	}

	expectNothingHeld := func() {
		s := engine.Stats()
		Expect(s.HeldChannels).To(Equal(0))
		Expect(s.LiveAllocations).To(Equal(0))
		Expect(s.LiveMappings).To(Equal(0))
		Expect(s.DoubleReleases).To(Equal(0))
	}

	BeforeEach(func() {
		engine = simdma.MakeBuilder().WithInlineCompletion().Build("SimDMA")
		dev = platform.NewDevice("fft0", CompatibleAXIDMATest)
	})

	It("should panic when built without an engine", func() {
		Expect(func() { MakeBuilder().WithDevice(dev).Build("Driver") }).To(Panic())
	})

	It("should complete a run", func() {
		d := build(testConfig(3))

		res, err := d.Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(res.OK()).To(BeTrue())
		Expect(res.Completed).To(Equal(3))
		Expect(res.Requested).To(Equal(3))
		Expect(res.FailedIteration).To(Equal(-1))
		Expect(res.Elapsed()).To(BeNumerically(">=", 0))
		Expect(res.String()).To(HavePrefix("execution time : "))
		expectNothingHeld()
	})

	It("should complete a run on timers", func() {
		engine = simdma.MakeBuilder().Build("SimDMA")
		d := build(testConfig(3))

		res, err := d.Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Completed).To(Equal(3))
		expectNothingHeld()
	})

	It("should map, submit and unmap once per iteration", func() {
		d := build(testConfig(5))

		_, err := d.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())

		s := engine.Stats()
		for _, dir := range []dma.Direction{dma.MemToDev, dma.DevToMem} {
			Expect(s.Maps[dir]).To(Equal(5))
			Expect(s.Unmaps[dir]).To(Equal(5))
			Expect(s.Submits[dir]).To(Equal(5))
			Expect(s.Completions[dir]).To(Equal(5))
		}
		Expect(s.Allocs).To(Equal(2))
		Expect(s.Frees).To(Equal(2))
		Expect(s.ChannelRequests).To(Equal(2))
		Expect(s.ChannelReleases).To(Equal(2))
	})

	It("should overwrite the receive buffer in every iteration", func() {
		d := build(testConfig(3))

		expected := make([]byte, 1024*fft.WordSize)
		overwritten := 0
		d.AcceptHook(&funcHook{f: func(ctx sim.HookCtx) {
			if ctx.Pos == HookPosRunStart {
				rc := ctx.Item.(*RunContext)
				fft.NewTransformer(1024).Process(expected, rc.Send.Bytes())
				fillBytes(rc.Receive.Bytes(), poison)
				return
			}

			if ctx.Pos != HookPosIterationEnd {
				return
			}

			recv := ctx.Detail.(*RunContext).Receive.Bytes()
			Expect(recv).To(Equal(expected))
			overwritten++
			fillBytes(recv, poison)
		}})

		_, err := d.Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(overwritten).To(Equal(3))
	})

	It("should time out on a silent inbound channel", func() {
		engine.SetFaults(simdma.Faults{Silent: &simdma.Trigger{Dir: dma.DevToMem}})
		cfg := testConfig(3)
		cfg.InboundTimeout = 50 * time.Millisecond
		d := build(cfg)

		res, err := d.Run(context.Background())

		var timeout *TimeoutError
		Expect(errors.As(err, &timeout)).To(BeTrue())
		Expect(timeout.Iteration).To(Equal(0))
		Expect(timeout.Direction).To(Equal(Inbound))

		var ie *IterationError
		Expect(errors.As(err, &ie)).To(BeTrue())
		Expect(ie.Iteration).To(Equal(0))
		Expect(ie.Channel).To(Equal(DefaultRxChannel))

		Expect(res.OK()).To(BeFalse())
		Expect(res.FailedIteration).To(Equal(0))
		Expect(res.Completed).To(Equal(0))
		Expect(res.Elapsed()).To(BeZero())
		expectNothingHeld()
	})

	It("should fail at the iteration whose outbound transfer is silent", func() {
		engine.SetFaults(simdma.Faults{Silent: &simdma.Trigger{Dir: dma.MemToDev, From: 2}})
		cfg := testConfig(5)
		cfg.OutboundTimeout = 50 * time.Millisecond
		d := build(cfg)

		res, err := d.Run(context.Background())

		var timeout *TimeoutError
		Expect(errors.As(err, &timeout)).To(BeTrue())
		Expect(timeout.Direction).To(Equal(Outbound))
		Expect(res.FailedIteration).To(Equal(2))
		Expect(res.Completed).To(Equal(2))
		Expect(res.String()).To(ContainSubstring("iteration 2 of 5"))
		expectNothingHeld()
	})

	It("should release outbound when inbound is missing", func() {
		engine.SetFaults(simdma.Faults{MissingChannels: []string{DefaultRxChannel}})
		d := build(testConfig(3))

		res, err := d.Run(context.Background())

		Expect(err).To(MatchError(ErrChannelUnavailable))
		Expect(res.FailedIteration).To(Equal(-1))
		Expect(engine.Stats().ChannelReleases).To(Equal(1))
		Expect(engine.Stats().Allocs).To(Equal(0))
		expectNothingHeld()
	})

	It("should release everything when a buffer cannot be allocated", func() {
		engine = simdma.MakeBuilder().
			WithInlineCompletion().
			WithCapacity(6000).
			Build("SimDMA")
		d := build(testConfig(3))

		_, err := d.Run(context.Background())

		Expect(err).To(MatchError(ErrAllocation))
		Expect(engine.Stats().Frees).To(Equal(1))
		expectNothingHeld()
	})

	It("should fail on rejected submissions", func() {
		engine.SetFaults(simdma.Faults{SubmitFail: &simdma.Trigger{Dir: dma.MemToDev, From: 1}})
		d := build(testConfig(3))

		res, err := d.Run(context.Background())

		var se *SubmitError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Direction).To(Equal(Outbound))
		Expect(res.FailedIteration).To(Equal(1))
		expectNothingHeld()
	})

	It("should fail on mapping errors", func() {
		engine.SetFaults(simdma.Faults{MapFail: &simdma.Trigger{Dir: dma.DevToMem}})
		d := build(testConfig(3))

		_, err := d.Run(context.Background())

		Expect(err).To(MatchError(dma.ErrMapping))
		expectNothingHeld()
	})

	It("should fail on prepare errors", func() {
		engine.SetFaults(simdma.Faults{PrepareFail: &simdma.Trigger{Dir: dma.MemToDev}})
		d := build(testConfig(3))

		_, err := d.Run(context.Background())

		Expect(err).To(MatchError(dma.ErrPrepare))
		expectNothingHeld()
	})

	It("should stop when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := build(testConfig(3))

		res, err := d.Run(ctx)

		Expect(err).To(MatchError(context.Canceled))
		Expect(res.FailedIteration).To(Equal(0))
		expectNothingHeld()
	})

	It("should keep the samples when asked to", func() {
		cfg := testConfig(1)
		cfg.DumpSamples = true
		d := build(cfg)

		res, err := d.Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Samples).To(HaveLen(1024))
		Expect(res.DumpSamples()[3]).To(HavePrefix("rx[3] = "))
	})

	It("should trace iterations", func() {
		d := build(testConfig(4))
		tracer := tracing.NewDurationTracer(sim.NewWallClock(),
			tracing.KindIs(TaskKindIteration))
		tracing.CollectTrace(d, tracer)

		_, err := d.Run(context.Background())

		Expect(err).NotTo(HaveOccurred())
		Expect(tracer.TotalCount()).To(Equal(uint64(4)))
	})
})

func fillBytes(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
