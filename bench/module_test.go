package bench

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/dma/simdma"
	"github.com/sarchlab/dmabench/platform"
)

var _ = Describe("Module", func() {
	var (
		engine *simdma.Engine
		bus    *platform.Bus
		dev    *platform.Device
		m      *Module
	)

	BeforeEach(func() {
		engine = simdma.MakeBuilder().WithInlineCompletion().Build("SimDMA")
		bus = platform.NewBus(discardLogger())
		dev = platform.NewDevice("fft0", CompatibleAXIDMATest)
		m = NewModule(context.Background(), engine, engine, testConfig(3), discardLogger())
	})

	It("should run when a matching device is probed", func() {
		var results []*Result
		m.OnResult = func(_ *platform.Device, res *Result) {
			results = append(results, res)
		}

		Expect(bus.RegisterDriver(m)).To(Succeed())
		Expect(bus.AddDevice(dev)).To(Succeed())

		Expect(results).To(HaveLen(1))
		Expect(results[0].Completed).To(Equal(3))
		Expect(dev.DriverData()).To(BeIdenticalTo(results[0]))
		Expect(bus.BoundDriver(dev)).To(BeIdenticalTo(m))
	})

	It("should ignore devices that are not compatible", func() {
		Expect(bus.RegisterDriver(m)).To(Succeed())

		err := bus.AddDevice(platform.NewDevice("uart0", "xlnx,xps-uartlite-1.00.a"))

		Expect(err).To(MatchError(platform.ErrNoMatch))
		Expect(engine.Stats().ChannelRequests).To(Equal(0))
	})

	It("should leave the device unbound when the run fails", func() {
		engine.SetFaults(simdma.Faults{MissingChannels: []string{DefaultTxChannel}})
		Expect(bus.RegisterDriver(m)).To(Succeed())

		err := bus.AddDevice(dev)

		Expect(err).To(MatchError(ErrChannelUnavailable))
		Expect(bus.BoundDriver(dev)).To(BeNil())
	})

	It("should be safe to remove more than once", func() {
		Expect(bus.RegisterDriver(m)).To(Succeed())
		Expect(bus.AddDevice(dev)).To(Succeed())

		bus.RemoveDevice(dev)
		Expect(m.Remove(dev)).To(Succeed())
		Expect(m.Remove(dev)).To(Succeed())

		Expect(engine.Stats().HeldChannels).To(Equal(0))
		Expect(engine.Stats().DoubleReleases).To(Equal(0))
	})

	It("should stop a run in progress on remove", func() {
		engine = simdma.MakeBuilder().
			WithFaults(simdma.Faults{Silent: &simdma.Trigger{Dir: dma.DevToMem}}).
			Build("SimDMA")
		cfg := testConfig(3)
		cfg.InboundTimeout = time.Hour
		m = NewModule(context.Background(), engine, engine, cfg, discardLogger())

		errs := make(chan error, 1)
		go func() { errs <- m.Probe(dev) }()

		Eventually(func() int { return engine.Stats().Submits[dma.DevToMem] }).
			Should(Equal(1))
		Expect(m.Remove(dev)).To(Succeed())

		Eventually(errs).Should(Receive(MatchError(context.Canceled)))
		Expect(engine.Stats().HeldChannels).To(Equal(0))
		Expect(engine.Stats().LiveAllocations).To(Equal(0))
	})
})
