package bench

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/dma/simdma"
	"github.com/sarchlab/dmabench/platform"
	"go.uber.org/mock/gomock"
)

var _ = Describe("RunContext", func() {
	var (
		engine *simdma.Engine
		rc     *RunContext
	)

	BeforeEach(func() {
		engine = simdma.MakeBuilder().WithInlineCompletion().Build("SimDMA")
		dev := platform.NewDevice("fft0", CompatibleAXIDMATest)
		cfg := DefaultConfig()

		rc = NewRunContext("run", cfg,
			NewBufferManager(engine),
			NewChannelAcquirer(engine, dev, cfg.TxChannel, cfg.RxChannel),
			discardLogger())
	})

	It("should acquire channels and buffers", func() {
		Expect(rc.Acquire()).To(Succeed())

		channels, buffers := rc.Held()
		Expect(channels).To(Equal(2))
		Expect(buffers).To(Equal(2))
		Expect(rc.Send.Word(1)).To(Equal(PatternOdd))
	})

	It("should tear down a context that acquired nothing", func() {
		Expect(rc.Teardown()).To(Succeed())

		channels, buffers := rc.Held()
		Expect(channels).To(Equal(0))
		Expect(buffers).To(Equal(0))
	})

	It("should be safe to tear down twice", func() {
		Expect(rc.Acquire()).To(Succeed())

		Expect(rc.Teardown()).To(Succeed())
		Expect(rc.Teardown()).To(Succeed())

		s := engine.Stats()
		Expect(s.Frees).To(Equal(2))
		Expect(s.ChannelReleases).To(Equal(2))
		Expect(s.DoubleReleases).To(Equal(0))
	})

	It("should unmap regions left mapped", func() {
		Expect(rc.Acquire()).To(Succeed())
		_, err := rc.Map(rc.Tx, rc.Send)
		Expect(err).NotTo(HaveOccurred())
		_, err = rc.Map(rc.Rx, rc.Receive)
		Expect(err).NotTo(HaveOccurred())

		Expect(rc.Teardown()).To(Succeed())

		s := engine.Stats()
		Expect(s.Unmaps[dma.MemToDev]).To(Equal(1))
		Expect(s.Unmaps[dma.DevToMem]).To(Equal(1))
		Expect(s.LiveMappings).To(Equal(0))
	})

	It("should not map on a released channel", func() {
		Expect(rc.Acquire()).To(Succeed())
		Expect(rc.Teardown()).To(Succeed())

		_, err := rc.Map(rc.Tx, rc.Send)
		Expect(err).To(MatchError(dma.ErrReleased))
	})

	It("should not unmap a region twice", func() {
		Expect(rc.Acquire()).To(Succeed())
		r, err := rc.Map(rc.Tx, rc.Send)
		Expect(err).NotTo(HaveOccurred())

		Expect(rc.Unmap(rc.Tx, r)).To(Succeed())
		Expect(rc.Unmap(rc.Tx, r)).To(MatchError(dma.ErrNotMapped))
	})

	Context("releasing in order", func() {
		var mockCtrl *gomock.Controller

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should free receive, send, then release inbound and outbound", func() {
			mockEngine := NewMockEngine(mockCtrl)
			allocator := NewMockAllocator(mockCtrl)
			txCh := NewMockChannel(mockCtrl)
			rxCh := NewMockChannel(mockCtrl)
			dev := platform.NewDevice("fft0", CompatibleAXIDMATest)

			send := make([]byte, 8)
			recv := make([]byte, 8)
			cfg := DefaultConfig()
			cfg.Length = 2

			mockEngine.EXPECT().RequestChannel(dev, "axidma0").Return(txCh, nil)
			mockEngine.EXPECT().RequestChannel(dev, "axidma1").Return(rxCh, nil)
			gomock.InOrder(
				allocator.EXPECT().Alloc(8).Return(send, nil),
				allocator.EXPECT().Alloc(8).Return(recv, nil),
			)

			rc = NewRunContext("run", cfg,
				NewBufferManager(allocator),
				NewChannelAcquirer(mockEngine, dev, cfg.TxChannel, cfg.RxChannel),
				discardLogger())
			Expect(rc.Acquire()).To(Succeed())

			r := dma.Region{Addr: 0x10, Len: 8, Dir: dma.MemToDev}
			txCh.EXPECT().Map(gomock.Any(), dma.MemToDev).Return(r, nil)
			_, err := rc.Map(rc.Tx, rc.Send)
			Expect(err).NotTo(HaveOccurred())

			gomock.InOrder(
				txCh.EXPECT().Unmap(r).Return(nil),
				allocator.EXPECT().Free(gomock.Any()).
					Do(func(b []byte) { Expect(&b[0]).To(BeIdenticalTo(&recv[0])) }).
					Return(nil),
				allocator.EXPECT().Free(gomock.Any()).
					Do(func(b []byte) { Expect(&b[0]).To(BeIdenticalTo(&send[0])) }).
					Return(nil),
				mockEngine.EXPECT().ReleaseChannel(rxCh),
				mockEngine.EXPECT().ReleaseChannel(txCh),
			)

			Expect(rc.Teardown()).To(Succeed())
		})
	})
})
