package platform

import (
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Bus", func() {
	var (
		mockCtrl *gomock.Controller
		drv      *MockDriver
		bus      *Bus
		dev      *Device
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		drv = NewMockDriver(mockCtrl)
		drv.EXPECT().Name().Return("fft").AnyTimes()
		drv.EXPECT().Compatible().
			Return([]string{"xlnx,axi-dma-test-1.00.a"}).AnyTimes()

		l := logrus.New()
		l.SetOutput(io.Discard)
		bus = NewBus(l)
		dev = NewDevice("fft0", "xlnx,axi-dma-test-1.00.a")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should probe a matching device when the driver registers", func() {
		Expect(bus.AddDevice(dev)).To(MatchError(ErrNoMatch))

		drv.EXPECT().Probe(dev).Return(nil)
		Expect(bus.RegisterDriver(drv)).To(Succeed())

		Expect(bus.BoundDriver(dev)).To(BeIdenticalTo(drv))
	})

	It("should probe a matching device when it is added", func() {
		Expect(bus.RegisterDriver(drv)).To(Succeed())

		drv.EXPECT().Probe(dev).Return(nil)
		Expect(bus.AddDevice(dev)).To(Succeed())
		Expect(bus.BoundDriver(dev)).To(BeIdenticalTo(drv))
	})

	It("should not probe a device that does not match", func() {
		Expect(bus.RegisterDriver(drv)).To(Succeed())

		other := NewDevice("uart0", "ns16550a")
		Expect(bus.AddDevice(other)).To(MatchError(ErrNoMatch))
		Expect(bus.BoundDriver(other)).To(BeNil())
	})

	It("should leave the device unbound when probing fails", func() {
		Expect(bus.RegisterDriver(drv)).To(Succeed())

		probeErr := errors.New("no channel")
		drv.EXPECT().Probe(dev).Return(probeErr)

		err := bus.AddDevice(dev)
		Expect(errors.Is(err, probeErr)).To(BeTrue())
		Expect(bus.BoundDriver(dev)).To(BeNil())
	})

	It("should call remove when the device goes away", func() {
		Expect(bus.RegisterDriver(drv)).To(Succeed())
		drv.EXPECT().Probe(dev).Return(nil)
		Expect(bus.AddDevice(dev)).To(Succeed())

		drv.EXPECT().Remove(dev).Return(nil)
		bus.RemoveDevice(dev)
		Expect(bus.BoundDriver(dev)).To(BeNil())

		bus.RemoveDevice(dev)
	})

	It("should unbind devices when the driver unregisters", func() {
		Expect(bus.RegisterDriver(drv)).To(Succeed())
		drv.EXPECT().Probe(dev).Return(nil)
		Expect(bus.AddDevice(dev)).To(Succeed())

		drv.EXPECT().Remove(dev).Return(nil)
		bus.UnregisterDriver(drv)

		Expect(bus.BoundDriver(dev)).To(BeNil())
	})

	It("should refuse to register a driver twice", func() {
		Expect(bus.RegisterDriver(drv)).To(Succeed())
		Expect(bus.RegisterDriver(drv)).NotTo(Succeed())
	})
})

var _ = Describe("Device", func() {
	It("should return properties with defaults", func() {
		dev := NewDevice("fft0")
		dev.Properties["node"] = "/dev/xdma0"

		Expect(dev.Property("node", "x")).To(Equal("/dev/xdma0"))
		Expect(dev.Property("missing", "x")).To(Equal("x"))
	})

	It("should store driver data", func() {
		dev := NewDevice("fft0")
		dev.SetDriverData(42)
		Expect(dev.DriverData()).To(Equal(42))
	})
})
