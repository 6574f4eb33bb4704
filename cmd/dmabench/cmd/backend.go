package cmd

import (
	"fmt"

	"github.com/sarchlab/dmabench/bench"
	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/dma/simdma"
	"github.com/sarchlab/dmabench/dma/xdma"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

type backendOptions struct {
	name         string
	deviceName   string
	xdmaRoot     string
	xdmaInstance int
	noPageLock   bool
	simInline    bool
}

func addBackendFlags(flags *pflag.FlagSet, b *backendOptions) {
	flags.StringVar(&b.name, "backend", "sim", "transfer engine, sim or xdma")
	flags.StringVar(&b.deviceName, "device", "fft0", "name of the platform device")
	flags.StringVar(&b.xdmaRoot, "xdma-root", "/dev", "directory of the xdma nodes")
	flags.IntVar(&b.xdmaInstance, "xdma-instance", 0, "xdma card instance")
	flags.BoolVar(&b.noPageLock, "no-page-lock", false,
		"do not lock xdma buffers in memory")
	flags.BoolVar(&b.simInline, "sim-inline", false,
		"complete simulated transfers inline instead of on timers")
}

type backend interface {
	dma.Engine
	dma.Allocator
}

// newBackend creates the transfer engine and the device it serves.
func newBackend(
	b backendOptions,
	cfg bench.Config,
	log *logrus.Logger,
) (backend, *platform.Device, error) {
	dev := platform.NewDevice(b.deviceName, bench.CompatibleAXIDMATest)

	switch b.name {
	case "sim":
		builder := simdma.MakeBuilder().
			WithChannel(cfg.TxChannel, dma.MemToDev).
			WithChannel(cfg.RxChannel, dma.DevToMem).
			WithLogger(log)
		if b.simInline {
			builder = builder.WithInlineCompletion()
		}

		return builder.Build("SimDMA"), dev, nil
	case "xdma":
		dev.Properties[xdma.PropertyPrefix+cfg.TxChannel] =
			xdma.NodeFor(b.xdmaInstance, true, 0)
		dev.Properties[xdma.PropertyPrefix+cfg.RxChannel] =
			xdma.NodeFor(b.xdmaInstance, false, 0)

		builder := xdma.MakeBuilder().WithRoot(b.xdmaRoot).WithLogger(log)
		if b.noPageLock {
			builder = builder.WithoutPageLocking()
		}

		engine, err := builder.Build("XDMA")
		if err != nil {
			return nil, nil, err
		}

		return engine, dev, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q, want sim or xdma", b.name)
	}
}
