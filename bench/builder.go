package bench

import (
	"io"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sirupsen/logrus"
)

// A Builder can build benchmark drivers.
type Builder struct {
	engine    dma.Engine
	allocator dma.Allocator
	device    *platform.Device
	cfg       Config
	log       *logrus.Logger
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: DefaultConfig(),
	}
}

// WithEngine sets the engine the channels are requested from.
func (b Builder) WithEngine(e dma.Engine) Builder {
	b.engine = e
	return b
}

// WithAllocator sets where the buffers are allocated.
func (b Builder) WithAllocator(a dma.Allocator) Builder {
	b.allocator = a
	return b
}

// WithDevice sets the device whose channels are used.
func (b Builder) WithDevice(dev *platform.Device) Builder {
	b.device = dev
	return b
}

// WithConfig sets the run configuration.
func (b Builder) WithConfig(cfg Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.log = l
	return b
}

// Build creates the driver.
func (b Builder) Build(name string) *Driver {
	b.parametersMustBeValid()

	l := b.log
	if l == nil {
		l = logrus.New()
		l.SetOutput(io.Discard)
	}

	return &Driver{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		log:          l,
		engine:       b.engine,
		allocator:    b.allocator,
		device:       b.device,
		cfg:          b.cfg,
	}
}

func (b Builder) parametersMustBeValid() {
	if b.engine == nil {
		panic("engine is not set")
	}

	if b.allocator == nil {
		panic("allocator is not set")
	}

	if b.device == nil {
		panic("device is not set")
	}

	if err := b.cfg.Validate(); err != nil {
		panic(err)
	}
}
