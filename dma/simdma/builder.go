package simdma

import (
	"io"
	"log"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sirupsen/logrus"
)

// Default channel names of the AXI DMA test design.
const (
	DefaultTxChannel = "axidma0"
	DefaultRxChannel = "axidma1"
)

// A Builder can build simulated transfer engines.
type Builder struct {
	freq           sim.Freq
	busWidth       uint64
	setupCycles    uint64
	computeCycles  uint64
	capacity       int
	channels       map[string]dma.Direction
	faults         Faults
	log            *logrus.Logger
	completeInline bool
}

// MakeBuilder creates a builder with the parameters of a 100 MHz, 32-bit
// AXI-Stream design.
func MakeBuilder() Builder {
	return Builder{
		freq:          100 * sim.MHz,
		busWidth:      4,
		setupCycles:   24,
		computeCycles: 2048,
		channels: map[string]dma.Direction{
			DefaultTxChannel: dma.MemToDev,
			DefaultRxChannel: dma.DevToMem,
		},
	}
}

// WithFreq sets the clock of the DMA and the accelerator.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithBusWidth sets the stream width in bytes.
func (b Builder) WithBusWidth(width uint64) Builder {
	b.busWidth = width
	return b
}

// WithSetupCycles sets the per-descriptor fetch latency in cycles.
func (b Builder) WithSetupCycles(cycles uint64) Builder {
	b.setupCycles = cycles
	return b
}

// WithComputeCycles sets the latency of the transform core in cycles.
func (b Builder) WithComputeCycles(cycles uint64) Builder {
	b.computeCycles = cycles
	return b
}

// WithCapacity limits the bytes of memory the allocator hands out. Zero
// means no limit.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// WithChannel declares a channel and the direction it is wired for.
func (b Builder) WithChannel(name string, dir dma.Direction) Builder {
	channels := make(map[string]dma.Direction, len(b.channels)+1)
	for k, v := range b.channels {
		channels[k] = v
	}
	channels[name] = dir
	b.channels = channels

	return b
}

// WithFaults sets the failures the engine injects.
func (b Builder) WithFaults(f Faults) Builder {
	b.faults = f
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.log = l
	return b
}

// WithInlineCompletion makes IssuePending finish the transfers before it
// returns instead of on timers. Useful for deterministic tests.
func (b Builder) WithInlineCompletion() Builder {
	b.completeInline = true
	return b
}

// Build creates the engine.
func (b Builder) Build(name string) *Engine {
	b.parametersMustBeValid()

	l := b.log
	if l == nil {
		l = logrus.New()
		l.SetOutput(io.Discard)
	}

	return &Engine{
		name:           name,
		log:            l,
		freq:           b.freq,
		busWidth:       b.busWidth,
		setupCycles:    b.setupCycles,
		computeCycles:  b.computeCycles,
		capacity:       b.capacity,
		channelDirs:    b.channels,
		faults:         b.faults,
		completeInline: b.completeInline,
		claimed:        make(map[string]*channel),
		allocations:    make(map[*byte]int),
		mappedBuffers:  make(map[*byte]dma.Addr),
		accelerators:   make(map[string]*accelerator),
		nextAddr:       0x1000_0000,
	}
}

func (b Builder) parametersMustBeValid() {
	if b.freq <= 0 {
		log.Panic("frequency must be positive")
	}

	if b.busWidth == 0 {
		log.Panic("bus width must be positive")
	}

	if b.capacity < 0 {
		log.Panic("capacity cannot be negative")
	}
}
