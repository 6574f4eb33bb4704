package bench

import (
	"context"
	"fmt"
	"sync"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sirupsen/logrus"
)

// CompatibleAXIDMATest is the compatible string of the FFT test design.
const CompatibleAXIDMATest = "xlnx,axi-dma-test-1.00.a"

type boundRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	rc     *RunContext
}

// Module is the platform driver of the benchmark. Probe runs the benchmark
// on the device and Remove stops it and releases whatever it still holds.
type Module struct {
	name      string
	ctx       context.Context
	log       *logrus.Logger
	engine    dma.Engine
	allocator dma.Allocator
	cfg       Config
	hooks     []sim.Hook

	// OnResult, if set, receives the result of every run.
	OnResult func(dev *platform.Device, res *Result)

	lock sync.Mutex
	runs map[*platform.Device]*boundRun
}

// NewModule creates a Module. Runs are cancelled when ctx is done. The hooks
// are attached to the driver of every run.
func NewModule(
	ctx context.Context,
	engine dma.Engine,
	allocator dma.Allocator,
	cfg Config,
	log *logrus.Logger,
	hooks ...sim.Hook,
) *Module {
	return &Module{
		name:      "fft_driver",
		ctx:       ctx,
		log:       log,
		engine:    engine,
		allocator: allocator,
		cfg:       cfg,
		hooks:     hooks,
		runs:      make(map[*platform.Device]*boundRun),
	}
}

// Name returns the name of the driver.
func (m *Module) Name() string {
	return m.name
}

// Compatible returns the compatible strings the module binds to.
func (m *Module) Compatible() []string {
	return []string{CompatibleAXIDMATest}
}

// Probe runs the benchmark on dev and returns when it ends. The result is
// attached to dev as driver data.
func (m *Module) Probe(dev *platform.Device) error {
	driver := MakeBuilder().
		WithEngine(m.engine).
		WithAllocator(m.allocator).
		WithDevice(dev).
		WithConfig(m.cfg).
		WithLogger(m.log).
		Build(dev.Name)

	for _, h := range m.hooks {
		driver.AcceptHook(h)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	run := &boundRun{
		cancel: cancel,
		done:   make(chan struct{}),
		rc:     driver.NewRunContext(),
	}

	m.lock.Lock()
	if _, busy := m.runs[dev]; busy {
		m.lock.Unlock()
		cancel()
		return fmt.Errorf("device %s is already probed", dev.Name)
	}
	m.runs[dev] = run
	m.lock.Unlock()

	res, err := driver.RunWith(ctx, run.rc)
	close(run.done)
	cancel()

	dev.SetDriverData(res)
	if m.OnResult != nil {
		m.OnResult(dev, res)
	}

	if err != nil {
		m.lock.Lock()
		delete(m.runs, dev)
		m.lock.Unlock()
	}

	return err
}

// Remove stops the run on dev, if any, and releases what it holds. Calling
// Remove again, or on a device that was never probed, does nothing.
func (m *Module) Remove(dev *platform.Device) error {
	m.lock.Lock()
	run, ok := m.runs[dev]
	delete(m.runs, dev)
	m.lock.Unlock()

	if !ok {
		return nil
	}

	run.cancel()
	<-run.done

	return run.rc.Teardown()
}
