// Package simdma provides an in-process transfer engine: a pair of AXI DMA
// channels wired through an AXI-Stream FFT core.
//
// Outbound descriptors stream host memory into the core. Every completed
// outbound frame is transformed and queued at the core output, where it
// waits for an inbound descriptor to drain it into host memory. Transfer
// times follow the modelled clock and bus width. Failures can be injected
// with Faults.
package simdma

import (
	"fmt"
	"sync"
	"time"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sirupsen/logrus"
)

// Stats counts what happened on an engine. Per-direction counters are
// indexed by dma.Direction.
type Stats struct {
	ChannelRequests int
	ChannelReleases int
	DoubleReleases  int
	HeldChannels    int

	Allocs          int
	Frees           int
	LiveAllocations int
	LiveBytes       int

	Maps         [2]int
	Unmaps       [2]int
	LiveMappings int

	Prepares    [2]int
	Submits     [2]int
	Completions [2]int
}

type mapping struct {
	addr dma.Addr
	buf  []byte
	dir  dma.Direction
}

func (m *mapping) contains(s dma.Segment) bool {
	return s.Addr >= m.addr &&
		uint64(s.Addr)+uint64(s.Len) <= uint64(m.addr)+uint64(len(m.buf))
}

// Engine is a simulated transfer engine. It implements dma.Engine and
// dma.Allocator.
type Engine struct {
	name string
	log  *logrus.Logger

	freq           sim.Freq
	busWidth       uint64
	setupCycles    uint64
	computeCycles  uint64
	capacity       int
	channelDirs    map[string]dma.Direction
	faults         Faults
	completeInline bool

	lock          sync.Mutex
	claimed       map[string]*channel
	allocations   map[*byte]int
	allocated     int
	mappings      []*mapping
	mappedBuffers map[*byte]dma.Addr
	nextAddr      dma.Addr
	accelerators  map[string]*accelerator

	mapSeq     [2]int
	prepareSeq [2]int
	submitSeq  [2]int
	issueSeq   [2]int

	stats Stats
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	e.lock.Lock()
	defer e.lock.Unlock()

	s := e.stats
	s.HeldChannels = len(e.claimed)
	s.LiveAllocations = len(e.allocations)
	s.LiveBytes = e.allocated
	s.LiveMappings = len(e.mappings)

	return s
}

// SetFaults replaces the injected failures. Sequence numbers keep counting
// from where they are.
func (e *Engine) SetFaults(f Faults) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.faults = f
}

// RequestChannel claims a channel of the device.
func (e *Engine) RequestChannel(
	dev *platform.Device,
	name string,
) (dma.Channel, error) {
	if dev == nil {
		return nil, fmt.Errorf("request %s: nil device: %w", name, dma.ErrNoChannel)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	e.stats.ChannelRequests++

	dir, ok := e.channelDirs[name]
	if !ok || e.faults.channelMissing(name) {
		return nil, fmt.Errorf("%s: %s: %w", dev.Name, name, dma.ErrNoChannel)
	}

	key := dev.Name + "/" + name
	if _, busy := e.claimed[key]; busy {
		return nil, fmt.Errorf("%s: %s: %w", dev.Name, name, dma.ErrBusy)
	}

	ch := &channel{
		engine: e,
		name:   name,
		device: dev.Name,
		dir:    dir,
		status: make(map[dma.Cookie]dma.TxStatus),
	}
	e.claimed[key] = ch

	acc := e.acceleratorOf(dev.Name)
	if dir == dma.DevToMem {
		acc.rx = ch
	} else {
		acc.tx = ch
	}

	e.log.WithFields(logrus.Fields{
		"engine":    e.name,
		"device":    dev.Name,
		"channel":   name,
		"direction": dir,
	}).Debug("channel claimed")

	return ch, nil
}

// ReleaseChannel returns a channel. Releasing a channel twice is counted in
// Stats.DoubleReleases and otherwise ignored.
func (e *Engine) ReleaseChannel(c dma.Channel) {
	ch, ok := c.(*channel)
	if !ok || ch.engine != e {
		panic(fmt.Sprintf("channel %v does not belong to engine %s", c, e.name))
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	if ch.released {
		e.stats.DoubleReleases++
		e.log.WithField("channel", ch.name).Warn("channel released twice")
		return
	}

	ch.released = true
	ch.submitted = nil
	ch.active = nil
	delete(e.claimed, ch.device+"/"+ch.name)
	e.stats.ChannelReleases++

	acc := e.accelerators[ch.device]
	if acc.rx == ch {
		acc.rx = nil
	}
	if acc.tx == ch {
		acc.tx = nil
	}
	acc.outputs = nil
}

// Alloc returns zeroed memory.
func (e *Engine) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc %d bytes: %w", size, dma.ErrNoMemory)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	if e.capacity > 0 && e.allocated+size > e.capacity {
		return nil, fmt.Errorf("alloc %d bytes, %d of %d in use: %w",
			size, e.allocated, e.capacity, dma.ErrNoMemory)
	}

	buf := make([]byte, size)
	e.allocations[&buf[0]] = size
	e.allocated += size
	e.stats.Allocs++

	return buf, nil
}

// Free returns memory obtained from Alloc.
func (e *Engine) Free(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("free of empty buffer")
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	size, ok := e.allocations[&buf[0]]
	if !ok {
		return fmt.Errorf("free of memory not allocated by %s", e.name)
	}

	delete(e.allocations, &buf[0])
	e.allocated -= size
	e.stats.Frees++

	return nil
}

func (e *Engine) acceleratorOf(device string) *accelerator {
	acc, ok := e.accelerators[device]
	if !ok {
		acc = newAccelerator()
		e.accelerators[device] = acc
	}

	return acc
}

func (e *Engine) findMapping(s dma.Segment) *mapping {
	for _, m := range e.mappings {
		if m.contains(s) {
			return m
		}
	}

	return nil
}

func (e *Engine) transferTime(byteSize int) time.Duration {
	return e.freq.TransferTime(uint64(byteSize), e.busWidth, e.setupCycles)
}

func (e *Engine) computeTime() time.Duration {
	return e.freq.NCycles(e.computeCycles).Duration()
}

// after runs fn once d has passed. It must be called without the engine
// lock held.
func (e *Engine) after(d time.Duration, fn func()) {
	if e.completeInline {
		fn()
		return
	}

	time.AfterFunc(d, fn)
}

func (e *Engine) finishOutbound(d *descriptor) {
	e.lock.Lock()

	ch := d.ch
	if ch.released {
		e.lock.Unlock()
		return
	}

	frame := e.gather(d.sgl)
	ch.status[d.cookie] = dma.StatusComplete
	e.stats.Completions[dma.MemToDev]++

	acc := e.acceleratorOf(ch.device)
	out, ok := acc.transform(frame)
	cb := d.cb
	device := ch.device

	e.lock.Unlock()

	if cb != nil {
		cb()
	}

	if !ok {
		e.log.WithFields(logrus.Fields{
			"device": device,
			"bytes":  len(frame),
		}).Warn("accelerator dropped a malformed frame")
		return
	}

	e.after(e.computeTime(), func() {
		e.lock.Lock()
		if ch.released || acc.tx != ch {
			e.lock.Unlock()
			return
		}
		acc.outputs = append(acc.outputs, out)
		e.lock.Unlock()

		e.pump(device)
	})
}

type inboundJob struct {
	d     *descriptor
	frame []byte
}

// pump pairs queued accelerator output with active inbound descriptors.
func (e *Engine) pump(device string) {
	e.lock.Lock()

	var jobs []inboundJob
	acc := e.acceleratorOf(device)
	rx := acc.rx
	for rx != nil && len(rx.active) > 0 && len(acc.outputs) > 0 {
		jobs = append(jobs, inboundJob{d: rx.active[0], frame: acc.outputs[0]})
		rx.active = rx.active[1:]
		acc.outputs = acc.outputs[1:]
	}

	e.lock.Unlock()

	for _, j := range jobs {
		j := j
		e.after(e.transferTime(len(j.frame)), func() { e.finishInbound(j) })
	}
}

func (e *Engine) finishInbound(j inboundJob) {
	e.lock.Lock()

	ch := j.d.ch
	if ch.released {
		e.lock.Unlock()
		return
	}

	e.scatter(j.d.sgl, j.frame)
	ch.status[j.d.cookie] = dma.StatusComplete
	e.stats.Completions[dma.DevToMem]++
	cb := j.d.cb

	e.lock.Unlock()

	if cb != nil {
		cb()
	}
}

// gather copies the bytes a scatter-gather list points at. Segments whose
// mapping is gone read as zeros.
func (e *Engine) gather(sgl []dma.Segment) []byte {
	total := 0
	for _, s := range sgl {
		total += s.Len
	}

	frame := make([]byte, 0, total)
	for _, s := range sgl {
		m := e.findMapping(s)
		if m == nil {
			frame = append(frame, make([]byte, s.Len)...)
			continue
		}

		off := int(s.Addr - m.addr)
		frame = append(frame, m.buf[off:off+s.Len]...)
	}

	return frame
}

// scatter writes a frame into the memory a scatter-gather list points at.
// Writes to segments whose mapping is gone are lost.
func (e *Engine) scatter(sgl []dma.Segment, frame []byte) {
	for _, s := range sgl {
		if len(frame) == 0 {
			return
		}

		n := min(s.Len, len(frame))
		if m := e.findMapping(s); m != nil {
			off := int(s.Addr - m.addr)
			copy(m.buf[off:off+n], frame[:n])
		}
		frame = frame[n:]
	}
}
