//go:build linux

package xdma

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Engine opens XDMA device nodes as channels. It implements dma.Engine and
// dma.Allocator.
type Engine struct {
	name         string
	log          *logrus.Logger
	root         string
	lockPages    bool
	releaseDelay time.Duration

	lock        sync.Mutex
	claimed     map[string]*channel
	allocations map[*byte][]byte

	// Released channels whose transfers outlived the release delay. The
	// channel closes when its last transfer returns.
	lingering map[*channel]chan struct{}
}

// Build creates the engine. It fails if the node directory does not exist.
func (b Builder) Build(name string) (*Engine, error) {
	info, err := os.Stat(b.root)
	if err != nil {
		return nil, fmt.Errorf("xdma: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("xdma: %s is not a directory", b.root)
	}

	return &Engine{
		name:         name,
		log:          b.logger(),
		root:         b.root,
		lockPages:    b.lockPages,
		releaseDelay: b.releaseDelay,
		claimed:      make(map[string]*channel),
		allocations:  make(map[*byte][]byte),
		lingering:    make(map[*channel]chan struct{}),
	}, nil
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return e.name
}

// RequestChannel opens the node configured for the channel name.
func (e *Engine) RequestChannel(
	dev *platform.Device,
	name string,
) (dma.Channel, error) {
	if dev == nil {
		return nil, fmt.Errorf("request %s: nil device: %w", name, dma.ErrNoChannel)
	}

	node := dev.Property(PropertyPrefix+name, "")
	if node == "" {
		return nil, fmt.Errorf("%s: no node for %s: %w", dev.Name, name, dma.ErrNoChannel)
	}

	var dir dma.Direction
	switch {
	case strings.Contains(node, "_h2c_"):
		dir = dma.MemToDev
	case strings.Contains(node, "_c2h_"):
		dir = dma.DevToMem
	default:
		return nil, fmt.Errorf("%s: %s is not a dma node: %w", dev.Name, node, dma.ErrNoChannel)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	if _, busy := e.claimed[node]; busy {
		return nil, fmt.Errorf("%s: %s: %w", dev.Name, node, dma.ErrBusy)
	}

	path := filepath.Join(e.root, node)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %v: %w", dev.Name, path, err, dma.ErrNoChannel)
	}

	ch := &channel{
		engine:   e,
		name:     name,
		node:     node,
		dir:      dir,
		file:     f,
		mappings: make(map[dma.Addr][]byte),
		status:   make(map[dma.Cookie]dma.TxStatus),
	}
	e.claimed[node] = ch

	e.log.WithFields(logrus.Fields{
		"device":  dev.Name,
		"channel": name,
		"node":    path,
	}).Debug("channel opened")

	return ch, nil
}

// ReleaseChannel stops the channel and closes its node. Transfers in flight
// never signal. ReleaseChannel waits for them up to the release delay of the
// engine; after that it returns and the node closes when the last transfer
// returns. Until then Free keeps memory mapped instead of unmapping buffers
// the transfers may still use.
func (e *Engine) ReleaseChannel(c dma.Channel) {
	ch, ok := c.(*channel)
	if !ok || ch.engine != e {
		panic(fmt.Sprintf("channel %v does not belong to engine %s", c, e.name))
	}

	e.lock.Lock()
	if ch.released {
		e.lock.Unlock()
		e.log.WithField("channel", ch.name).Warn("channel released twice")
		return
	}

	ch.released = true
	delete(e.claimed, ch.node)

	for addr, buf := range ch.mappings {
		e.unlock(buf)
		delete(ch.mappings, addr)
	}
	e.lock.Unlock()

	idle := make(chan struct{})
	go func() {
		ch.inflight.Wait()
		e.closeNode(ch)
		close(idle)
	}()

	select {
	case <-idle:
		return
	case <-time.After(e.releaseDelay):
	}

	e.lock.Lock()
	e.lingering[ch] = idle
	e.lock.Unlock()

	e.log.WithFields(logrus.Fields{
		"channel": ch.name,
		"node":    ch.node,
	}).Warn("transfers still in flight after release")
}

func (e *Engine) closeNode(ch *channel) {
	if err := ch.file.Close(); err != nil {
		e.log.WithError(err).WithField("node", ch.node).Warn("close failed")
	}
}

// busy reports whether a released channel still has transfers in flight.
// The caller must hold e.lock.
func (e *Engine) busy() bool {
	for ch, idle := range e.lingering {
		select {
		case <-idle:
			delete(e.lingering, ch)
		default:
			return true
		}
	}

	return false
}

// Alloc maps page-aligned anonymous memory.
func (e *Engine) Alloc(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc %d bytes: %w", size, dma.ErrNoMemory)
	}

	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("alloc %d bytes: %v: %w", size, err, dma.ErrNoMemory)
	}

	e.lock.Lock()
	e.allocations[&buf[0]] = buf
	e.lock.Unlock()

	return buf, nil
}

// Free unmaps memory obtained from Alloc.
func (e *Engine) Free(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("free of empty buffer")
	}

	e.lock.Lock()
	whole, ok := e.allocations[&buf[0]]
	delete(e.allocations, &buf[0])
	busy := e.busy()
	e.lock.Unlock()

	if !ok {
		return fmt.Errorf("free of memory not allocated by %s", e.name)
	}

	if busy {
		e.log.WithField("size", len(whole)).
			Warn("memory kept mapped while released transfers run")
		return nil
	}

	return unix.Munmap(whole)
}

func (e *Engine) lockMemory(buf []byte) error {
	if !e.lockPages {
		return nil
	}

	return unix.Mlock(buf)
}

func (e *Engine) unlock(buf []byte) {
	if !e.lockPages {
		return
	}

	if err := unix.Munlock(buf); err != nil {
		e.log.WithError(err).Warn("munlock failed")
	}
}

func addrOf(buf []byte) dma.Addr {
	return dma.Addr(uintptr(unsafe.Pointer(&buf[0])))
}
