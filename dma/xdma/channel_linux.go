//go:build linux

package xdma

import (
	"fmt"
	"io"
	"sync"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sirupsen/logrus"
)

// nodeFile is the open device node of a channel.
type nodeFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

type channel struct {
	engine *Engine
	name   string
	node   string
	dir    dma.Direction
	file   nodeFile

	// Counts the I/O goroutines still using file. Add only under
	// engine.lock while the channel is not released.
	inflight sync.WaitGroup

	// Guarded by engine.lock.
	released   bool
	mappings   map[dma.Addr][]byte
	nextCookie dma.Cookie
	submitted  []*descriptor
	status     map[dma.Cookie]dma.TxStatus
}

func (c *channel) Name() string {
	return c.name
}

func (c *channel) String() string {
	return c.node
}

func (c *channel) Map(buf []byte, dir dma.Direction) (dma.Region, error) {
	if len(buf) == 0 {
		return dma.Region{}, fmt.Errorf("map of empty buffer on %s: %w", c, dma.ErrMapping)
	}

	if dir != c.dir {
		return dma.Region{}, fmt.Errorf("%s cannot map for %s: %w", c, dir, dma.ErrMapping)
	}

	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	if c.released {
		return dma.Region{}, fmt.Errorf("map on %s: %w", c, dma.ErrReleased)
	}

	addr := addrOf(buf)
	if _, ok := c.mappings[addr]; ok {
		return dma.Region{}, fmt.Errorf("buffer at %#x on %s: %w",
			addr, c, dma.ErrAlreadyMapped)
	}

	if err := e.lockMemory(buf); err != nil {
		return dma.Region{}, fmt.Errorf("mlock on %s: %v: %w", c, err, dma.ErrMapping)
	}

	c.mappings[addr] = buf

	return dma.Region{Addr: addr, Len: len(buf), Dir: dir}, nil
}

func (c *channel) Unmap(r dma.Region) error {
	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	buf, ok := c.mappings[r.Addr]
	if !ok {
		return fmt.Errorf("unmap %#x on %s: %w", r.Addr, c, dma.ErrNotMapped)
	}

	delete(c.mappings, r.Addr)
	e.unlock(buf)

	return nil
}

// segment returns the mapped memory behind s.
func (c *channel) segment(s dma.Segment) []byte {
	for addr, buf := range c.mappings {
		if s.Addr >= addr && uint64(s.Addr)+uint64(s.Len) <= uint64(addr)+uint64(len(buf)) {
			off := int(s.Addr - addr)
			return buf[off : off+s.Len]
		}
	}

	return nil
}

func (c *channel) PrepareSlaveSG(
	sgl []dma.Segment,
	dir dma.Direction,
	_ dma.PrepFlags,
) (dma.Descriptor, error) {
	if dir != c.dir {
		return nil, fmt.Errorf("%s is a %s node, not %s: %w", c, c.dir, dir, dma.ErrPrepare)
	}

	if len(sgl) == 0 {
		return nil, fmt.Errorf("empty scatter-gather list on %s: %w", c, dma.ErrPrepare)
	}

	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	if c.released {
		return nil, fmt.Errorf("prepare on %s: %w", c, dma.ErrReleased)
	}

	chunks := make([][]byte, 0, len(sgl))
	for _, s := range sgl {
		chunk := c.segment(s)
		if s.Len <= 0 || chunk == nil {
			return nil, fmt.Errorf("segment %#x+%d on %s is not mapped: %w",
				s.Addr, s.Len, c, dma.ErrPrepare)
		}
		chunks = append(chunks, chunk)
	}

	return &descriptor{ch: c, chunks: chunks}, nil
}

// IssuePending starts one I/O goroutine per submitted descriptor.
func (c *channel) IssuePending() {
	e := c.engine

	e.lock.Lock()
	if c.released {
		e.lock.Unlock()
		return
	}

	pending := c.submitted
	c.submitted = nil
	c.inflight.Add(len(pending))
	e.lock.Unlock()

	for _, d := range pending {
		go c.run(d)
	}
}

func (c *channel) run(d *descriptor) {
	defer c.inflight.Done()

	var err error
	var off int64
	for _, chunk := range d.chunks {
		var n int
		if c.dir == dma.MemToDev {
			n, err = c.file.WriteAt(chunk, off)
		} else {
			n, err = c.file.ReadAt(chunk, off)
		}

		if err == nil && n != len(chunk) {
			err = fmt.Errorf("short transfer of %d of %d bytes", n, len(chunk))
		}

		if err != nil {
			break
		}

		off += int64(n)
	}

	e := c.engine
	e.lock.Lock()
	if c.released {
		e.lock.Unlock()
		return
	}

	if err != nil {
		c.status[d.cookie] = dma.StatusError
	} else {
		c.status[d.cookie] = dma.StatusComplete
	}
	cb := d.cb
	e.lock.Unlock()

	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"node":   c.node,
			"cookie": d.cookie,
		}).Error("transfer failed")
	}

	if cb != nil {
		cb()
	}
}

func (c *channel) Status(cookie dma.Cookie) dma.TxStatus {
	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	s, ok := c.status[cookie]
	if !ok {
		return dma.StatusError
	}

	return s
}

type descriptor struct {
	ch        *channel
	chunks    [][]byte
	cb        dma.Callback
	cookie    dma.Cookie
	submitted bool
}

func (d *descriptor) SetCallback(cb dma.Callback) {
	d.cb = cb
}

func (d *descriptor) Submit() dma.Cookie {
	c := d.ch
	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	if d.submitted || c.released {
		return -1
	}

	d.submitted = true
	c.nextCookie++
	d.cookie = c.nextCookie
	c.status[d.cookie] = dma.StatusInProgress
	c.submitted = append(c.submitted, d)

	return d.cookie
}
