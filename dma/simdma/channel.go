package simdma

import (
	"fmt"

	"github.com/sarchlab/dmabench/dma"
)

const pageSize = 4096

type channel struct {
	engine *Engine
	name   string
	device string
	dir    dma.Direction

	released   bool
	nextCookie dma.Cookie
	submitted  []*descriptor
	active     []*descriptor
	status     map[dma.Cookie]dma.TxStatus
}

func (c *channel) Name() string {
	return c.name
}

func (c *channel) String() string {
	return c.device + "/" + c.name
}

func (c *channel) Map(buf []byte, dir dma.Direction) (dma.Region, error) {
	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	if c.released {
		return dma.Region{}, fmt.Errorf("map on %s: %w", c, dma.ErrReleased)
	}

	if len(buf) == 0 {
		return dma.Region{}, fmt.Errorf("map of empty buffer on %s: %w", c, dma.ErrMapping)
	}

	if !validDirection(dir) {
		return dma.Region{}, fmt.Errorf("map on %s for %s: %w", c, dir, dma.ErrMapping)
	}

	seq := e.mapSeq[dir]
	e.mapSeq[dir]++
	if e.faults.MapFail.fires(dir, seq) {
		return dma.Region{}, fmt.Errorf("map #%d on %s: %w", seq, c, dma.ErrMapping)
	}

	if addr, ok := e.mappedBuffers[&buf[0]]; ok {
		return dma.Region{}, fmt.Errorf("buffer at %#x on %s: %w",
			addr, c, dma.ErrAlreadyMapped)
	}

	m := &mapping{addr: e.nextAddr, buf: buf, dir: dir}
	e.nextAddr += dma.Addr((len(buf) + pageSize - 1) / pageSize * pageSize)
	e.mappings = append(e.mappings, m)
	e.mappedBuffers[&buf[0]] = m.addr
	e.stats.Maps[dir]++

	return dma.Region{Addr: m.addr, Len: len(buf), Dir: dir}, nil
}

func (c *channel) Unmap(r dma.Region) error {
	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	for i, m := range e.mappings {
		if m.addr != r.Addr {
			continue
		}

		e.mappings = append(e.mappings[:i], e.mappings[i+1:]...)
		delete(e.mappedBuffers, &m.buf[0])
		e.stats.Unmaps[m.dir]++

		return nil
	}

	return fmt.Errorf("unmap %#x on %s: %w", r.Addr, c, dma.ErrNotMapped)
}

func (c *channel) PrepareSlaveSG(
	sgl []dma.Segment,
	dir dma.Direction,
	_ dma.PrepFlags,
) (dma.Descriptor, error) {
	e := c.engine

	e.lock.Lock()
	defer e.lock.Unlock()

	if c.released {
		return nil, fmt.Errorf("prepare on %s: %w", c, dma.ErrReleased)
	}

	if !validDirection(dir) {
		return nil, fmt.Errorf("prepare on %s for %s: %w", c, dir, dma.ErrPrepare)
	}

	seq := e.prepareSeq[dir]
	e.prepareSeq[dir]++
	if e.faults.PrepareFail.fires(dir, seq) {
		return nil, fmt.Errorf("prepare #%d on %s: %w", seq, c, dma.ErrPrepare)
	}

	if dir != c.dir {
		return nil, fmt.Errorf("%s is wired for %s, not %s: %w",
			c, c.dir, dir, dma.ErrPrepare)
	}

	if len(sgl) == 0 {
		return nil, fmt.Errorf("empty scatter-gather list on %s: %w", c, dma.ErrPrepare)
	}

	for _, s := range sgl {
		if s.Len <= 0 || e.findMapping(s) == nil {
			return nil, fmt.Errorf("segment %#x+%d on %s is not mapped: %w",
				s.Addr, s.Len, c, dma.ErrPrepare)
		}
	}

	e.stats.Prepares[dir]++

	return &descriptor{
		ch:  c,
		sgl: append([]dma.Segment(nil), sgl...),
		dir: dir,
	}, nil
}

func (c *channel) IssuePending() {
	e := c.engine

	e.lock.Lock()

	if c.released {
		e.lock.Unlock()
		return
	}

	var started []*descriptor
	for _, d := range c.submitted {
		seq := e.issueSeq[c.dir]
		e.issueSeq[c.dir]++

		if e.faults.Silent.fires(c.dir, seq) {
			continue
		}

		started = append(started, d)
	}
	c.submitted = nil

	if c.dir == dma.DevToMem {
		c.active = append(c.active, started...)
	}

	e.lock.Unlock()

	if c.dir == dma.DevToMem {
		e.pump(c.device)
		return
	}

	for _, d := range started {
		d := d
		e.after(e.transferTime(d.length()), func() { e.finishOutbound(d) })
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

func validDirection(dir dma.Direction) bool {
	return dir == dma.MemToDev || dir == dma.DevToMem
}

type descriptor struct {
	ch        *channel
	sgl       []dma.Segment
	dir       dma.Direction
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

	seq := e.submitSeq[d.dir]
	e.submitSeq[d.dir]++
	if e.faults.SubmitFail.fires(d.dir, seq) {
		return -1
	}

	d.submitted = true
	c.nextCookie++
	d.cookie = c.nextCookie
	c.status[d.cookie] = dma.StatusInProgress
	c.submitted = append(c.submitted, d)
	e.stats.Submits[d.dir]++

	return d.cookie
}

func (d *descriptor) length() int {
	n := 0
	for _, s := range d.sgl {
		n += s.Len
	}

	return n
}
