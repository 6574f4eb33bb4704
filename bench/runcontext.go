package bench

import (
	"errors"
	"fmt"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sirupsen/logrus"
)

type mapping struct {
	ch     *TransferChannel
	region dma.Region
}

// A RunContext owns everything a run acquires: the two channels, the two
// buffers and the regions mapped at the moment.
type RunContext struct {
	ID     string
	Config Config

	Tx, Rx        *TransferChannel
	Send, Receive *DeviceBuffer

	buffers  *BufferManager
	channels *ChannelAcquirer
	log      logrus.FieldLogger
	mapped   []mapping
	tornDown bool
}

// NewRunContext creates an empty RunContext.
func NewRunContext(
	id string,
	cfg Config,
	buffers *BufferManager,
	channels *ChannelAcquirer,
	log logrus.FieldLogger,
) *RunContext {
	return &RunContext{
		ID:       id,
		Config:   cfg,
		buffers:  buffers,
		channels: channels,
		log:      log,
	}
}

// Acquire takes the channels, then the buffers, and fills the send buffer
// with the test pattern. Whatever was acquired before a failure stays in the
// context for Teardown.
func (rc *RunContext) Acquire() error {
	var err error

	rc.Tx, rc.Rx, err = rc.channels.AcquirePair()
	if err != nil {
		return err
	}

	rc.Send, err = rc.buffers.Allocate(rc.Config.Length, Outbound)
	if err != nil {
		return err
	}

	rc.Receive, err = rc.buffers.Allocate(rc.Config.Length, Inbound)
	if err != nil {
		return err
	}

	rc.buffers.FillPattern(rc.Send)

	return nil
}

// Map maps a buffer on a channel and remembers the region until Unmap.
func (rc *RunContext) Map(ch *TransferChannel, b *DeviceBuffer) (dma.Region, error) {
	if !ch.Held() {
		return dma.Region{}, fmt.Errorf("map %s: %w", b.Name(), dma.ErrReleased)
	}

	r, err := ch.ch.Map(b.Bytes(), ch.dir)
	if err != nil {
		return dma.Region{}, err
	}

	rc.mapped = append(rc.mapped, mapping{ch: ch, region: r})

	return r, nil
}

// Unmap unmaps a region mapped with Map. The region is forgotten even when
// the channel reports an error, so that it is never unmapped twice.
func (rc *RunContext) Unmap(ch *TransferChannel, r dma.Region) error {
	for i, m := range rc.mapped {
		if m.ch == ch && m.region == r {
			rc.mapped = append(rc.mapped[:i], rc.mapped[i+1:]...)
			return ch.ch.Unmap(r)
		}
	}

	return fmt.Errorf("unmap %#x on %s: %w", r.Addr, ch.Name(), dma.ErrNotMapped)
}

// UnmapAll unmaps every region still mapped, in the order they were
// mapped.
func (rc *RunContext) UnmapAll() error {
	var errs []error

	for len(rc.mapped) > 0 {
		m := rc.mapped[0]
		if err := rc.Unmap(m.ch, m.region); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Mapped returns the number of regions mapped at the moment.
func (rc *RunContext) Mapped() int {
	return len(rc.mapped)
}

// Held returns the number of channels and buffers still held.
func (rc *RunContext) Held() (channels, buffers int) {
	if rc.Tx.Held() {
		channels++
	}

	if rc.Rx.Held() {
		channels++
	}

	if rc.Send.Allocated() {
		buffers++
	}

	if rc.Receive.Allocated() {
		buffers++
	}

	return channels, buffers
}

// Teardown releases everything in order: mapped regions, the receive
// buffer, the send buffer, the inbound channel and the outbound channel.
// Every step is skipped if there is nothing to release, so Teardown is safe
// on a partially acquired context and when called more than once.
func (rc *RunContext) Teardown() error {
	if rc.tornDown {
		return nil
	}
	rc.tornDown = true

	var errs []error

	if err := rc.UnmapAll(); err != nil {
		errs = append(errs, err)
	}

	if err := rc.buffers.Free(rc.Receive); err != nil {
		errs = append(errs, err)
	}

	if err := rc.buffers.Free(rc.Send); err != nil {
		errs = append(errs, err)
	}

	rc.channels.Release(rc.Rx)
	rc.channels.Release(rc.Tx)

	err := errors.Join(errs...)
	if err != nil {
		rc.log.WithError(err).Warn("teardown incomplete")
	} else {
		rc.log.Debug("torn down")
	}

	return err
}
