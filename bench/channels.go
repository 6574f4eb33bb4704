package bench

import (
	"fmt"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
)

// A TransferChannel is a channel bound to one direction, owned by a run.
type TransferChannel struct {
	ch   dma.Channel
	name string
	dir  dma.Direction
	held bool
}

// Name returns the channel name, such as "axidma0".
func (c *TransferChannel) Name() string {
	return c.name
}

// Direction returns the direction the channel transfers in.
func (c *TransferChannel) Direction() dma.Direction {
	return c.dir
}

// Held tells whether the channel is still acquired.
func (c *TransferChannel) Held() bool {
	return c != nil && c.held
}

// Channel returns the underlying engine channel.
func (c *TransferChannel) Channel() dma.Channel {
	return c.ch
}

// A ChannelAcquirer requests the two channels of a device.
type ChannelAcquirer struct {
	engine dma.Engine
	dev    *platform.Device
	names  [2]string
}

// NewChannelAcquirer creates a ChannelAcquirer for the named outbound and
// inbound channels of dev.
func NewChannelAcquirer(
	engine dma.Engine,
	dev *platform.Device,
	txName, rxName string,
) *ChannelAcquirer {
	if engine == nil {
		panic("engine must not be nil")
	}

	a := &ChannelAcquirer{engine: engine, dev: dev}
	a.names[Outbound] = txName
	a.names[Inbound] = rxName

	return a
}

// Acquire requests the channel of one direction.
func (a *ChannelAcquirer) Acquire(dir dma.Direction) (*TransferChannel, error) {
	if dir != Outbound && dir != Inbound {
		return nil, fmt.Errorf("%s: %w", dir, ErrChannelUnavailable)
	}

	name := a.names[dir]

	ch, err := a.engine.RequestChannel(a.dev, name)
	if err != nil {
		return nil, fmt.Errorf("%s channel %s: %w: %w",
			directionName(dir), name, ErrChannelUnavailable, err)
	}

	if ch == nil {
		return nil, fmt.Errorf("%s channel %s: %w",
			directionName(dir), name, ErrChannelUnavailable)
	}

	return &TransferChannel{ch: ch, name: name, dir: dir, held: true}, nil
}

// AcquirePair acquires the outbound channel and then the inbound one. If
// the inbound channel cannot be acquired, the outbound one is released
// before returning.
func (a *ChannelAcquirer) AcquirePair() (tx, rx *TransferChannel, err error) {
	tx, err = a.Acquire(Outbound)
	if err != nil {
		return nil, nil, err
	}

	rx, err = a.Acquire(Inbound)
	if err != nil {
		a.Release(tx)
		return nil, nil, err
	}

	return tx, rx, nil
}

// Release gives a channel back. Releasing nil or a released channel does
// nothing.
func (a *ChannelAcquirer) Release(c *TransferChannel) {
	if !c.Held() {
		return
	}

	c.held = false
	a.engine.ReleaseChannel(c.ch)
}
