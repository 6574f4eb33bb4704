package dma

import (
	"fmt"

	"github.com/sarchlab/dmabench/platform"
)

// Direction is the direction of a slave transfer.
type Direction int

// Transfer directions.
const (
	MemToDev Direction = iota // host memory to device, outbound
	DevToMem                  // device to host memory, inbound
)

// String returns a short name of the direction.
func (d Direction) String() string {
	switch d {
	case MemToDev:
		return "mem-to-dev"
	case DevToMem:
		return "dev-to-mem"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Addr is an address as seen by the device.
type Addr uint64

// Region is the device view of a host buffer. It is only valid between the
// Map call that returned it and the matching Unmap.
type Region struct {
	Addr Addr
	Len  int
	Dir  Direction
}

// Segment is one entry of a scatter-gather list.
type Segment struct {
	Addr Addr
	Len  int
}

// Segments returns a single-entry scatter-gather list covering the region.
func (r Region) Segments() []Segment {
	return []Segment{{Addr: r.Addr, Len: r.Len}}
}

// PrepFlags modifies how a descriptor is prepared.
type PrepFlags uint32

// Descriptor preparation flags.
const (
	PrepInterrupt PrepFlags = 1 << iota // raise the callback on completion
	PrepCtrlAck                         // client will not reuse the descriptor
)

// Cookie identifies a submitted descriptor. Negative values are submission
// errors.
type Cookie int32

// IsError tells whether the submission that returned the cookie failed.
func (c Cookie) IsError() bool {
	return c < 0
}

// TxStatus is the progress of a submitted descriptor.
type TxStatus int

// Transfer status values.
const (
	StatusComplete TxStatus = iota
	StatusInProgress
	StatusPaused
	StatusError
)

// String returns the name of the status.
func (s TxStatus) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusInProgress:
		return "in-progress"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Callback is invoked by a backend, from any goroutine, when a descriptor
// finishes.
type Callback func()

// A Descriptor is a one-shot transfer request. It must not be submitted
// twice.
type Descriptor interface {
	// SetCallback attaches the function called on completion.
	SetCallback(cb Callback)

	// Submit queues the descriptor on its channel. Nothing moves until the
	// channel's IssuePending is called.
	Submit() Cookie
}

// A Channel is a transfer path bound to one device.
type Channel interface {
	// Name is the name the channel was requested with.
	Name() string

	// Map makes buf visible to the device for the given direction. The host
	// must not touch buf until Unmap returns.
	Map(buf []byte, dir Direction) (Region, error)

	// Unmap ends a mapping and hands the buffer back to the host.
	Unmap(r Region) error

	// PrepareSlaveSG builds a descriptor moving the segments in the given
	// direction.
	PrepareSlaveSG(sgl []Segment, dir Direction, flags PrepFlags) (Descriptor, error)

	// IssuePending starts every submitted descriptor.
	IssuePending()

	// Status reports the progress of a submitted descriptor.
	Status(c Cookie) TxStatus
}

// An Engine hands out channels.
type Engine interface {
	// RequestChannel claims the named channel of a device. It fails with
	// ErrNoChannel if the device has no such channel and with ErrBusy if
	// the channel is already claimed.
	RequestChannel(dev *platform.Device, name string) (Channel, error)

	// ReleaseChannel returns a claimed channel.
	ReleaseChannel(ch Channel)
}

// An Allocator provides memory that devices can transfer to and from.
type Allocator interface {
	// Alloc returns size bytes of zeroed, device-transferable memory.
	Alloc(size int) ([]byte, error)

	// Free returns memory obtained from Alloc.
	Free(buf []byte) error
}
