package dma

import "errors"

// Errors reported by transfer engines.
var (
	// ErrNoChannel indicates the device has no channel with the requested
	// name.
	ErrNoChannel = errors.New("no such dma channel")

	// ErrBusy indicates the channel is claimed by someone else.
	ErrBusy = errors.New("dma channel busy")

	// ErrReleased indicates a channel was used after being released.
	ErrReleased = errors.New("dma channel released")

	// ErrNoMemory indicates device-transferable memory is exhausted.
	ErrNoMemory = errors.New("out of dma memory")

	// ErrPrepare indicates the channel cannot build the requested
	// descriptor.
	ErrPrepare = errors.New("cannot prepare descriptor")

	// ErrMapping indicates a buffer could not be mapped for the device.
	ErrMapping = errors.New("dma mapping failed")

	// ErrAlreadyMapped indicates a buffer is already mapped.
	ErrAlreadyMapped = errors.New("buffer already mapped")

	// ErrNotMapped indicates an unmap of a region that is not mapped.
	ErrNotMapped = errors.New("region not mapped")

	// ErrTransfer indicates a transfer finished with an error status.
	ErrTransfer = errors.New("dma transfer failed")

	// ErrTimeout indicates a completion was not signalled in time.
	ErrTimeout = errors.New("completion timed out")
)
