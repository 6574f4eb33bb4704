//go:build !linux

package xdma

import (
	"errors"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
)

// ErrUnsupported is returned on platforms without the XDMA driver.
var ErrUnsupported = errors.New("xdma: only supported on linux")

// Engine is unavailable on this platform.
type Engine struct{}

// Build always fails on this platform.
func (b Builder) Build(name string) (*Engine, error) {
	return nil, ErrUnsupported
}

// RequestChannel always fails on this platform.
func (e *Engine) RequestChannel(*platform.Device, string) (dma.Channel, error) {
	return nil, ErrUnsupported
}

// ReleaseChannel does nothing on this platform.
func (e *Engine) ReleaseChannel(dma.Channel) {}

// Alloc always fails on this platform.
func (e *Engine) Alloc(int) ([]byte, error) {
	return nil, ErrUnsupported
}

// Free always fails on this platform.
func (e *Engine) Free([]byte) error {
	return ErrUnsupported
}
