package bench

import (
	"fmt"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/fft"
)

// The test pattern written to the send buffer.
const (
	PatternEven uint32 = 0x00000001
	PatternOdd  uint32 = 0x00010000
)

// A DeviceBuffer is a fixed number of 32-bit samples in device-transferable
// memory, meant to be transferred in one direction.
type DeviceBuffer struct {
	name   string
	dir    dma.Direction
	length int
	data   []byte
	freed  bool
}

// Name returns "send" or "receive".
func (b *DeviceBuffer) Name() string {
	return b.name
}

// Direction returns the direction the buffer is transferred in.
func (b *DeviceBuffer) Direction() dma.Direction {
	return b.dir
}

// Len returns the number of samples.
func (b *DeviceBuffer) Len() int {
	return b.length
}

// Bytes returns the memory of the buffer. It must not be touched while the
// buffer is mapped.
func (b *DeviceBuffer) Bytes() []byte {
	return b.data
}

// Word returns sample i as a raw 32-bit word.
func (b *DeviceBuffer) Word(i int) uint32 {
	return fft.Word(b.data, i)
}

// Samples decodes the buffer.
func (b *DeviceBuffer) Samples() []fft.Sample {
	return fft.Decode(b.data)
}

// Allocated tells whether the buffer holds memory.
func (b *DeviceBuffer) Allocated() bool {
	return b != nil && b.data != nil && !b.freed
}

// A BufferManager hands out device buffers.
type BufferManager struct {
	alloc dma.Allocator
}

// NewBufferManager creates a BufferManager that takes memory from alloc.
func NewBufferManager(alloc dma.Allocator) *BufferManager {
	if alloc == nil {
		panic("allocator must not be nil")
	}

	return &BufferManager{alloc: alloc}
}

// Allocate reserves length samples for transfers in direction dir.
func (m *BufferManager) Allocate(length int, dir dma.Direction) (*DeviceBuffer, error) {
	name := "send"
	if dir == Inbound {
		name = "receive"
	}

	if length <= 0 {
		return nil, fmt.Errorf("%s buffer of %d samples: %w", name, length, ErrAllocation)
	}

	data, err := m.alloc.Alloc(length * fft.WordSize)
	if err != nil {
		return nil, fmt.Errorf("%s buffer of %d samples: %w: %w",
			name, length, ErrAllocation, err)
	}

	if len(data) != length*fft.WordSize {
		_ = m.alloc.Free(data)
		return nil, fmt.Errorf("%s buffer: got %d bytes, want %d: %w",
			name, len(data), length*fft.WordSize, ErrAllocation)
	}

	return &DeviceBuffer{
		name:   name,
		dir:    dir,
		length: length,
		data:   data,
	}, nil
}

// FillPattern writes the test pattern: PatternEven at even indexes and
// PatternOdd at odd indexes.
func (m *BufferManager) FillPattern(b *DeviceBuffer) {
	if !b.Allocated() {
		return
	}

	for i := 0; i < b.length; i++ {
		if i%2 == 0 {
			fft.PutWord(b.data, i, PatternEven)
		} else {
			fft.PutWord(b.data, i, PatternOdd)
		}
	}
}

// Free returns the memory of a buffer. Freeing nil, a freed buffer or a
// buffer whose allocation failed does nothing.
func (m *BufferManager) Free(b *DeviceBuffer) error {
	if !b.Allocated() {
		return nil
	}

	data := b.data
	b.data = nil
	b.freed = true

	if err := m.alloc.Free(data); err != nil {
		return fmt.Errorf("free %s buffer: %w", b.name, err)
	}

	return nil
}
