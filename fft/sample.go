// Package fft implements the transform contract of the FFT accelerator.
//
// The core consumes and produces a stream of 32-bit words, each holding one
// complex sample as two signed 16-bit halves: the real part in the low
// half-word and the imaginary part in the high half-word. Words travel in
// little-endian byte order.
package fft

import (
	"encoding/binary"
	"fmt"
)

// WordSize is the number of bytes of one packed sample.
const WordSize = 4

// Sample is one complex fixed-point sample.
type Sample struct {
	Real int16
	Imag int16
}

// Pack encodes the sample into a stream word.
func (s Sample) Pack() uint32 {
	return uint32(uint16(s.Real)) | uint32(uint16(s.Imag))<<16
}

// String formats the sample the way the driver prints it.
func (s Sample) String() string {
	return fmt.Sprintf("%d + %d j", s.Real, s.Imag)
}

// Unpack decodes a stream word.
func Unpack(w uint32) Sample {
	return Sample{
		Real: int16(w & 0xFFFF),
		Imag: int16((w >> 16) & 0xFFFF),
	}
}

// Word returns the i-th word of a byte stream.
func Word(buf []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(buf[i*WordSize:])
}

// PutWord stores the i-th word of a byte stream.
func PutWord(buf []byte, i int, w uint32) {
	binary.LittleEndian.PutUint32(buf[i*WordSize:], w)
}

// Decode unpacks every complete word of a byte stream.
func Decode(buf []byte) []Sample {
	n := len(buf) / WordSize
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = Unpack(Word(buf, i))
	}

	return samples
}
