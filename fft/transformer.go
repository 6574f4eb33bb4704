package fft

import (
	"log"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// A Transformer computes the forward transform of one frame the way the
// accelerator does: a complex FFT whose output is scaled by 1/N, rounded and
// saturated back to 16 bits.
//
// A Transformer keeps scratch buffers and must not be shared between
// goroutines.
type Transformer struct {
	n   int
	fft *fourier.CmplxFFT
	in  []complex128
	out []complex128
}

// NewTransformer creates a transformer for frames of n samples.
func NewTransformer(n int) *Transformer {
	if n <= 0 {
		log.Panicf("fft length must be positive, got %d", n)
	}

	return &Transformer{
		n:   n,
		fft: fourier.NewCmplxFFT(n),
		in:  make([]complex128, n),
		out: make([]complex128, n),
	}
}

// Len returns the frame length in samples.
func (t *Transformer) Len() int {
	return t.n
}

// Process transforms the frame in src and writes the result to dst. Both
// must hold exactly Len packed samples.
func (t *Transformer) Process(dst, src []byte) {
	frameBytes := t.n * WordSize
	if len(src) != frameBytes || len(dst) != frameBytes {
		log.Panicf("fft frame must be %d bytes, got src %d, dst %d",
			frameBytes, len(src), len(dst))
	}

	for i := 0; i < t.n; i++ {
		s := Unpack(Word(src, i))
		t.in[i] = complex(float64(s.Real), float64(s.Imag))
	}

	t.out = t.fft.Coefficients(t.out, t.in)

	scale := 1 / float64(t.n)
	for i, c := range t.out {
		s := Sample{
			Real: saturate(real(c) * scale),
			Imag: saturate(imag(c) * scale),
		}
		PutWord(dst, i, s.Pack())
	}
}

func saturate(v float64) int16 {
	r := math.Round(v)

	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	default:
		return int16(r)
	}
}
