// Package baseline measures the same FFT workload on the host CPU, so that
// accelerator runs have something to be compared against.
package baseline

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrInvalidArgument is returned for non-positive iteration counts or
// lengths.
var ErrInvalidArgument = errors.New("invalid baseline argument")

// Run transforms a random frame of length complex samples iterations times
// and returns the wall time spent.
func Run(iterations, length int) (time.Duration, error) {
	return RunWithSeed(iterations, length, uint64(time.Now().UnixNano()))
}

// RunWithSeed is Run with a fixed seed for the input frame.
func RunWithSeed(iterations, length int, seed uint64) (time.Duration, error) {
	if iterations <= 0 {
		return 0, fmt.Errorf("%w: iterations %d", ErrInvalidArgument, iterations)
	}

	if length <= 0 {
		return 0, fmt.Errorf("%w: length %d", ErrInvalidArgument, length)
	}

	in := Frame(length, seed)
	out := make([]complex128, length)
	plan := fourier.NewCmplxFFT(length)

	start := time.Now()
	for i := 0; i < iterations; i++ {
		plan.Coefficients(out, in)
	}

	return time.Since(start), nil
}

// Frame returns length complex samples with real and imaginary parts drawn
// uniformly from [0, 1), the range of the C comparison program.
func Frame(length int, seed uint64) []complex128 {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	f := make([]complex128, length)
	for i := range f {
		f[i] = complex(r.Float64(), r.Float64())
	}

	return f
}

// Ratio returns how many times faster accel is than host. It returns 0 if
// either duration is not positive.
func Ratio(host, accel time.Duration) float64 {
	if host <= 0 || accel <= 0 {
		return 0
	}

	return float64(host) / float64(accel)
}
