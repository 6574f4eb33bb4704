package simdma

import "github.com/sarchlab/dmabench/fft"

// accelerator models the FFT core between the two channels of a device.
type accelerator struct {
	tx, rx       *channel
	outputs      [][]byte
	transformers map[int]*fft.Transformer
}

func newAccelerator() *accelerator {
	return &accelerator{
		transformers: make(map[int]*fft.Transformer),
	}
}

// transform runs the core on one frame. Frames that are not a whole number
// of samples are dropped, the way the core flags a TLAST error.
func (a *accelerator) transform(frame []byte) ([]byte, bool) {
	if len(frame) == 0 || len(frame)%fft.WordSize != 0 {
		return nil, false
	}

	n := len(frame) / fft.WordSize
	t, ok := a.transformers[n]
	if !ok {
		t = fft.NewTransformer(n)
		a.transformers[n] = t
	}

	out := make([]byte, len(frame))
	t.Process(out, frame)

	return out, true
}
