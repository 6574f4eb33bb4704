package simdma

import "github.com/sarchlab/dmabench/dma"

// A Trigger selects the operations a fault applies to: every operation in
// direction Dir whose 0-based sequence number is at least From.
type Trigger struct {
	Dir  dma.Direction
	From int
}

func (t *Trigger) fires(dir dma.Direction, seq int) bool {
	return t != nil && t.Dir == dir && seq >= t.From
}

// Faults lists the failures a simulated engine injects. Nil triggers never
// fire.
type Faults struct {
	// MissingChannels are reported as absent by RequestChannel.
	MissingChannels []string

	// MapFail makes Map fail.
	MapFail *Trigger

	// PrepareFail makes PrepareSlaveSG fail.
	PrepareFail *Trigger

	// SubmitFail makes Submit return an error cookie.
	SubmitFail *Trigger

	// Silent makes issued descriptors never complete.
	Silent *Trigger
}

func (f Faults) channelMissing(name string) bool {
	for _, n := range f.MissingChannels {
		if n == name {
			return true
		}
	}

	return false
}
