package sim

import (
	"log"
	"math"
	"time"
)

// VTimeInSec is a time measured in seconds.
type VTimeInSec float64

// Duration converts the time to a time.Duration.
func (t VTimeInSec) Duration() time.Duration {
	return time.Duration(math.Round(float64(t) * float64(time.Second)))
}

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the time between two consecutive ticks
func (f Freq) Period() VTimeInSec {
	if f == 0 {
		log.Panic("frequency cannot be 0")
	}

	return VTimeInSec(1.0 / f)
}

// Cycle converts a time to the number of cycles passed since time 0.
func (f Freq) Cycle(time VTimeInSec) uint64 {
	return uint64(math.Round(float64(time) * float64(f)))
}

// NCycles returns the time that n cycles take.
func (f Freq) NCycles(n uint64) VTimeInSec {
	return VTimeInSec(float64(n)) * f.Period()
}

// BeatsFor returns the number of bus beats needed to move byteSize bytes over
// a bus that is busWidth bytes wide. A partial beat counts as a full one.
func BeatsFor(byteSize, busWidth uint64) uint64 {
	if busWidth == 0 {
		log.Panic("bus width cannot be 0")
	}

	return (byteSize + busWidth - 1) / busWidth
}

// TransferTime returns how long streaming byteSize bytes over a busWidth
// bytes wide bus clocked at f takes, plus a fixed setup latency in cycles.
func (f Freq) TransferTime(
	byteSize, busWidth uint64,
	setupCycles uint64,
) time.Duration {
	cycles := BeatsFor(byteSize, busWidth) + setupCycles
	return f.NCycles(cycles).Duration()
}
