package sim

import "time"

// A TimeTeller can tell the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

// WallClock tells the time elapsed since it was created, read from the
// monotonic clock.
type WallClock struct {
	origin time.Time
}

// NewWallClock creates a WallClock that starts at zero now.
func NewWallClock() *WallClock {
	return &WallClock{origin: time.Now()}
}

// CurrentTime returns the seconds passed since the clock was created.
func (c *WallClock) CurrentTime() VTimeInSec {
	return VTimeInSec(time.Since(c.origin).Seconds())
}

// Origin returns the wall-clock instant that maps to time zero.
func (c *WallClock) Origin() time.Time {
	return c.origin
}
