package xdma

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// A Builder can build XDMA engines.
type Builder struct {
	root         string
	lockPages    bool
	releaseDelay time.Duration
	log          *logrus.Logger
}

// MakeBuilder creates a builder that opens nodes under /dev and locks
// mapped buffers in memory.
func MakeBuilder() Builder {
	return Builder{
		root:         "/dev",
		lockPages:    true,
		releaseDelay: time.Second,
	}
}

// WithRoot sets the directory that holds the device nodes.
func (b Builder) WithRoot(root string) Builder {
	b.root = root
	return b
}

// WithoutPageLocking keeps mapped buffers pageable. Without locking the
// kernel driver pins the pages itself for every transfer.
func (b Builder) WithoutPageLocking() Builder {
	b.lockPages = false
	return b
}

// WithReleaseDelay sets how long ReleaseChannel waits for the transfers
// still in flight.
func (b Builder) WithReleaseDelay(d time.Duration) Builder {
	b.releaseDelay = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *logrus.Logger) Builder {
	b.log = l
	return b
}

func (b Builder) logger() *logrus.Logger {
	if b.log != nil {
		return b.log
	}

	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}
