package dma

import (
	"context"
	"sync"
	"time"
)

// A Completion is a one-shot signal. Complete may be called any number of
// times from any goroutine; only the first call has an effect.
type Completion struct {
	once sync.Once
	done chan struct{}
}

// NewCompletion creates a Completion that is not signalled yet.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Complete signals the completion.
func (c *Completion) Complete() {
	c.once.Do(func() { close(c.done) })
}

// Callback returns a descriptor callback that signals the completion.
func (c *Completion) Callback() Callback {
	return c.Complete
}

// Done returns a channel closed once the completion is signalled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// IsDone tells whether the completion has been signalled.
func (c *Completion) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WaitTimeout blocks until the completion is signalled, the timeout elapses
// or ctx is done. It returns nil, ErrTimeout or the context error.
func (c *Completion) WaitTimeout(ctx context.Context, timeout time.Duration) error {
	if c.IsDone() {
		return nil
	}

	if timeout <= 0 {
		return ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return nil
	case <-timer.C:
		if c.IsDone() {
			return nil
		}
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
