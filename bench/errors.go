package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/dmabench/dma"
)

// Errors that end a run.
var (
	// ErrAllocation indicates the device-transferable memory for a buffer
	// is unavailable.
	ErrAllocation = errors.New("buffer allocation failed")

	// ErrChannelUnavailable indicates a transfer channel is missing or
	// claimed by someone else.
	ErrChannelUnavailable = errors.New("transfer channel unavailable")
)

// Directions, named from the host's point of view.
const (
	Outbound = dma.MemToDev
	Inbound  = dma.DevToMem
)

func directionName(dir dma.Direction) string {
	switch dir {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return dir.String()
	}
}

// A SubmitError reports that a channel refused to build or accept a
// descriptor.
type SubmitError struct {
	Direction dma.Direction

	// Cookie is the error cookie returned by Submit. It is zero when the
	// descriptor could not be prepared.
	Cookie dma.Cookie

	Err error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s descriptor rejected: %v",
			directionName(e.Direction), e.Err)
	}

	return fmt.Sprintf("%s submit returned error cookie %d",
		directionName(e.Direction), e.Cookie)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// A TimeoutError reports a completion that was not signalled within its
// budget.
type TimeoutError struct {
	Iteration int
	Direction dma.Direction
	Budget    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s completion not signalled within %s",
		directionName(e.Direction), e.Budget)
}

// Unwrap makes a TimeoutError match dma.ErrTimeout.
func (e *TimeoutError) Unwrap() error {
	return dma.ErrTimeout
}

// A TransferError reports a transfer that completed with an error status.
type TransferError struct {
	Direction dma.Direction
	Cookie    dma.Cookie
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer %d failed", directionName(e.Direction), e.Cookie)
}

// Unwrap makes a TransferError match dma.ErrTransfer.
func (e *TransferError) Unwrap() error {
	return dma.ErrTransfer
}

// An IterationError locates a failure inside a run.
type IterationError struct {
	Iteration int
	Channel   string
	Err       error
}

func (e *IterationError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("iteration %d: %v", e.Iteration, e.Err)
	}

	return fmt.Sprintf("iteration %d on %s: %v", e.Iteration, e.Channel, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}

// FailureReason classifies err into a short label such as "timeout" or
// "submit", for metrics and reports.
func FailureReason(err error) string {
	var se *SubmitError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, dma.ErrTimeout):
		return "timeout"
	case errors.Is(err, dma.ErrTransfer):
		return "transfer"
	case errors.As(err, &se):
		return "submit"
	case errors.Is(err, dma.ErrMapping), errors.Is(err, dma.ErrAlreadyMapped):
		return "mapping"
	case errors.Is(err, ErrAllocation):
		return "allocation"
	case errors.Is(err, ErrChannelUnavailable):
		return "channel"
	default:
		return "other"
	}
}
