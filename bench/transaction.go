package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/dmabench/dma"
)

// TxState is the progress of a Transaction.
type TxState int

// Transaction states, in the order a successful iteration goes through
// them.
const (
	StateInit TxState = iota
	StateMapped
	StateSubmitted
	StateIssued
	StateWaitingOutbound
	StateWaitingInbound
	StateCompleted
	StateAborted
)

var txStateNames = [...]string{
	"init",
	"mapped",
	"submitted",
	"issued",
	"waiting-outbound",
	"waiting-inbound",
	"completed",
	"aborted",
}

func (s TxState) String() string {
	if s < 0 || int(s) >= len(txStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return txStateNames[s]
}

// A Transaction is one iteration: an outbound and an inbound transfer.
type Transaction struct {
	Iteration int
	State     TxState

	TxCookie dma.Cookie
	RxCookie dma.Cookie

	// OutboundWait and InboundWait are how long the two waits took.
	OutboundWait time.Duration
	InboundWait  time.Duration

	txRegion, rxRegion dma.Region
	txDone, rxDone     *dma.Completion
}

// A TransactionEngine runs transactions on the channels and buffers of a
// RunContext.
type TransactionEngine struct {
	rc *RunContext

	// OnState, if set, is called every time a transaction changes state.
	OnState func(t *Transaction)
}

// NewTransactionEngine creates a TransactionEngine over an acquired
// RunContext.
func NewTransactionEngine(rc *RunContext) *TransactionEngine {
	return &TransactionEngine{rc: rc}
}

func (e *TransactionEngine) setState(t *Transaction, s TxState) {
	t.State = s

	if e.OnState != nil {
		e.OnState(t)
	}
}

// Execute runs one iteration. Both regions are unmapped when it returns,
// whatever the outcome. A returned error is always an *IterationError.
func (e *TransactionEngine) Execute(
	ctx context.Context,
	iteration int,
) (*Transaction, error) {
	t := &Transaction{Iteration: iteration}
	e.setState(t, StateInit)

	if err := e.mapBuffers(t); err != nil {
		return e.abort(t, err)
	}
	e.setState(t, StateMapped)

	if err := e.submit(t); err != nil {
		return e.abort(t, err)
	}
	e.setState(t, StateSubmitted)

	e.rc.Rx.ch.IssuePending()
	e.rc.Tx.ch.IssuePending()
	e.setState(t, StateIssued)

	if err := e.wait(ctx, t); err != nil {
		return e.abort(t, err)
	}

	if err := e.unmapBuffers(); err != nil {
		return e.abort(t, err)
	}
	e.setState(t, StateCompleted)

	return t, nil
}

func (e *TransactionEngine) mapBuffers(t *Transaction) error {
	rc := e.rc

	var err error
	t.txRegion, err = rc.Map(rc.Tx, rc.Send)
	if err != nil {
		return &IterationError{
			Iteration: t.Iteration,
			Channel:   rc.Tx.Name(),
			Err:       fmt.Errorf("map send buffer: %w", err),
		}
	}

	t.rxRegion, err = rc.Map(rc.Rx, rc.Receive)
	if err != nil {
		return &IterationError{
			Iteration: t.Iteration,
			Channel:   rc.Rx.Name(),
			Err:       fmt.Errorf("map receive buffer: %w", err),
		}
	}

	return nil
}

// submit prepares both descriptors, then submits the inbound one before the
// outbound one so that the receiver is ready when the data comes back.
func (e *TransactionEngine) submit(t *Transaction) error {
	rc := e.rc
	flags := dma.PrepInterrupt | dma.PrepCtrlAck

	txd, err := rc.Tx.ch.PrepareSlaveSG(t.txRegion.Segments(), Outbound, flags)
	if err != nil {
		return e.submitError(t, rc.Tx, 0, err)
	}

	rxd, err := rc.Rx.ch.PrepareSlaveSG(t.rxRegion.Segments(), Inbound, flags)
	if err != nil {
		return e.submitError(t, rc.Rx, 0, err)
	}

	t.txDone = dma.NewCompletion()
	t.rxDone = dma.NewCompletion()
	txd.SetCallback(t.txDone.Callback())
	rxd.SetCallback(t.rxDone.Callback())

	t.RxCookie = rxd.Submit()
	if t.RxCookie.IsError() {
		return e.submitError(t, rc.Rx, t.RxCookie, nil)
	}

	t.TxCookie = txd.Submit()
	if t.TxCookie.IsError() {
		return e.submitError(t, rc.Tx, t.TxCookie, nil)
	}

	return nil
}

func (e *TransactionEngine) submitError(
	t *Transaction,
	ch *TransferChannel,
	cookie dma.Cookie,
	err error,
) error {
	return &IterationError{
		Iteration: t.Iteration,
		Channel:   ch.Name(),
		Err:       &SubmitError{Direction: ch.dir, Cookie: cookie, Err: err},
	}
}

// wait blocks on the outbound completion and then on the inbound one, each
// with its own budget. The inbound wait is skipped if the outbound one
// fails.
func (e *TransactionEngine) wait(ctx context.Context, t *Transaction) error {
	rc := e.rc

	e.setState(t, StateWaitingOutbound)
	d, err := e.waitOne(ctx, t, rc.Tx, t.txDone, t.TxCookie, rc.Config.OutboundTimeout)
	t.OutboundWait = d
	if err != nil {
		return err
	}

	e.setState(t, StateWaitingInbound)
	d, err = e.waitOne(ctx, t, rc.Rx, t.rxDone, t.RxCookie, rc.Config.InboundTimeout)
	t.InboundWait = d

	return err
}

func (e *TransactionEngine) waitOne(
	ctx context.Context,
	t *Transaction,
	ch *TransferChannel,
	done *dma.Completion,
	cookie dma.Cookie,
	budget time.Duration,
) (time.Duration, error) {
	start := time.Now()
	err := done.WaitTimeout(ctx, budget)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, dma.ErrTimeout):
		err = &TimeoutError{Iteration: t.Iteration, Direction: ch.dir, Budget: budget}
	case err != nil:
		err = fmt.Errorf("%s wait: %w", directionName(ch.dir), err)
	case ch.ch.Status(cookie) == dma.StatusError:
		err = &TransferError{Direction: ch.dir, Cookie: cookie}
	}

	if err != nil {
		return elapsed, &IterationError{Iteration: t.Iteration, Channel: ch.Name(), Err: err}
	}

	return elapsed, nil
}

func (e *TransactionEngine) unmapBuffers() error {
	return e.rc.UnmapAll()
}

// abort unmaps whatever is still mapped and returns the cause.
func (e *TransactionEngine) abort(t *Transaction, cause error) (*Transaction, error) {
	e.setState(t, StateAborted)

	if err := e.rc.UnmapAll(); err != nil {
		e.rc.log.WithError(err).
			WithField("iteration", t.Iteration).
			Warn("unmap after abort failed")
	}

	var ie *IterationError
	if !errors.As(cause, &ie) {
		cause = &IterationError{Iteration: t.Iteration, Err: cause}
	}

	return t, cause
}
