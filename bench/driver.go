package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sarchlab/dmabench/dma"
	"github.com/sarchlab/dmabench/platform"
	"github.com/sarchlab/dmabench/sim"
	"github.com/sarchlab/dmabench/tracing"
	"github.com/sirupsen/logrus"
)

// Hook positions of a Driver.
var (
	// HookPosRunStart is invoked once the run holds its resources, right
	// before the first iteration. The item is the *RunContext.
	HookPosRunStart = &sim.HookPos{Name: "RunStart"}

	// HookPosIterationEnd is invoked after every iteration, with the
	// buffers unmapped. The item is an IterationRecord and the detail the
	// *RunContext.
	HookPosIterationEnd = &sim.HookPos{Name: "IterationEnd"}

	// HookPosRunEnd is invoked after teardown. The item is the *Result.
	HookPosRunEnd = &sim.HookPos{Name: "RunEnd"}
)

// Task kinds the Driver traces.
const (
	TaskKindRun       = "run"
	TaskKindIteration = "iteration"
)

// An IterationRecord describes a finished iteration.
type IterationRecord struct {
	RunID        string
	Iteration    int
	Start        time.Time
	End          time.Time
	OutboundWait time.Duration
	InboundWait  time.Duration
	Err          error
}

// Driver runs the benchmark on one device.
type Driver struct {
	*sim.HookableBase

	name      string
	log       *logrus.Logger
	engine    dma.Engine
	allocator dma.Allocator
	device    *platform.Device
	cfg       Config
}

// Name returns the name of the driver.
func (d *Driver) Name() string {
	return d.name
}

// Config returns the configuration of the runs.
func (d *Driver) Config() Config {
	return d.cfg
}

// NewRunContext creates an empty context for a run of this driver.
func (d *Driver) NewRunContext() *RunContext {
	id := sim.NewRunID()

	return NewRunContext(
		id,
		d.cfg,
		NewBufferManager(d.allocator),
		NewChannelAcquirer(d.engine, d.device, d.cfg.TxChannel, d.cfg.RxChannel),
		d.log.WithFields(logrus.Fields{"run": id, "device": d.device.Name}),
	)
}

// Run performs a whole run in a fresh RunContext.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	return d.RunWith(ctx, d.NewRunContext())
}

// RunWith performs a whole run in rc: it acquires the channels and buffers,
// repeats the transaction Config.Iterations times and tears rc down. The
// first failure ends the run. The returned error is the cause of a failed
// result.
func (d *Driver) RunWith(ctx context.Context, rc *RunContext) (*Result, error) {
	res := &Result{
		RunID:           rc.ID,
		Requested:       rc.Config.Iterations,
		Status:          StatusOK,
		FailedIteration: -1,
	}

	tracing.StartTask(rc.ID, "", d, TaskKindRun, "benchmark", rc.Config)

	if err := rc.Acquire(); err != nil {
		d.fail(rc, res, -1, err)
	} else {
		d.iterate(ctx, rc, res)
	}

	if res.OK() && rc.Config.DumpSamples {
		res.Samples = rc.Receive.Samples()
	}

	if err := rc.Teardown(); err != nil && res.OK() {
		d.fail(rc, res, -1, err)
	}

	tracing.EndTask(rc.ID, d, res.Status)
	d.InvokeHook(sim.HookCtx{Domain: d, Pos: HookPosRunEnd, Item: res})

	if !res.OK() {
		return res, res.Cause
	}

	rc.log.WithFields(logrus.Fields{
		"iterations": res.Completed,
		"elapsed":    res.Elapsed(),
	}).Info("run completed")

	return res, nil
}

func (d *Driver) iterate(ctx context.Context, rc *RunContext, res *Result) {
	te := NewTransactionEngine(rc)

	var taskID string
	te.OnState = func(t *Transaction) {
		tracing.AddTaskStep(taskID, d, t.State.String())
	}

	d.InvokeHook(sim.HookCtx{Domain: d, Pos: HookPosRunStart, Item: rc})

	res.Start = time.Now()

	for i := 0; i < rc.Config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			d.fail(rc, res, i, &IterationError{Iteration: i, Err: err})
			break
		}

		taskID = fmt.Sprintf("%s.%d", rc.ID, i)
		tracing.StartTask(taskID, rc.ID, d, TaskKindIteration, "transaction", i)

		start := time.Now()
		t, err := te.Execute(ctx, i)
		rec := IterationRecord{
			RunID:        rc.ID,
			Iteration:    i,
			Start:        start,
			End:          time.Now(),
			OutboundWait: t.OutboundWait,
			InboundWait:  t.InboundWait,
			Err:          err,
		}

		tracing.EndTask(taskID, d, t.State)
		d.InvokeHook(sim.HookCtx{
			Domain: d,
			Pos:    HookPosIterationEnd,
			Item:   rec,
			Detail: rc,
		})

		if err != nil {
			d.fail(rc, res, i, err)
			break
		}

		res.Completed++
	}

	res.End = time.Now()
}

func (d *Driver) fail(rc *RunContext, res *Result, iteration int, err error) {
	res.Status = StatusFailed
	res.FailedIteration = iteration
	res.Cause = err

	entry := rc.log.WithError(err)
	if iteration >= 0 {
		entry = entry.WithField("iteration", iteration)
	}

	var ie *IterationError
	if errors.As(err, &ie) && ie.Channel != "" {
		entry = entry.WithField("channel", ie.Channel)
	}

	var te *TimeoutError
	if errors.As(err, &te) {
		entry = entry.WithField("direction", directionName(te.Direction))
	}

	entry.Error("run failed")
}
