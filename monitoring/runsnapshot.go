package monitoring

import (
	"time"

	"github.com/sarchlab/dmabench/bench"
)

// A RunSnapshot is the state of a run copied on the goroutine that drives
// it. HTTP handlers only ever read snapshots, never the live run.
type RunSnapshot struct {
	ID        string
	Config    bench.Config
	UpdatedAt time.Time

	TxChannel string
	RxChannel string
	Channels  int
	Buffers   int
	Mapped    int

	LastIteration int
	Completed     int
	Status        string
	Cause         string
}

func snapshotRun(rc *bench.RunContext) *RunSnapshot {
	channels, buffers := rc.Held()

	s := &RunSnapshot{
		ID:            rc.ID,
		Config:        rc.Config,
		UpdatedAt:     time.Now(),
		Channels:      channels,
		Buffers:       buffers,
		Mapped:        rc.Mapped(),
		LastIteration: -1,
		Status:        "running",
	}

	if rc.Tx != nil {
		s.TxChannel = rc.Tx.Name()
	}

	if rc.Rx != nil {
		s.RxChannel = rc.Rx.Name()
	}

	return s
}

func (s *RunSnapshot) withIteration(rec bench.IterationRecord) *RunSnapshot {
	s.LastIteration = rec.Iteration
	if rec.Err == nil {
		s.Completed = rec.Iteration + 1
	} else {
		s.Cause = rec.Err.Error()
	}

	return s
}

func (s *RunSnapshot) withResult(res *bench.Result) *RunSnapshot {
	s.UpdatedAt = time.Now()
	s.Channels = 0
	s.Buffers = 0
	s.Mapped = 0
	s.Completed = res.Completed
	s.Status = string(res.Status)
	if res.Cause != nil {
		s.Cause = res.Cause.Error()
	}

	return s
}
