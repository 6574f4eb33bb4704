package bench

import (
	"fmt"
	"time"

	"github.com/sarchlab/dmabench/fft"
)

// Status is the outcome of a run.
type Status string

// Run outcomes.
const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// A Result describes one run.
type Result struct {
	RunID     string
	Start     time.Time
	End       time.Time
	Requested int
	Completed int
	Status    Status

	// FailedIteration is the index of the iteration that failed, or -1 if
	// the run failed before the first iteration or did not fail.
	FailedIteration int
	Cause           error

	// Samples is the decoded receive buffer after the last iteration, kept
	// when Config.DumpSamples is set.
	Samples []fft.Sample
}

// OK tells whether every iteration completed.
func (r *Result) OK() bool {
	return r.Status == StatusOK
}

// Elapsed returns the time spanned by all iterations. A failed run has no
// valid timing and reports zero.
func (r *Result) Elapsed() time.Duration {
	if !r.OK() {
		return 0
	}

	return r.End.Sub(r.Start)
}

// ExecutionTime formats the elapsed time as minutes:seconds.
func (r *Result) ExecutionTime() string {
	return FormatExecutionTime(r.Elapsed())
}

// FormatExecutionTime formats d as "execution time : M:S", in whole
// minutes and seconds without padding.
func FormatExecutionTime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("execution time : %d:%d", secs/60, secs%60)
}

// String returns the line reported for the run.
func (r *Result) String() string {
	if r.OK() {
		return r.ExecutionTime()
	}

	if r.FailedIteration < 0 {
		return fmt.Sprintf("run %s failed: %v", r.RunID, r.Cause)
	}

	return fmt.Sprintf("run %s failed at iteration %d of %d: %v",
		r.RunID, r.FailedIteration, r.Requested, r.Cause)
}

// DumpSamples formats the kept samples, one "rx[i] = R + I j" line each.
func (r *Result) DumpSamples() []string {
	lines := make([]string, len(r.Samples))
	for i, s := range r.Samples {
		lines[i] = fmt.Sprintf("rx[%d] = %s", i, s)
	}

	return lines
}
