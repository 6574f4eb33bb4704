package tracing

import (
	"sync"

	"github.com/sarchlab/dmabench/sim"
)

// DurationTracer collects how long a certain type of task takes. If the
// execution of two tasks overlaps, the two processing times are simply
// added together.
type DurationTracer struct {
	timeTeller    sim.TimeTeller
	filter        TaskFilter
	lock          sync.Mutex
	inflightTasks map[string]Task

	count    uint64
	total    sim.VTimeInSec
	min, max sim.VTimeInSec
}

// NewDurationTracer creates a new DurationTracer
func NewDurationTracer(
	timeTeller sim.TimeTeller,
	filter TaskFilter,
) *DurationTracer {
	return &DurationTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]Task),
	}
}

// TotalTime returns the total time has been spent on the tasks.
func (t *DurationTracer) TotalTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.total
}

// AverageTime returns the average duration of a task, or 0 if no task has
// finished.
func (t *DurationTracer) AverageTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.count == 0 {
		return 0
	}

	return t.total / sim.VTimeInSec(t.count)
}

// MinTime returns the shortest duration seen.
func (t *DurationTracer) MinTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.min
}

// MaxTime returns the longest duration seen.
func (t *DurationTracer) MaxTime() sim.VTimeInSec {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.max
}

// TotalCount returns the number of finished tasks.
func (t *DurationTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count
}

// StartTask records the task start time
func (t *DurationTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	if !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflightTasks[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing
func (t *DurationTracer) StepTask(_ Task) {
	// Do nothing
}

// EndTask records the end of the task
func (t *DurationTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.inflightTasks[task.ID]
	if !ok {
		return
	}
	delete(t.inflightTasks, task.ID)

	d := now - originalTask.StartTime
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.total += d
	t.count++
}
