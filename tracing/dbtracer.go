package tracing

import (
	"fmt"
	"sync"

	"github.com/sarchlab/dmabench/datarecording"
	"github.com/sarchlab/dmabench/sim"
)

// TaskTable is the table DBTracer writes to.
const TaskTable = "trace"

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
	Detail    string
}

// DBTracer is a tracer that stores finished tasks into a data recorder.
type DBTracer struct {
	lock         sync.Mutex
	timeTeller   sim.TimeTeller
	backend      datarecording.DataRecorder
	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer and the table it writes to.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TaskTable, taskTableEntry{})

	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	t.tracingTasks[task.ID] = task
}

// StepTask does nothing.
func (t *DBTracer) StepTask(_ Task) {
	// Do nothing for now.
}

// EndTask marks the end of a task and writes it out.
func (t *DBTracer) EndTask(task Task) {
	now := t.timeTeller.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	original, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}
	delete(t.tracingTasks, task.ID)

	detail := original.Detail
	if task.Detail != nil {
		detail = task.Detail
	}

	entry := taskTableEntry{
		ID:        original.ID,
		ParentID:  original.ParentID,
		Kind:      original.Kind,
		What:      original.What,
		Location:  original.Where,
		StartTime: float64(original.StartTime),
		EndTime:   float64(now),
	}
	if detail != nil {
		entry.Detail = fmt.Sprint(detail)
	}

	t.backend.InsertData(TaskTable, entry)
}

// Terminate drops the unfinished tasks and flushes the recorder.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tracingTasks = make(map[string]Task)
	t.backend.Flush()
}
