package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTable is the table ExecRecorder writes to.
const ExecTable = "exec_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

type execInfo struct {
	Property string
	Value    string
}

// ExecRecorder records how the program was executed: when it started and
// ended, its command line and any extra properties, such as the run
// configuration.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []execInfo
}

// NewExecRecorder creates an ExecRecorder and its table.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecTable, execInfo{})

	return &ExecRecorder{recorder: recorder}
}

// Start records the start time, the command line and the working
// directory.
func (e *ExecRecorder) Start() {
	e.Record("Start Time", time.Now().Format(timeLayout))
	e.Record("Command", strings.Join(os.Args, " "))

	if cwd, err := os.Getwd(); err == nil {
		e.Record("Working Directory", cwd)
	}
}

// Record adds a property.
func (e *ExecRecorder) Record(property, value string) {
	e.entries = append(e.entries, execInfo{Property: property, Value: value})
}

// End writes the properties along with the exit time.
func (e *ExecRecorder) End() {
	e.Record("End Time", time.Now().Format(timeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTable, entry)
	}
	e.entries = nil

	e.recorder.Flush()
}
