// Package monitoring serves the state of running benchmarks over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sarchlab/dmabench/bench"
	"github.com/sarchlab/dmabench/monitoring/web"
	"github.com/sarchlab/dmabench/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor turns benchmark runs into a web server. It is a sim.Hook: attach
// it to a bench.Driver, or pass it to bench.NewModule, to follow the runs.
type Monitor struct {
	portNumber   int
	openBrowser  bool
	profileSpan  time.Duration
	metrics      *Metrics
	server       *http.Server
	listenerAddr string

	runsLock sync.Mutex
	runs     map[string]*RunSnapshot

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
	barsByRun        map[string]*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		profileSpan: time.Second,
		metrics:     NewMetrics(),
		runs:        make(map[string]*RunSnapshot),
		barsByRun:   make(map[string]*ProgressBar),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the dashboard in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// WithProfileSpan sets how long /api/profile samples the CPU.
func (m *Monitor) WithProfileSpan(d time.Duration) *Monitor {
	m.profileSpan = d
	return m
}

// Metrics returns the Prometheus collectors the monitor updates.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Func updates the progress, the metrics and the inspectable runs from the
// hooks of a bench.Driver. It runs on the goroutine of the run, so it is the
// only place that reads the run context.
func (m *Monitor) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case bench.HookPosRunStart:
		rc := ctx.Item.(*bench.RunContext)
		m.RegisterRun(rc)
		bar := m.CreateProgressBar(rc.ID, uint64(rc.Config.Iterations))
		bar.IncrementInProgress(1)
	case bench.HookPosIterationEnd:
		rec := ctx.Item.(bench.IterationRecord)
		m.metrics.ObserveIteration(rec)
		if rc, ok := ctx.Detail.(*bench.RunContext); ok {
			m.storeRun(snapshotRun(rc).withIteration(rec))
		}
		if bar := m.progressBar(rec.RunID); bar != nil && rec.Err == nil {
			bar.IncrementFinished(1)
		}
	case bench.HookPosRunEnd:
		res := ctx.Item.(*bench.Result)
		m.metrics.ObserveRun(res)
		m.finishRun(res)
		if bar := m.progressBar(res.RunID); bar != nil {
			bar.Finish(!res.OK())
		}
	}
}

// RegisterRun makes a run inspectable through /api/run. The run is copied;
// later changes show after the next iteration.
func (m *Monitor) RegisterRun(rc *bench.RunContext) {
	m.storeRun(snapshotRun(rc))
}

func (m *Monitor) storeRun(s *RunSnapshot) {
	m.runsLock.Lock()
	defer m.runsLock.Unlock()

	m.runs[s.ID] = s
}

func (m *Monitor) finishRun(res *bench.Result) {
	m.runsLock.Lock()
	defer m.runsLock.Unlock()

	s, ok := m.runs[res.RunID]
	if !ok {
		return
	}

	done := *s
	m.runs[res.RunID] = done.withResult(res)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        name,
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)
	m.barsByRun[name] = bar

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
	delete(m.barsByRun, pb.ID)
}

func (m *Monitor) progressBar(runID string) *ProgressBar {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	return m.barsByRun[runID]
}

// Handler returns the router of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/api/list_runs", m.listRuns)
	r.HandleFunc("/api/run/{id}", m.runDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.Handle("/metrics", promhttp.HandlerFor(
		m.metrics.Registry(),
		promhttp.HandlerOpts{ErrorLog: log.New(os.Stderr, "", log.LstdFlags)},
	))
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its address.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.listenerAddr = url

	fmt.Fprintf(os.Stderr, "Monitoring benchmark with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return url, nil
}

// URL returns the address of the running server, or "" before StartServer.
func (m *Monitor) URL() string {
	return m.listenerAddr
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.Snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

func (m *Monitor) listRuns(w http.ResponseWriter, _ *http.Request) {
	m.runsLock.Lock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.runsLock.Unlock()

	sort.Strings(ids)

	writeJSON(w, ids)
}

func (m *Monitor) runDetails(w http.ResponseWriter, r *http.Request) {
	run := m.findRunOr404(w, mux.Vars(r)["id"])
	if run == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(run)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	RunID     string `json:"run_id,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	run := m.findRunOr404(w, req.RunID)
	if run == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(run)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

// findRunOr404 returns a private copy of the snapshot of a run.
func (m *Monitor) findRunOr404(
	w http.ResponseWriter,
	id string,
) *RunSnapshot {
	m.runsLock.Lock()
	s := m.runs[id]
	var run *RunSnapshot
	if s != nil {
		c := *s
		run = &c
	}
	m.runsLock.Unlock()

	if run == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Run not found"))
		dieOnErr(err)
	}

	return run
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	process, err := process.NewProcess(int32(os.Getpid()))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(m.profileSpan)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(b)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
