package monitoring

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/dmabench/bench"
)

const metricsNamespace = "dmabench"

// Metrics are the Prometheus collectors of the benchmark.
type Metrics struct {
	registry *prometheus.Registry

	iterationSeconds prometheus.Histogram
	waitSeconds      *prometheus.HistogramVec
	iterations       prometheus.Counter
	failures         *prometheus.CounterVec
	runs             *prometheus.CounterVec
}

// NewMetrics creates the collectors in a registry of their own.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		iterationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one map, submit, wait and unmap cycle",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "completion_wait_seconds",
			Help:      "Time spent waiting for a completion",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"direction"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iterations_total",
			Help:      "Iterations completed successfully",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iteration_failures_total",
			Help:      "Iterations that ended with an error",
		}, []string{"reason"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Runs by final status",
		}, []string{"status"}),
	}

	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "info",
		Help:      "Version information for the dmabench binary",
		ConstLabels: prometheus.Labels{
			"goversion": runtime.Version(),
		},
	})
	info.Set(1)

	m.registry.MustRegister(
		info,
		m.iterationSeconds,
		m.waitSeconds,
		m.iterations,
		m.failures,
		m.runs,
	)

	return m
}

// Registry returns the registry that holds the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIteration records a finished iteration.
func (m *Metrics) ObserveIteration(rec bench.IterationRecord) {
	if rec.Err != nil {
		m.failures.WithLabelValues(bench.FailureReason(rec.Err)).Inc()
		return
	}

	m.iterations.Inc()
	m.iterationSeconds.Observe(rec.End.Sub(rec.Start).Seconds())
	m.waitSeconds.WithLabelValues("outbound").Observe(rec.OutboundWait.Seconds())
	m.waitSeconds.WithLabelValues("inbound").Observe(rec.InboundWait.Seconds())
}

// ObserveRun records the final status of a run.
func (m *Metrics) ObserveRun(res *bench.Result) {
	m.runs.WithLabelValues(string(res.Status)).Inc()
}
