package pool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a WorkerPool reports to.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsPanicked  prometheus.Counter
	TasksFailed   prometheus.Counter
	Workers       prometheus.Gauge
	BusyWorkers   prometheus.Gauge
	JobLatency    prometheus.Histogram
}

// NewMetrics creates the pool collectors and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted to the pool",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that ran to completion",
		}),
		JobsPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "jobs_panicked_total",
			Help:      "Total number of jobs that panicked and took their worker down",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks whose Execute returned an error",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Number of workers owned by the pool",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "busy_workers",
			Help:      "Number of workers currently running a job",
		}),
		JobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "job_duration_seconds",
			Help:      "Histogram of job execution time",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsPanicked,
		m.TasksFailed,
		m.Workers,
		m.BusyWorkers,
		m.JobLatency,
	)
	return m
}

func (m *Metrics) jobSubmitted() {
	if m == nil {
		return
	}
	m.JobsSubmitted.Inc()
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.BusyWorkers.Inc()
}

func (m *Metrics) jobFinished(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.BusyWorkers.Dec()
	m.JobLatency.Observe(d.Seconds())
	if ok {
		m.JobsCompleted.Inc()
	} else {
		m.JobsPanicked.Inc()
	}
}

func (m *Metrics) taskFailed() {
	if m == nil {
		return
	}
	m.TasksFailed.Inc()
}

func (m *Metrics) setWorkers(n int) {
	if m == nil {
		return
	}
	m.Workers.Set(float64(n))
}
