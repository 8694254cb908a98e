// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	overdueCount  *prometheus.GaugeVec
	overdueAmount *prometheus.GaugeVec
	idempotencyGC prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetOverdue replaces the overdue gauges with the latest scan, one entry per currency.
func (m *Metrics) SetOverdue(counts map[string]int, amounts map[string]float64) {
	if m == nil {
		return
	}
	m.overdueCount.Reset()
	m.overdueAmount.Reset()
	for currency, n := range counts {
		m.overdueCount.WithLabelValues(currency).Set(float64(n))
	}
	for currency, amount := range amounts {
		m.overdueAmount.WithLabelValues(currency).Set(amount)
	}
}

// AddIdempotencyPurged counts idempotency keys removed by cleanup.
func (m *Metrics) AddIdempotencyPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.idempotencyGC.Add(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pomaster_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pomaster_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pomaster_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	overdueCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pomaster_overdue_schedules",
		Help: "Unsettled payment schedules past their due date, by currency.",
	}, []string{"currency"})
	overdueAmount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pomaster_overdue_amount",
		Help: "Scheduled amount past its due date and still unsettled, by currency.",
	}, []string{"currency"})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pomaster_idempotency_keys_purged_total",
		Help: "Idempotency keys removed after their retention window.",
	})
	registerer.MustRegister(runs, failures, duration, overdueCount, overdueAmount, purged)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		overdueCount:  overdueCount,
		overdueAmount: overdueAmount,
		idempotencyGC: purged,
	}
}
