package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes migration metrics. A nil Collector is
// valid and drops every observation, so wiring it is optional for
// one-shot commands and tests.
type Collector struct {
	records       *prometheus.CounterVec
	movedFiles    prometheus.Counter
	batchDuration prometheus.Histogram
	activeJobs    prometheus.Gauge
}

// New creates and registers a metrics collector.
func New() *Collector {
	c := &Collector{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photomigrate_records_total",
				Help: "Records processed by outcome",
			},
			[]string{"outcome"},
		),
		movedFiles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "photomigrate_moved_files_total",
				Help: "Objects copied to the destination store",
			},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "photomigrate_batch_duration_seconds",
				Help:    "Time taken to process one record batch",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "photomigrate_active_jobs",
				Help: "Date jobs currently running in this worker",
			},
		),
	}

	prometheus.MustRegister(c.records, c.movedFiles, c.batchDuration, c.activeJobs)
	return c
}

// IncRecord counts one record outcome: migrated, skipped, invalid,
// failed or rate_limited.
func (c *Collector) IncRecord(outcome string) {
	if c == nil {
		return
	}
	c.records.WithLabelValues(outcome).Inc()
}

// IncMovedFiles counts objects copied to the destination store.
func (c *Collector) IncMovedFiles(n int) {
	if c == nil || n == 0 {
		return
	}
	c.movedFiles.Add(float64(n))
}

// ObserveBatch records one batch duration.
func (c *Collector) ObserveBatch(d time.Duration) {
	if c == nil {
		return
	}
	c.batchDuration.Observe(d.Seconds())
}

// JobStarted marks a date job as running.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.activeJobs.Inc()
}

// JobFinished marks a date job as done.
func (c *Collector) JobFinished() {
	if c == nil {
		return
	}
	c.activeJobs.Dec()
}

// StartServer starts the metrics HTTP listener.
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
