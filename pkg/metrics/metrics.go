package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstancesStarted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hammer_instances_started_total",
		Help: "Total number of stressor instances forked so far in the current run",
	})

	InstancesReaped = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hammer_instances_reaped_total",
		Help: "Total number of stressor instances reaped so far in the current run",
	})

	InstancesFailed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hammer_instances_failed_total",
		Help: "Total number of stressor instances classified into the failed bucket",
	})

	BogoOpsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hammer_bogo_ops_total",
			Help: "Aggregate bogo-ops counter by stressor",
		},
		[]string{"stressor"},
	)

	BogoOpsPerSecond = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hammer_bogo_ops_per_second",
			Help: "bogo-ops/s (real time basis) by stressor",
		},
		[]string{"stressor"},
	)

	CPUUsagePercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hammer_cpu_usage_percent",
			Help: "Average per-instance CPU usage percent by stressor",
		},
		[]string{"stressor"},
	)

	ChecksumMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hammer_checksum_mismatches_total",
			Help: "Total number of instances whose checksum failed validation, by stressor",
		},
		[]string{"stressor"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hammer_run_duration_seconds",
			Help:    "Wall-clock duration of a completed run",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(InstancesStarted)
	prometheus.MustRegister(InstancesReaped)
	prometheus.MustRegister(InstancesFailed)
	prometheus.MustRegister(BogoOpsTotal)
	prometheus.MustRegister(BogoOpsPerSecond)
	prometheus.MustRegister(CPUUsagePercent)
	prometheus.MustRegister(ChecksumMismatches)
	prometheus.MustRegister(RunDuration)
}

// Handler returns the Prometheus HTTP handler for the opt-in --metrics-addr
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
