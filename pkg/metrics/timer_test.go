package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimerStartsImmediately(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	// The timer backs run-duration accounting, so a fresh one must read as
	// "just started", not as some stale instant.
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationTracksElapsedWallClock(t *testing.T) {
	timer := NewTimer()
	time.Sleep(50 * time.Millisecond)

	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 50*time.Millisecond)
	assert.Less(t, d, time.Second, "a 50ms regime dispatch should not read as seconds")
}

func TestTimerDurationIsMonotonic(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)
	first := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	second := timer.Duration()

	assert.Greater(t, second, first)
}

// TestTimerObserveDuration drives the same shape cmd/hammer uses for a run:
// one timer around the whole regime dispatch, observed once into a
// run-duration histogram.
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_run_duration_seconds",
		Help:    "Wall-clock duration of a test run",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)
	timer.ObserveDuration(histogram)

	assert.NotZero(t, timer.Duration())
}

func TestTimerObserveDurationVecLabelsByStressor(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_stressor_duration_seconds",
			Help:    "Wall-clock duration by stressor",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stressor"},
	)

	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)
	timer.ObserveDurationVec(histogramVec, "cpu")

	assert.NotZero(t, timer.Duration())
}

func TestTimersAreIndependent(t *testing.T) {
	// Sequential/permute runs may overlap timers (a run timer outliving a
	// per-round one); each must track only its own start.
	outer := NewTimer()
	time.Sleep(30 * time.Millisecond)
	inner := NewTimer()
	time.Sleep(30 * time.Millisecond)

	assert.Greater(t, outer.Duration(), inner.Duration())
	assert.NotZero(t, inner.Duration())
}
