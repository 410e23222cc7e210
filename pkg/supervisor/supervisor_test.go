package supervisor

import (
	"testing"
	"time"

	"github.com/cuemby/hammer/pkg/stressor"
	"github.com/stretchr/testify/assert"
)

// The fork/reap path itself needs the built hammer binary (re-exec does not
// reach worker mode from a go test binary), so unit coverage here sticks to
// the pure seams: the three-flag summary fold and the shared-deadline
// resolution.

func result(code stressor.ExitCode, bucket string) Result {
	return Result{ExitCode: code, Bucket: bucket}
}

func TestSummarizeAllPassed(t *testing.T) {
	s := summarize([]Result{
		result(stressor.Success, "passed"),
		result(stressor.Success, "passed"),
	}, time.Second)

	assert.True(t, s.Success)
	assert.True(t, s.ResourceSuccess)
	assert.True(t, s.MetricsSuccess)
	assert.Equal(t, time.Second, s.Duration)
}

func TestSummarizeNoResourceClearsResourceFlagOnly(t *testing.T) {
	s := summarize([]Result{
		result(stressor.NoResource, "skipped"),
		result(stressor.Success, "passed"),
	}, time.Second)

	assert.True(t, s.Success)
	assert.False(t, s.ResourceSuccess)
	assert.True(t, s.MetricsSuccess)
}

func TestSummarizeMetricsUntrustworthyClearsMetricsFlagOnly(t *testing.T) {
	s := summarize([]Result{result(stressor.MetricsUntrustworthy, "badmetrics")}, time.Second)

	assert.True(t, s.Success)
	assert.True(t, s.ResourceSuccess)
	assert.False(t, s.MetricsSuccess)
}

func TestSummarizeFailureClearsSuccess(t *testing.T) {
	s := summarize([]Result{result(stressor.Failure, "failed")}, time.Second)
	assert.False(t, s.Success)
}

func TestSummarizeBySysExitLeavesSuccess(t *testing.T) {
	// A worker that slipped out through a normal return lands in the failed
	// bucket and aborts the run, but does not flip the run-level success
	// flag the way a real FAILURE exit does.
	s := summarize([]Result{result(stressor.BySysExit, "failed")}, time.Second)
	assert.True(t, s.Success)
}

func TestSummarizeSignaledFailureBucketClearsSuccess(t *testing.T) {
	// A worker killed by an unexpected signal classifies as Signaled with
	// the "failed" bucket; the summary must treat that as a failure too.
	s := summarize([]Result{result(stressor.Signaled, "failed")}, time.Second)
	assert.False(t, s.Success)
}

func TestRunDeadlinePicksSharedDeadline(t *testing.T) {
	dl := time.Now().Add(time.Minute)
	plans := []Plan{{Deadline: dl}, {Deadline: dl}}
	assert.Equal(t, dl, runDeadline(plans))
}

func TestRunDeadlineZeroForUnboundedRun(t *testing.T) {
	plans := []Plan{{}, {}}
	assert.True(t, runDeadline(plans).IsZero())
	assert.True(t, runDeadline(nil).IsZero())
}
