package history

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/hammer/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRunRoundTrip(t *testing.T) {
	s := openTestStore(t)

	doc := report.Document{
		RunInfo: report.RunInfo{RunID: "run-1", Regime: "all"},
		Metrics: []report.MetricRow{{Stressor: "cpu", BogoOps: 1234, UserTime: 1.5}},
	}
	require.NoError(t, s.SaveRun(doc))

	got, err := s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunInfo.RunID)
	assert.Equal(t, "all", got.RunInfo.Regime)
	require.Len(t, got.Metrics, 1)
	assert.EqualValues(t, 1234, got.Metrics[0].BogoOps)
	assert.Equal(t, 1.5, got.Metrics[0].UserTime)
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun("nope")
	require.Error(t, err)
}

func TestListRunsReturnsEverySavedRun(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(report.Document{RunInfo: report.RunInfo{RunID: id}}))
	}
	docs, err := s.ListRuns()
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}
