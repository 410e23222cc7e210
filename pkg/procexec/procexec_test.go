package procexec

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWorkerAbsent(t *testing.T) {
	// t.Setenv registers the restore; unsetting after it gives a clean
	// "variable not present" state regardless of the test environment.
	t.Setenv(EnvWorker, "placeholder")
	os.Unsetenv(EnvWorker)

	_, _, ok := IsWorker()
	assert.False(t, ok)
}

func TestIsWorkerParsesNameAndIndex(t *testing.T) {
	t.Setenv(EnvWorker, "cpu-cache:7")
	name, index, ok := IsWorker()
	require.True(t, ok)
	assert.Equal(t, "cpu-cache", name)
	assert.EqualValues(t, 7, index)
}

func TestIsWorkerRejectsMalformed(t *testing.T) {
	t.Setenv(EnvWorker, "no-colon")
	_, _, ok := IsWorker()
	assert.False(t, ok)

	t.Setenv(EnvWorker, "cpu:not-a-number")
	_, _, ok = IsWorker()
	assert.False(t, ok)
}

func TestWorkerParamsRoundTrip(t *testing.T) {
	t.Setenv(EnvInstanceCount, "4")
	t.Setenv(EnvArenaCount, "12")
	t.Setenv(EnvMaxOps, "1000")
	t.Setenv(EnvDeadline, "0")

	ic, ac, mo, dl, err := WorkerParams()
	require.NoError(t, err)
	assert.EqualValues(t, 4, ic)
	assert.EqualValues(t, 12, ac)
	assert.EqualValues(t, 1000, mo)
	assert.True(t, dl.IsZero(), "deadline 0 must decode as the zero time (unbounded)")

	t.Setenv(EnvDeadline, "1")
	_, _, _, dl, err = WorkerParams()
	require.NoError(t, err)
	assert.False(t, dl.IsZero())
}

func TestWorkerParamsRejectsGarbage(t *testing.T) {
	t.Setenv(EnvInstanceCount, "nope")
	t.Setenv(EnvArenaCount, "1")
	t.Setenv(EnvMaxOps, "0")
	t.Setenv(EnvDeadline, "0")
	_, _, _, _, err := WorkerParams()
	require.Error(t, err)
}
