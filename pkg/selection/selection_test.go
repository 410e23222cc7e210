package selection

import (
	"errors"
	"sort"
	"testing"

	"github.com/cuemby/hammer/pkg/registry"
	"github.com/cuemby/hammer/pkg/stressor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *registry.Registry {
	return registry.New([]stressor.Entry{
		{ID: 0, Name: "noop", ClassMask: stressor.ClassOS},
		{ID: 1, Name: "cpu", ClassMask: stressor.ClassCPU},
		{ID: 2, Name: "vm", ClassMask: stressor.ClassVM},
		{
			ID: 3, Name: "unsupported", ClassMask: stressor.ClassIO,
			Hooks: stressor.Hooks{Supported: func(string) error { return errors.New("no") }},
		},
		{ID: 4, Name: "quake", ClassMask: stressor.ClassPathological},
	})
}

func byName(t *testing.T, instances []*Instance, name string) *Instance {
	t.Helper()
	for _, inst := range instances {
		if stressor.Munge(inst.Entry.Name) == name {
			return inst
		}
	}
	t.Fatalf("no instance named %q", name)
	return nil
}

func TestSelectExplicitPerStressorCount(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{PerStressor: map[string]int32{"cpu": 3}})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.EqualValues(t, 3, byName(t, instances, "cpu").NumInstances)
}

func TestSelectRegimeAllEnablesEveryStressorWhenNotSetOrWith(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, byName(t, instances, "cpu").NumInstances)
	assert.EqualValues(t, 2, byName(t, instances, "noop").NumInstances)
}

func TestSelectWithRestrictsToSubset(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeSequential, RegimeN: 1, With: []string{"cpu", "vm"}})
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.EqualValues(t, 1, byName(t, instances, "cpu").NumInstances)
	assert.EqualValues(t, 1, byName(t, instances, "vm").NumInstances)
}

// TestSelectWithPreservesUserGivenOrder: "--sequential 1 --with vm,cpu"
// must dispatch vm before cpu, even though that is not alphabetical order
// — instance list order is the user-visible dispatch order.
func TestSelectWithPreservesUserGivenOrder(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeSequential, RegimeN: 1, With: []string{"vm", "cpu"}})
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "vm", stressor.Munge(instances[0].Entry.Name))
	assert.Equal(t, "cpu", stressor.Munge(instances[1].Entry.Name))
}

// TestSelectRegimeDefaultSortsAlphabetically confirms the regime-default
// enablement path (step 2, no SET/WITH) still produces deterministic
// dispatch order, since there is no user-given order to preserve there.
func TestSelectRegimeDefaultSortsAlphabetically(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 1, Pathological: true})
	require.NoError(t, err)
	var names []string
	for _, inst := range instances {
		names = append(names, stressor.Munge(inst.Entry.Name))
	}
	assert.True(t, sort.StringsAreSorted(names))
}

func TestSelectClassRestrictionExcludesOthers(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 1, Class: "cpu"})
	require.NoError(t, err)
	assert.Equal(t, NotIgnored, byName(t, instances, "cpu").IgnoreRun)
	assert.Equal(t, Excluded, byName(t, instances, "vm").IgnoreRun)
}

func TestSelectExcludeUnsupported(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 1})
	require.NoError(t, err)
	assert.Equal(t, Unsupported, byName(t, instances, "unsupported").IgnoreRun)
}

func TestSelectExcludesPathologicalByDefault(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 1})
	require.NoError(t, err)
	assert.Equal(t, Excluded, byName(t, instances, "quake").IgnoreRun)
}

func TestSelectPathologicalFlagAllows(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 1, Pathological: true})
	require.NoError(t, err)
	assert.Equal(t, NotIgnored, byName(t, instances, "quake").IgnoreRun)
}

func TestSelectExcludeList(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeAll, RegimeN: 1, Exclude: []string{"cpu"}})
	require.NoError(t, err)
	assert.Equal(t, Excluded, byName(t, instances, "cpu").IgnoreRun)
	assert.Equal(t, NotIgnored, byName(t, instances, "noop").IgnoreRun)
}

func TestSelectRandomSamplingIncrementsCounts(t *testing.T) {
	reg := testRegistry()
	instances, err := Select(reg, Options{Regime: RegimeRandom, RandomN: 20})
	require.NoError(t, err)
	var total int32
	for _, inst := range instances {
		total += inst.NumInstances
	}
	assert.EqualValues(t, 20, total)
}

func TestSelectSeededRandomSamplingIsDeterministic(t *testing.T) {
	counts := func() []int32 {
		reg := testRegistry()
		instances, err := Select(reg, Options{Regime: RegimeRandom, RandomN: 10, Seed: 42, HasSeed: true})
		require.NoError(t, err)
		var out []int32
		for _, inst := range instances {
			out = append(out, inst.NumInstances)
		}
		return out
	}
	assert.Equal(t, counts(), counts())
}

func TestSelectUnknownStressorErrors(t *testing.T) {
	reg := testRegistry()
	_, err := Select(reg, Options{PerStressor: map[string]int32{"nope": 1}})
	assert.Error(t, err)
}

func TestResolveNBoundaries(t *testing.T) {
	assert.Greater(t, resolveN(0), int32(0))
	assert.Greater(t, resolveN(-1), int32(0))
	assert.EqualValues(t, 5, resolveN(5))
	assert.EqualValues(t, maxStressorInstances, resolveN(maxStressorInstances+1))
}
