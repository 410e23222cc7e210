package regime

import (
	"testing"
	"time"

	"github.com/cuemby/hammer/pkg/selection"
	"github.com/cuemby/hammer/pkg/stressor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inst(name string, n int32) *selection.Instance {
	return &selection.Instance{Entry: &stressor.Entry{Name: name}, NumInstances: n}
}

func TestPlansForAssignsContiguousSlotsAndAdvancesBase(t *testing.T) {
	a, b := inst("cpu", 2), inst("vm", 1)
	slot := 0
	plans := plansFor([]*selection.Instance{a, b}, &slot, time.Second)

	require.Len(t, plans, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{plans[0].SlotIndex, plans[1].SlotIndex, plans[2].SlotIndex})
	assert.Equal(t, 3, slot)
}

func TestPlansForSkipsIgnoredAndPermuteMasked(t *testing.T) {
	a := inst("cpu", 2)
	a.IgnoreRun = selection.Excluded
	b := inst("vm", 1)
	b.IgnorePermute = true
	c := inst("hdd", 1)

	slot := 0
	plans := plansFor([]*selection.Instance{a, b, c}, &slot, time.Second)

	require.Len(t, plans, 1)
	assert.Equal(t, "hdd", plans[0].Instance.Entry.Name)
	assert.Equal(t, 1, slot)
}

func TestPlansForDeadlineReflectsTimeout(t *testing.T) {
	a := inst("cpu", 1)
	slot := 0
	before := time.Now()
	plans := plansFor([]*selection.Instance{a}, &slot, 5*time.Second)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Deadline.After(before.Add(4*time.Second)))
}

func TestPlansForZeroTimeoutMeansUnbounded(t *testing.T) {
	a := inst("cpu", 1)
	slot := 0
	plans := plansFor([]*selection.Instance{a}, &slot, 0)
	require.Len(t, plans, 1)
	assert.True(t, plans[0].Deadline.IsZero(), "timeout 0 must produce the zero deadline, not now()")
}

// TestPermuteSubsetCountIsTwoToTheKMinusOne: permute over k stressors
// drives exactly 2^k-1 non-empty subsets, masking IgnorePermute per bit
// the way plansFor's caller expects.
func TestPermuteSubsetCountIsTwoToTheKMinusOne(t *testing.T) {
	active := []*selection.Instance{inst("a", 1), inst("b", 1), inst("c", 1)}
	k := len(active)
	total := (1 << k) - 1

	seen := map[string]bool{}
	for i := 1; i <= total; i++ {
		for j, in := range active {
			in.IgnorePermute = i&(1<<j) == 0
		}
		var key string
		for _, in := range active {
			if !in.IgnorePermute {
				key += in.Entry.Name
			}
		}
		seen[key] = true
	}
	assert.Equal(t, total, len(seen), "every subset bitmask must be distinct")
	assert.Equal(t, 7, total)
}

func TestMaxPermuteStressorsClamp(t *testing.T) {
	assert.Equal(t, 16, maxPermuteStressors)
}
