package registry

import (
	"testing"

	"github.com/cuemby/hammer/pkg/stressor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []stressor.Entry {
	return []stressor.Entry{
		{ID: 0, Name: "noop", ClassMask: stressor.ClassOS},
		{ID: 1, Name: "cpu_hash", ClassMask: stressor.ClassCPU},
		{ID: 2, Name: "vm", ClassMask: stressor.ClassVM | stressor.ClassMemory},
	}
}

func TestFindByNameMungesUnderscoreHyphen(t *testing.T) {
	r := New(testEntries())

	e, ok := r.FindByName("cpu-hash")
	require.True(t, ok)
	assert.Equal(t, uint32(1), e.ID)

	e, ok = r.FindByName("cpu_hash")
	require.True(t, ok)
	assert.Equal(t, uint32(1), e.ID)

	e, ok = r.FindByName("  cpu-hash  ")
	require.True(t, ok)
	assert.Equal(t, uint32(1), e.ID)
}

func TestFindByNameUnknown(t *testing.T) {
	r := New(testEntries())
	_, ok := r.FindByName("does-not-exist")
	assert.False(t, ok)
}

func TestFindByID(t *testing.T) {
	r := New(testEntries())
	e, ok := r.FindByID(2)
	require.True(t, ok)
	assert.Equal(t, "vm", e.Name)

	_, ok = r.FindByID(999)
	assert.False(t, ok)
}

func TestIterIsSortedByMungedName(t *testing.T) {
	r := New(testEntries())
	names := make([]string, 0, 3)
	for _, e := range r.Iter() {
		names = append(names, stressor.Munge(e.Name))
	}
	assert.Equal(t, []string{"cpu-hash", "noop", "vm"}, names)
}

func TestMembersFiltersByClassMask(t *testing.T) {
	r := New(testEntries())
	members := r.Members(stressor.ClassVM)
	require.Len(t, members, 1)
	assert.Equal(t, "vm", members[0].Name)
}

func TestNewPanicsOnDuplicateName(t *testing.T) {
	dup := []stressor.Entry{
		{ID: 0, Name: "noop"},
		{ID: 1, Name: "noop"},
	}
	assert.Panics(t, func() { New(dup) })
}

func TestResolveClassUnknown(t *testing.T) {
	_, err := ResolveClass("not-a-class")
	require.Error(t, err)
}

func TestResolveClassKnown(t *testing.T) {
	cls, err := ResolveClass("vm")
	require.NoError(t, err)
	assert.Equal(t, stressor.ClassVM, cls)
}
