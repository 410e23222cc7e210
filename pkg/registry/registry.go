// Package registry implements the stressor catalogue: an immutable lookup
// table mapping stressor name, id and class to its run function and hooks.
// It is built once at startup by pkg/stressor/builtin and
// never mutated afterward; Selection and Supervisor only ever read it.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/hammer/pkg/stressor"
)

// Registry is a read-only catalogue of stressor.Entry rows, indexed by name
// and by id for O(1) lookup, with underscore/hyphen munging equivalence on
// name lookups.
type Registry struct {
	byID   map[uint32]*stressor.Entry
	byName map[string]*stressor.Entry
	order  []*stressor.Entry
}

// New builds a Registry from a fixed list of entries. IDs and names must be
// unique; New panics on a collision since that is only ever a programming
// error in the built-in catalogue, never a runtime condition.
func New(entries []stressor.Entry) *Registry {
	r := &Registry{
		byID:   make(map[uint32]*stressor.Entry, len(entries)),
		byName: make(map[string]*stressor.Entry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		munged := stressor.Munge(e.Name)
		if _, dup := r.byName[munged]; dup {
			panic(fmt.Sprintf("registry: duplicate stressor name %q", munged))
		}
		if _, dup := r.byID[e.ID]; dup {
			panic(fmt.Sprintf("registry: duplicate stressor id %d", e.ID))
		}
		r.byID[e.ID] = e
		r.byName[munged] = e
		r.order = append(r.order, e)
	}
	sort.Slice(r.order, func(i, j int) bool { return stressor.Munge(r.order[i].Name) < stressor.Munge(r.order[j].Name) })
	return r
}

// FindByName looks up an entry by name, munging both the query and the
// catalogue names (underscore/hyphen equivalence) before comparing.
func (r *Registry) FindByName(name string) (*stressor.Entry, bool) {
	e, ok := r.byName[stressor.Munge(strings.TrimSpace(name))]
	return e, ok
}

// FindByID looks up an entry by numeric id.
func (r *Registry) FindByID(id uint32) (*stressor.Entry, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// Iter returns every entry, ordered by (munged) name for deterministic
// dispatch order.
func (r *Registry) Iter() []*stressor.Entry {
	out := make([]*stressor.Entry, len(r.order))
	copy(out, r.order)
	return out
}

// Members returns every entry whose class mask includes cls, in catalogue
// order. Used both by --class restriction and by the "<class>?" expansion
// printer.
func (r *Registry) Members(cls stressor.Class) []*stressor.Entry {
	var out []*stressor.Entry
	for _, e := range r.order {
		if e.ClassMask&cls != 0 {
			out = append(out, e)
		}
	}
	return out
}

// ResolveClass validates a class token against the closed class set and
// returns its bitmask.
func ResolveClass(name string) (stressor.Class, error) {
	cls, ok := stressor.ClassByName(name)
	if !ok {
		return 0, fmt.Errorf("unknown stressor class %q", name)
	}
	return cls, nil
}
