// Package builtin is the concrete stressor bodies shipped with hammer. Each
// one is a small, self-contained RunFunc registered into the catalogue by
// Entries; the bodies are pluggable, so this package deliberately stays
// small — just enough real workloads to drive the orchestrator end to end.
package builtin

import "github.com/cuemby/hammer/pkg/stressor"

// Entries returns the built-in stressor catalogue rows, in registration
// (not dispatch) order; pkg/registry.New sorts them by name.
func Entries() []stressor.Entry {
	return []stressor.Entry{
		noopEntry(),
		cpuEntry(),
		vmEntry(),
		hddEntry(),
		pipeEntry(),
		schedEntry(),
		forkEntry(),
	}
}
