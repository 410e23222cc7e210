// Package selection builds the active, ordered stressor list the
// supervisor drives: per-stressor instance counts, pathological/unsupported
// filtering, class restriction and random sampling, composed in a fixed
// order.
package selection

import (
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/cuemby/hammer/pkg/log"
	"github.com/cuemby/hammer/pkg/registry"
	"github.com/cuemby/hammer/pkg/stressor"
	"golang.org/x/sys/unix"
)

// IgnoreRun classifies why an instance will not be forked, or NotIgnored if
// it will be.
type IgnoreRun int

const (
	NotIgnored IgnoreRun = iota
	Unsupported
	Excluded
)

// Regime selects the top-level schedule.
type Regime int

const (
	RegimeNone Regime = iota
	RegimeAll
	RegimeSequential
	RegimePermute
	RegimeRandom
)

// maxStressorInstances is the hard ceiling positive instance counts are
// clamped against.
const maxStressorInstances = 1 << 20

// Instance is one catalogue entry's runtime selection state; its
// per-slot statistics live in pkg/arena, not here.
type Instance struct {
	Entry         *stressor.Entry
	NumInstances  int32
	BogoOpsTarget uint64
	IgnoreRun     IgnoreRun
	IgnorePermute bool
}

// Options carries every selection-affecting command-line input.
type Options struct {
	// PerStressor holds explicit "--<name> N" counts; presence of a key,
	// even with N==0, marks that stressor explicitly set.
	PerStressor map[string]int32
	// PerStressorOps holds "--<name>-ops M" targets.
	PerStressorOps map[string]uint64

	Regime  Regime
	RegimeN int32

	With         []string
	Class        string
	Pathological bool
	Exclude      []string
	RandomN      int32

	// Seed (when HasSeed) fixes the --random sampling sequence; NoRandSeed
	// skips clock seeding so repeated unseeded runs pick identically.
	Seed       int64
	HasSeed    bool
	NoRandSeed bool
}

// Select composes the selection steps in their fixed order and returns the
// ordered Instance list, one entry per catalogue member that was ever
// considered (ignored ones included, so the report can still account for
// them).
func Select(reg *registry.Registry, opts Options) ([]*Instance, error) {
	byName := make(map[string]*Instance)
	var order []*Instance

	instanceFor := func(e *stressor.Entry) *Instance {
		name := stressor.Munge(e.Name)
		if inst, ok := byName[name]; ok {
			return inst
		}
		inst := &Instance{Entry: e}
		byName[name] = inst
		order = append(order, inst)
		return inst
	}

	setAny := false

	// Step 1: explicit per-stressor flags, taken in name order since a map
	// carries no order of its own.
	setNames := make([]string, 0, len(opts.PerStressor))
	for name := range opts.PerStressor {
		setNames = append(setNames, name)
	}
	sort.Strings(setNames)
	for _, name := range setNames {
		n := opts.PerStressor[name]
		e, ok := reg.FindByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown stressor %q", name)
		}
		inst := instanceFor(e)
		inst.NumInstances = resolveN(n)
		setAny = true
	}
	for name, ops := range opts.PerStressorOps {
		e, ok := reg.FindByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown stressor %q", name)
		}
		instanceFor(e).BogoOpsTarget = ops
	}

	withActive := len(opts.With) > 0

	// Step 2: regime default enablement, only if neither SET nor WITH. A bare
	// --random N brings the whole catalogue into play at zero instances each;
	// step 8 below turns picks into counts, rather than resolveN seeding
	// every stressor the way the other three regimes do.
	switch {
	case (opts.Regime == RegimeAll || opts.Regime == RegimeSequential || opts.Regime == RegimePermute) &&
		!setAny && !withActive:
		n := resolveN(opts.RegimeN)
		for _, e := range reg.Iter() {
			instanceFor(e).NumInstances = n
		}
	case opts.Regime == RegimeRandom && !setAny && !withActive:
		for _, e := range reg.Iter() {
			instanceFor(e)
		}
	}

	// Step 3: WITH subset.
	if withActive {
		n := resolveN(opts.RegimeN)
		for _, name := range opts.With {
			e, ok := reg.FindByName(name)
			if !ok {
				return nil, fmt.Errorf("unknown stressor %q in --with", name)
			}
			instanceFor(e).NumInstances = n
		}
	}

	// Step 4: class restriction.
	if opts.Class != "" {
		cls, err := registry.ResolveClass(opts.Class)
		if err != nil {
			return nil, err
		}
		for _, inst := range order {
			if inst.Entry.ClassMask&cls == 0 {
				inst.IgnoreRun = Excluded
			}
		}
	}

	// Step 5: exclude_unsupported.
	for _, inst := range order {
		if inst.IgnoreRun != NotIgnored {
			continue
		}
		if inst.Entry.Hooks.Supported == nil {
			continue
		}
		if err := inst.Entry.Hooks.Supported(inst.Entry.Name); err != nil {
			inst.IgnoreRun = Unsupported
		}
	}

	// Step 6: exclude pathological stressors, unless --pathological. Each
	// previously enabled one gets a "disabled" line so the operator knows
	// why it vanished from the run.
	if !opts.Pathological {
		for _, inst := range order {
			if inst.IgnoreRun == NotIgnored && inst.Entry.ClassMask&stressor.ClassPathological != 0 {
				if inst.NumInstances > 0 {
					log.Warn(fmt.Sprintf("disabled %q (may hang or reboot the machine, use --pathological to enable)",
						stressor.Munge(inst.Entry.Name)))
				}
				inst.IgnoreRun = Excluded
			}
		}
	}

	// Step 7: explicit exclude list.
	for _, name := range opts.Exclude {
		e, ok := reg.FindByName(name)
		if !ok {
			continue
		}
		if inst, ok := byName[stressor.Munge(e.Name)]; ok {
			inst.IgnoreRun = Excluded
		}
	}

	// Step 8: random sampling with replacement, +1 instance per pick.
	if opts.RandomN > 0 {
		var universe []*Instance
		for _, inst := range order {
			if inst.IgnoreRun == NotIgnored {
				universe = append(universe, inst)
			}
		}
		if len(universe) == 0 {
			return nil, fmt.Errorf("--random: no enabled stressors to sample from")
		}
		rng := samplingRand(opts)
		for i := int32(0); i < opts.RandomN; i++ {
			pick := universe[rng.Intn(len(universe))]
			pick.NumInstances++
		}
	}

	// Instance list order is the user-visible dispatch order. Only the
	// regime-default enablement path (step 2) has no user-given order to
	// preserve — it walks the whole catalogue, so sorting it by munged name
	// is the dispatch order. When explicit per-stressor flags or --with
	// drove which stressors are active, `order` already reflects the
	// sequence they were encountered in and must be left alone: sorting
	// here would turn "--sequential 1 --with vm,fork" into fork-then-vm
	// dispatch instead of the vm-then-fork the user asked for.
	if !setAny && !withActive {
		sort.SliceStable(order, func(i, j int) bool {
			return stressor.Munge(order[i].Entry.Name) < stressor.Munge(order[j].Entry.Name)
		})
	}
	return order, nil
}

// samplingRand builds the --random source: --seed fixes it, --no-rand-seed
// leaves the deterministic default, otherwise the clock seeds it.
func samplingRand(opts Options) *rand.Rand {
	switch {
	case opts.HasSeed:
		return rand.New(rand.NewSource(opts.Seed))
	case opts.NoRandSeed:
		return rand.New(rand.NewSource(1))
	default:
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

// resolveN resolves a count argument: 0 -> runtime.NumCPU() (the logical
// CPUs this process may use, not the host's configured count), negative ->
// the number of CPUs in this process's affinity mask, positive -> verbatim
// subject to the hard ceiling.
func resolveN(n int32) int32 {
	switch {
	case n == 0:
		return int32(processorsConfigured())
	case n < 0:
		return int32(processorsOnline())
	default:
		if n > maxStressorInstances {
			return maxStressorInstances
		}
		return n
	}
}

func processorsConfigured() int {
	return runtime.NumCPU()
}

func processorsOnline() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return runtime.NumCPU()
	}
	return set.Count()
}
