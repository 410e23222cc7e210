// Package regime drives pkg/supervisor.Run according to the three
// top-level schedules: parallel, sequential and permutation.
package regime

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/hammer/pkg/arena"
	"github.com/cuemby/hammer/pkg/log"
	"github.com/cuemby/hammer/pkg/selection"
	"github.com/cuemby/hammer/pkg/signalcore"
	"github.com/cuemby/hammer/pkg/supervisor"
)

// maxPermuteStressors clamps the permutation regime's stressor set; 16
// stressors already mean 2^16-1 subset runs.
const maxPermuteStressors = 16

// plansFor expands a selection.Instance list into one supervisor.Plan per
// live instance slot, skipping anything tagged ignored.
func plansFor(instances []*selection.Instance, slotBase *int, timeout time.Duration) []supervisor.Plan {
	var plans []supervisor.Plan
	// timeout 0 means unbounded, carried as the zero time so the worker
	// knows not to arm its alarm.
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for _, inst := range instances {
		if inst.IgnoreRun != selection.NotIgnored || inst.IgnorePermute {
			continue
		}
		for i := int32(0); i < inst.NumInstances; i++ {
			plans = append(plans, supervisor.Plan{
				Instance:  inst,
				SlotIndex: *slotBase,
				Deadline:  deadline,
				MaxOps:    inst.BogoOpsTarget,
			})
			*slotBase++
		}
	}
	return plans
}

// Parallel forks every active instance across every active stressor at
// once, then waits for all of them.
func Parallel(ctx context.Context, instances []*selection.Instance, ar *arena.Arena, ctrl *signalcore.Controller, timeout time.Duration, opts supervisor.RunOpts) supervisor.RunSummary {
	slot := 0
	plans := plansFor(instances, &slot, timeout)
	return supervisor.Run(ctx, plans, ar, ctrl, opts)
}

// Sequential runs each stressor to completion, one at a time, in selection
// order, handing supervisor.Run a single-stressor list per round.
func Sequential(ctx context.Context, instances []*selection.Instance, ar *arena.Arena, ctrl *signalcore.Controller, timeout time.Duration, opts supervisor.RunOpts) []supervisor.RunSummary {
	var summaries []supervisor.RunSummary
	slot := 0
	for _, inst := range instances {
		if inst.IgnoreRun != selection.NotIgnored {
			continue
		}
		plans := plansFor([]*selection.Instance{inst}, &slot, timeout)
		if len(plans) == 0 {
			continue
		}
		summaries = append(summaries, supervisor.Run(ctx, plans, ar, ctrl, opts))
		if !ctrl.Continue() {
			break
		}
	}
	return summaries
}

// Permute numbers the first min(#active, 16) stressors and drives a
// parallel run for every non-empty subset, i = 1..2^k-1, masking each
// stressor's permute flag by its bit, reporting completion percentage as
// it goes.
func Permute(ctx context.Context, instances []*selection.Instance, ar *arena.Arena, ctrl *signalcore.Controller, timeout time.Duration, opts supervisor.RunOpts) []supervisor.RunSummary {
	var active []*selection.Instance
	for _, inst := range instances {
		if inst.IgnoreRun == selection.NotIgnored {
			active = append(active, inst)
		}
	}
	k := len(active)
	if k > maxPermuteStressors {
		log.Warn(fmt.Sprintf("permute: clamping %d enabled stressors to first %d", k, maxPermuteStressors))
		k = maxPermuteStressors
		active = active[:k]
	}
	if k == 0 {
		return nil
	}

	total := (1 << k) - 1
	var summaries []supervisor.RunSummary
	for i := 1; i <= total; i++ {
		for j, inst := range active {
			inst.IgnorePermute = i&(1<<j) == 0
		}
		// Each round's children are forked, waited on and reaped before the
		// next round starts (supervisor.Run is synchronous), so slot indices
		// are free to reuse round to round; the arena is sized for one
		// round's worth of live instances, not the cumulative total across
		// every subset.
		slot := 0
		plans := plansFor(active, &slot, timeout)
		if len(plans) > 0 {
			summaries = append(summaries, supervisor.Run(ctx, plans, ar, ctrl, opts))
		}
		pct := float64(i) / float64(total) * 100
		log.Info(fmt.Sprintf("permute: %.2f%% complete", pct))
		if !ctrl.Continue() {
			break
		}
	}
	for _, inst := range active {
		inst.IgnorePermute = false
	}
	return summaries
}
