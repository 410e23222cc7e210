// Package supervisor launches and reaps worker instances, and classifies
// their exit into status buckets and abort flags. It is the
// orchestrator-side half of the fork/wait lifecycle; the child-side half
// (the steps a worker itself runs before invoking its stressor.RunFunc and
// after it returns) lives in child.go and is driven from cmd/hammer's
// worker-mode entry point, since that is where the re-exec'd process
// actually starts executing.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"syscall"
	"time"

	"github.com/cuemby/hammer/pkg/arena"
	"github.com/cuemby/hammer/pkg/log"
	"github.com/cuemby/hammer/pkg/metrics"
	"github.com/cuemby/hammer/pkg/procexec"
	"github.com/cuemby/hammer/pkg/selection"
	"github.com/cuemby/hammer/pkg/signalcore"
	"github.com/cuemby/hammer/pkg/stressor"
	"golang.org/x/sys/unix"
)

// spawnRetries bounds the fork-EAGAIN retry loop.
const spawnRetries = 5

// Plan is one instance to launch: which stressor, which slot in the arena,
// and its individual deadline/op target.
type Plan struct {
	Instance  *selection.Instance
	SlotIndex int
	Deadline  time.Time
	MaxOps    uint64
}

// RunOpts selects the supervisor behaviors the CLI toggles per run.
type RunOpts struct {
	// AbortOnFailure stops unforked instances as soon as any instance's
	// classification says abort.
	AbortOnFailure bool
	// Aggressive re-pins each live child to a random CPU from the
	// parent's affinity mask, over and over, while waiting.
	Aggressive bool
}

// Result is the per-instance outcome the caller (pkg/regime, cmd/hammer)
// needs after reap.
type Result struct {
	Plan     Plan
	ExitCode stressor.ExitCode
	Bucket   string // "passed" | "skipped" | "failed" | "badmetrics" | ""
	Abort    bool
}

// RunSummary is Run's aggregate verdict: wall-clock duration, the three
// success flags, and the per-instance results behind them.
type RunSummary struct {
	Duration        time.Duration
	Success         bool
	ResourceSuccess bool
	MetricsSuccess  bool
	Results         []Result
}

// running pairs a live child process with the plan that launched it.
type running struct {
	cmd  *os.Process
	plan Plan
}

// Run forks (re-execs) every plan, installs each child pid into its arena
// slot, then waits for all of them, applying the exit classification table.
func Run(ctx context.Context, plans []Plan, ar *arena.Arena, ctrl *signalcore.Controller, opts RunOpts) RunSummary {
	start := time.Now()
	head := ar.Head()

	var live []running

	statsFD, checksumFD, guardFD := ar.FDs()

	for i, p := range plans {
		if !ctrl.Continue() {
			log.Info(fmt.Sprintf("aborting before launch of %s, %d instance(s) unforked", p.Instance.Entry.Name, len(plans)-i))
			break
		}

		slot := ar.Stats(p.SlotIndex)
		cmd, err := spawnWithRetry(procexec.WorkerSpec{
			StressorName:  stressor.Munge(p.Instance.Entry.Name),
			InstanceIndex: int32(p.SlotIndex),
			InstanceCount: p.Instance.NumInstances,
			ArenaCount:    int32(ar.Count),
			MaxOps:        p.MaxOps,
			Deadline:      p.Deadline,
			StatsFD:       statsFD,
			ChecksumFD:    checksumFD,
			GuardFD:       guardFD,
		})
		if err != nil {
			// On a non-transient spawn error, kill what is already live and
			// fall through to the wait loop.
			log.Error(fmt.Sprintf("spawn %s failed: %v", p.Instance.Entry.Name, err))
			head.IncFailed()
			markSignalled(ar, live)
			broadcast(live, syscall.SIGALRM)
			break
		}
		slot.PID = int32(cmd.Pid)
		head.IncStarted()
		metrics.InstancesStarted.Inc()
		live = append(live, running{cmd: cmd, plan: p})
	}

	waitDone := make(chan struct{})
	go escalate(ar, ctrl, live, runDeadline(plans), waitDone)
	if opts.Aggressive {
		go repinAggressively(live, waitDone)
	}

	var results []Result
	for _, r := range live {
		ps, err := r.cmd.Wait()
		head.IncReaped()
		metrics.InstancesReaped.Inc()
		ar.Stats(r.plan.SlotIndex).PID = 0

		res := Result{Plan: r.plan}
		if err != nil && ps == nil {
			res.ExitCode = stressor.Failure
			res.Bucket = "failed"
			res.Abort = true
		} else {
			res.ExitCode, res.Bucket, res.Abort = classify(ps)
		}
		if res.Bucket == "failed" {
			head.IncFailed()
			metrics.InstancesFailed.Inc()
		}
		results = append(results, res)

		if res.Abort && opts.AbortOnFailure {
			ctrl.Stop()
			markSignalled(ar, live)
			broadcast(live, syscall.SIGALRM)
		}
	}
	close(waitDone)

	return summarize(results, time.Since(start))
}

// spawnWithRetry retries transient fork failures (EAGAIN) with a short
// sleep between attempts.
func spawnWithRetry(spec procexec.WorkerSpec) (*os.Process, error) {
	for attempt := 0; ; attempt++ {
		cmd, err := procexec.Spawn(spec)
		if err == nil {
			return cmd.Process, nil
		}
		if !errors.Is(err, syscall.EAGAIN) || attempt >= spawnRetries {
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// runDeadline returns the run's shared deadline, or the zero time for an
// unbounded run. Every plan in one Run call carries the same deadline
// (plansFor stamps them together).
func runDeadline(plans []Plan) time.Time {
	for _, p := range plans {
		if !p.Deadline.IsZero() {
			return p.Deadline
		}
	}
	return time.Time{}
}

// escalate is the parent-side timeout enforcement: once the run deadline
// has passed with children still live, re-broadcast a stop every second
// through the escalation counter, which flips the signal to SIGKILL after
// 5 rounds.
func escalate(ar *arena.Arena, ctrl *signalcore.Controller, live []running, deadline time.Time, done <-chan struct{}) {
	if deadline.IsZero() {
		return
	}
	grace := time.Until(deadline) + time.Second
	select {
	case <-done:
		return
	case <-time.After(grace):
	}
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-tick.C:
			markSignalled(ar, live)
			broadcast(live, ctrl.KillSignal(syscall.SIGALRM))
		}
	}
}

// repinAggressively implements wait_aggressive: every few milliseconds,
// re-pin each live worker to a CPU drawn at random from the parent's own
// affinity mask, keeping the scheduler from letting workers settle.
func repinAggressively(live []running, done <-chan struct{}) {
	var parentSet unix.CPUSet
	if err := unix.SchedGetaffinity(0, &parentSet); err != nil {
		return
	}
	var cpus []int
	for cpu := 0; cpu < len(parentSet)*64; cpu++ {
		if parentSet.IsSet(cpu) {
			cpus = append(cpus, cpu)
		}
	}
	if len(cpus) == 0 {
		return
	}

	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-tick.C:
			for _, r := range live {
				var set unix.CPUSet
				set.Set(cpus[rand.Intn(len(cpus))])
				_ = unix.SchedSetaffinity(r.cmd.Pid, &set)
			}
		}
	}
}

// summarize folds per-instance results into the run's three-flag verdict.
func summarize(results []Result, duration time.Duration) RunSummary {
	summary := RunSummary{Duration: duration, Success: true, ResourceSuccess: true, MetricsSuccess: true, Results: results}
	for _, res := range results {
		switch res.ExitCode {
		case stressor.NoResource:
			summary.ResourceSuccess = false
		case stressor.MetricsUntrustworthy:
			summary.MetricsSuccess = false
		case stressor.Failure:
			summary.Success = false
		case stressor.BySysExit:
			// Counted in the failed bucket and aborts the run, but does not
			// clear the run-level success flag.
		default:
			if res.Bucket == "failed" {
				summary.Success = false
			}
		}
	}
	return summary
}

func broadcast(live []running, sig syscall.Signal) {
	for _, r := range live {
		_ = r.cmd.Signal(sig)
	}
}

// markSignalled flips the per-instance signalled flag on every slot still
// running at abort time, before the SIGALRM above reaches it. Reaped slots
// (PID already zeroed) were never signalled and stay untouched.
func markSignalled(ar *arena.Arena, live []running) {
	for _, r := range live {
		slot := ar.Stats(r.plan.SlotIndex)
		if slot.PID != 0 {
			slot.SetSignalled(true)
		}
	}
}

// classify maps a reaped process's exit status to its bucket and abort flag.
func classify(ps *os.ProcessState) (stressor.ExitCode, string, bool) {
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok {
		if ps.Success() {
			return stressor.Success, "passed", false
		}
		return stressor.Failure, "failed", true
	}

	if ws.Signaled() {
		if ws.Signal() == syscall.SIGALRM {
			// Timed out cooperatively: not a failure.
			return stressor.Signaled, "passed", true
		}
		// OOM-kill (or an inconclusive SIGKILL) is logged, not a failure.
		if ws.Signal() == syscall.SIGKILL {
			log.Warn("instance killed by SIGKILL (possible OOM kill)")
			return stressor.Signaled, "", true
		}
		return stressor.Signaled, "failed", true
	}

	code := stressor.ExitCode(ws.ExitStatus())
	switch code {
	case stressor.Success:
		return code, "passed", false
	case stressor.NoResource, stressor.NotImplemented:
		return code, "skipped", true
	case stressor.BySysExit:
		return code, "failed", true
	case stressor.MetricsUntrustworthy:
		return code, "badmetrics", false
	default:
		return stressor.Failure, "failed", true
	}
}
