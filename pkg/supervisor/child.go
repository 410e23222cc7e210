package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cuemby/hammer/pkg/arena"
	"github.com/cuemby/hammer/pkg/log"
	"github.com/cuemby/hammer/pkg/stressor"
	"golang.org/x/sys/unix"
)

// ChildSpec is everything a re-exec'd worker process needs to run its
// instance, gathered from pkg/procexec's inherited environment and FDs.
type ChildSpec struct {
	Entry         *stressor.Entry
	SlotIndex     int
	InstanceIndex int32
	InstanceCount int32
	MaxOps        uint64
	Deadline      time.Time
	PID           int
}

// RunWorker is the worker-side body of one instance: claim the slot,
// stagger, arm the alarm, run the stressor, then seal stats and checksum.
// Registering the exit guard and actually exiting are the caller's job in
// cmd/hammer, since they are about process lifecycle rather than instance
// bookkeeping. RunWorker returns the ExitCode the caller should exit with.
func RunWorker(ar *arena.Arena, spec ChildSpec) stressor.ExitCode {
	slot := ar.Stats(spec.SlotIndex)
	checksum := ar.Checksum(spec.SlotIndex)

	*slot = arena.StatsSlot{}
	*checksum = arena.ChecksumSlot{}
	slot.PID = int32(spec.PID)

	applyChildProcessState()

	// stopped goes true on the worker's own alarm firing or on a stop
	// signal from the parent; alarmed only on the former. Both are written
	// from other goroutines (the timer callback, the signal watcher), so
	// Continue() loads them atomically.
	var stopped, alarmed atomic.Bool

	// Child side of signal routing: SIGALRM and the interactive stop
	// signals translate to stop-stressing; USR1/USR2/TTOU/TTIN/WINCH are
	// ignored.
	signal.Ignore(syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGTTOU, syscall.SIGTTIN, syscall.SIGWINCH)
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGALRM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		<-sigCh
		stopped.Store(true)
	}()
	defer signal.Stop(sigCh)

	// Stagger startup so instances do not stampede at once.
	time.Sleep(time.Duration(spec.InstanceIndex) * 10 * time.Millisecond)

	start := time.Now()
	slot.Start = float64(start.UnixNano()) / 1e9

	// Arm the worker's own alarm, unless the run is unbounded.
	if !spec.Deadline.IsZero() {
		t := time.AfterFunc(time.Until(spec.Deadline), func() {
			alarmed.Store(true)
			stopped.Store(true)
		})
		defer t.Stop()
	}

	noneAddr, roAddr, woAddr := ar.GuardAddrs()
	counter := uint64(0)
	metrics := stressor.NewMetricSet()

	args := &stressor.Args{
		Name:          stressor.Munge(spec.Entry.Name),
		InstanceIndex: spec.InstanceIndex,
		InstanceCount: spec.InstanceCount,
		PID:           spec.PID,
		PageSize:      unix.Getpagesize(),
		Deadline:      spec.Deadline,
		MaxOps:        spec.MaxOps,
		Guard:         stressor.GuardPages{PageNone: noneAddr, PageRO: roAddr, PageWO: woAddr},
		Counter:       &counter,
		Metrics:       metrics,
		Continue:      func() bool { return !stopped.Load() },
	}

	code := spec.Entry.Run(args)

	// Block further stop signals from racing the bookkeeping below: a
	// re-broadcast SIGALRM must not kill the worker mid-seal.
	signal.Ignore(syscall.SIGALRM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)

	duration := time.Since(start)
	slot.CounterInfo.Counter = counter
	slot.CounterInfo.SetCounterReady(true)
	slot.CounterTotal = counter
	slot.Duration = duration.Seconds()
	slot.DurationTotal = duration.Seconds()
	slot.SetSigalarmed(alarmed.Load())
	slot.SetCompleted(true)
	slot.CopyMetrics(metrics)
	captureRusage(slot)

	runOK := code == stressor.Success
	slot.CounterInfo.SetRunOK(runOK)
	arena.Seal(checksum, counter, runOK)

	// Exited (and Alarmed, if this instance's deadline fired) are bumped
	// here, in the worker's own pre-exit path — pkg/supervisor.Run (the
	// orchestrator side) owns Started/Reaped/Failed instead, since those
	// three only ever change around fork/wait.
	head := ar.Head()
	head.IncExited()
	if alarmed.Load() {
		head.IncAlarmed()
	}

	// A normal return whose counter was never published is promoted to
	// METRICS_UNTRUSTWORTHY, unless the parent force-killed this worker.
	if !slot.CounterInfo.IsCounterReady() && !slot.CounterInfo.IsForceKilled() {
		return stressor.MetricsUntrustworthy
	}
	// Finished cleanly, early, and short of its op target — worth a
	// warning, but the exit code stands.
	if code == stressor.Success && spec.MaxOps != 0 && counter < spec.MaxOps &&
		!spec.Deadline.IsZero() && time.Now().Before(spec.Deadline) {
		log.Warn(fmt.Sprintf("%s[%d] returned before reaching its op target or deadline", args.Name, spec.InstanceIndex))
	}
	return code
}

func applyChildProcessState() {
	// Best-effort: dumpable off, timer slack. Neither is fatal to the run
	// if unsupported on the host.
	_ = unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0)
	_ = unix.Prctl(unix.PR_SET_TIMERSLACK, 0, 0, 0, 0)
}
