package builtin

import (
	"runtime"

	"github.com/cuemby/hammer/pkg/stressor"
	"golang.org/x/sys/unix"
)

// schedEntry forces voluntary context switches via sched_yield-equivalent
// calls, rotating its own niceness to perturb the scheduler's view of it.
func schedEntry() stressor.Entry {
	return stressor.Entry{
		ID:         5,
		Name:       "sched",
		ClassMask:  stressor.ClassScheduler,
		VerifyMode: stressor.VerifyOptional,
		Run:        runSched,
	}
}

func runSched(args *stressor.Args) stressor.ExitCode {
	base, err := unix.Getpriority(unix.PRIO_PROCESS, args.PID)
	if err != nil {
		base = 0
	}
	// Getpriority returns (20 - nice); undo the offset to get real niceness.
	base = 20 - base

	delta := 1
	for args.Continue() {
		runtime.Gosched()
		next := base + (delta % 3)
		_ = unix.Setpriority(unix.PRIO_PROCESS, args.PID, next)
		delta++
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	_ = unix.Setpriority(unix.PRIO_PROCESS, args.PID, base)
	return stressor.Success
}
