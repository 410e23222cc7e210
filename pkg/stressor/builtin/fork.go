package builtin

import (
	"github.com/cuemby/hammer/pkg/procexec"
	"github.com/cuemby/hammer/pkg/stressor"
)

// forkEntry exercises process-table and scheduler churn by re-executing the
// hammer binary itself in a tight loop and waiting for it to exit, without
// shelling out to an external helper binary.
func forkEntry() stressor.Entry {
	return stressor.Entry{
		ID:         6,
		Name:       "fork",
		ClassMask:  stressor.ClassScheduler | stressor.ClassOS,
		VerifyMode: stressor.VerifyOptional,
		Run:        runFork,
	}
}

func runFork(args *stressor.Args) stressor.ExitCode {
	var failures float64
	for args.Continue() {
		if err := procexec.ForkProbe(); err != nil {
			failures++
		}
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	if args.Metrics != nil {
		args.Metrics.Set(0, "fork-failures", failures)
	}
	return stressor.Success
}
