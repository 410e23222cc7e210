package builtin

import "github.com/cuemby/hammer/pkg/stressor"

// noopEntry is the minimal stressor: it does nothing but bump its counter
// and respect the deadline, so its exit status is deterministic. Useful as
// a known-good control in smoke runs.
func noopEntry() stressor.Entry {
	return stressor.Entry{
		ID:         0,
		Name:       "noop",
		ClassMask:  stressor.ClassOS,
		VerifyMode: stressor.VerifyAlways,
		Run:        runNoop,
	}
}

func runNoop(args *stressor.Args) stressor.ExitCode {
	for args.Continue() {
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	return stressor.Success
}
