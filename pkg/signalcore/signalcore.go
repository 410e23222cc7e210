// Package signalcore routes host signals to the run's cooperative stop
// machinery and drives the kill-escalation state machine.
// The orchestrator is single-threaded outside of this package's own
// goroutine; every other package only ever reads the atomic flags this
// package writes.
package signalcore

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/cuemby/hammer/pkg/log"
)

// exitSignaled mirrors stressor.Signaled without importing pkg/stressor;
// the fatal-signal path must stay free of anything that could pull in
// allocation-heavy machinery.
const exitSignaled = 5

// Controller holds the run's three signal-driven booleans (continue,
// caught-sigint, wait) plus the kill-escalation retry counter. All are
// atomics: the Watch goroutine writes them, and Stop and KillSignal may also
// be called from other goroutines (the supervisor's abort path and its
// escalation loop).
type Controller struct {
	continueFlag atomic.Bool
	caughtSigint atomic.Bool
	waitFlag     atomic.Bool
	killRounds   atomic.Int32

	// exit is os.Exit outside of tests.
	exit func(int)

	sigCh  chan os.Signal
	stopCh chan struct{}

	// Broadcast is called with the signal to deliver to every live child
	// whenever SignalCore decides the run should stop (SIGINT/HUP/ALRM from
	// outside, or a fatal signal to the orchestrator itself). cmd/hammer
	// installs this before starting Watch.
	Broadcast func(sig syscall.Signal)
}

// New returns a Controller in the run's initial state: continue and wait
// both true, nothing caught yet.
func New() *Controller {
	c := &Controller{
		exit:   os.Exit,
		sigCh:  make(chan os.Signal, 8),
		stopCh: make(chan struct{}),
	}
	c.continueFlag.Store(true)
	c.waitFlag.Store(true)
	return c
}

// Continue reports whether workers and the wait loop should keep running.
// Workers poll this (via stressor.Args.Continue); the wait loop treats a
// false value as "stop waiting further and reap what's there".
func (c *Controller) Continue() bool { return c.continueFlag.Load() }

// Stop forces Continue() to false, e.g. once --abort triggers after a
// failed instance.
func (c *Controller) Stop() { c.continueFlag.Store(false) }

// WaitFlag reports whether wait_stressors should keep blocking in waitpid.
func (c *Controller) WaitFlag() bool { return c.waitFlag.Load() }

// CaughtSigint reports whether SIGINT or SIGHUP has been observed.
func (c *Controller) CaughtSigint() bool { return c.caughtSigint.Load() }

// Watch installs the orchestrator's signal handlers and processes them
// until Close is called. It is meant to run in its own goroutine.
func (c *Controller) Watch() {
	signal.Notify(c.sigCh,
		syscall.SIGINT, syscall.SIGHUP, syscall.SIGALRM, syscall.SIGUSR2,
		syscall.SIGILL, syscall.SIGSEGV, syscall.SIGFPE, syscall.SIGBUS, syscall.SIGABRT,
		syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGTTOU, syscall.SIGTTIN, syscall.SIGWINCH,
	)
	for {
		select {
		case sig := <-c.sigCh:
			c.handle(sig)
		case <-c.stopCh:
			signal.Stop(c.sigCh)
			return
		}
	}
}

// Close stops Watch's goroutine. Safe to call once, after the run
// finishes or the orchestrator is tearing down.
func (c *Controller) Close() { close(c.stopCh) }

func (c *Controller) handle(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	switch s {
	case syscall.SIGUSR1, syscall.SIGTTOU, syscall.SIGTTIN, syscall.SIGWINCH:
		// Ignored (USR2 is also ignored in-child, but the orchestrator
		// itself treats USR2 as the stats dump below).
		return

	case syscall.SIGINT, syscall.SIGHUP:
		c.caughtSigint.Store(true)
		c.stopAndBroadcast(syscall.SIGALRM)

	case syscall.SIGALRM:
		// Go's os/signal strips siginfo_t, so there is no telling an
		// externally sent SIGALRM (SI_USER) from a self-inflicted one; the
		// "external request" branch is always taken here.
		c.stopAndBroadcast(syscall.SIGALRM)

	case syscall.SIGUSR2:
		dumpLoad()

	case syscall.SIGILL, syscall.SIGSEGV, syscall.SIGFPE, syscall.SIGBUS, syscall.SIGABRT:
		// Write a fixed diagnostic directly to fd 2, using only primitives
		// safe in a signal handler, SIGALRM every child, and exit with the
		// SIGNALED code without unwinding. Go's handler already runs on a
		// dedicated goroutine rather than a true signal context, so the
		// async-signal-safety constraint relaxes to "no allocation-heavy
		// formatting".
		syscall.Write(2, []byte("hammer: fatal signal "+s.String()+" in orchestrator\n"))
		c.stopAndBroadcast(syscall.SIGALRM)
		c.exit(int(exitSignaled))

	default:
		c.stopAndBroadcast(syscall.SIGALRM)
	}
}

func (c *Controller) stopAndBroadcast(sig syscall.Signal) {
	c.continueFlag.Store(false)
	c.waitFlag.Store(false)
	if c.Broadcast != nil {
		c.Broadcast(c.KillSignal(sig))
	}
}

// KillSignal implements kill escalation: a run-wide retry counter that
// forces SIGKILL after 5 invocations regardless of the signal the caller
// asked for.
func (c *Controller) KillSignal(requested syscall.Signal) syscall.Signal {
	n := c.killRounds.Add(1)
	if n > 5 {
		return syscall.SIGKILL
	}
	return requested
}

func dumpLoad() {
	var si syscall.Sysinfo_t
	if err := syscall.Sysinfo(&si); err != nil {
		log.Errorf("sigusr2: sysinfo", err)
		return
	}
	const scale = 1 << 16
	fmt.Fprintf(os.Stdout, "load average (1,5,15): %.2f %.2f %.2f, free %d bytes\n",
		float64(si.Loads[0])/scale, float64(si.Loads[1])/scale, float64(si.Loads[2])/scale,
		uint64(si.Freeram)*uint64(si.Unit))
}
