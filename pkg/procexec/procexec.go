// Package procexec is hammer's substitute for fork(2). Go processes cannot
// fork and keep the runtime alive in the child, so each worker instance is
// instead launched by re-executing the orchestrator's own binary with a
// hidden environment variable selecting the worker entry point. The shared
// arena crosses the exec boundary as inherited file descriptors rather
// than as inherited MAP_ANON memory.
package procexec

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Environment variables the parent sets and the re-exec'd child reads
// before cobra's normal command tree is consulted (cmd/hammer's main()).
const (
	EnvWorker        = "HAMMER_WORKER"         // "<stressor-name>:<instance-index>"
	EnvInstanceCount = "HAMMER_INSTANCE_COUNT" // decimal, this stressor's own instance count
	EnvArenaCount    = "HAMMER_ARENA_COUNT"    // decimal, total slots across the whole run
	EnvMaxOps        = "HAMMER_MAX_OPS"        // decimal, 0 = unbounded
	EnvDeadline      = "HAMMER_DEADLINE"       // unix nanoseconds
	EnvForkProbe     = "HAMMER_FORK_PROBE"     // presence-only; see ForkProbe
)

// File descriptor numbers the child finds its inherited arena mappings at.
// exec.Cmd.ExtraFiles is appended after stdin/stdout/stderr, so index 0 of
// ExtraFiles lands at fd 3 in the child, and so on.
const (
	StatsFD    = 3
	ChecksumFD = 4
	GuardFD    = 5
)

// WorkerSpec carries everything the parent needs to launch one instance.
type WorkerSpec struct {
	StressorName  string
	InstanceIndex int32
	InstanceCount int32
	ArenaCount    int32
	MaxOps        uint64
	Deadline      time.Time

	StatsFD, ChecksumFD, GuardFD int
}

// Spawn re-execs the current binary into worker mode for one instance. The
// returned *exec.Cmd has already been Start()ed; the caller (pkg/supervisor)
// owns waiting on it.
func Spawn(spec WorkerSpec) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve own executable: %w", err)
	}

	// The zero deadline (unbounded run) crosses exec as a literal 0, not as
	// time.Time{}'s UnixNano, which is a nonsense sentinel.
	var deadlineNanos int64
	if !spec.Deadline.IsZero() {
		deadlineNanos = spec.Deadline.UnixNano()
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s:%d", EnvWorker, spec.StressorName, spec.InstanceIndex),
		fmt.Sprintf("%s=%d", EnvInstanceCount, spec.InstanceCount),
		fmt.Sprintf("%s=%d", EnvArenaCount, spec.ArenaCount),
		fmt.Sprintf("%s=%d", EnvMaxOps, spec.MaxOps),
		fmt.Sprintf("%s=%d", EnvDeadline, deadlineNanos),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{
		os.NewFile(uintptr(spec.StatsFD), "hammer-stats"),
		os.NewFile(uintptr(spec.ChecksumFD), "hammer-checksum"),
		os.NewFile(uintptr(spec.GuardFD), "hammer-guard"),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start instance %s[%d]: %w", spec.StressorName, spec.InstanceIndex, err)
	}
	return cmd, nil
}

// IsWorker reports whether the current process was re-exec'd to run a
// single stressor instance, and if so which one.
func IsWorker() (name string, index int32, ok bool) {
	v, present := os.LookupEnv(EnvWorker)
	if !present {
		return "", 0, false
	}
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	i, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return parts[0], int32(i), true
}

// WorkerParams reads the remaining worker-mode environment the parent set
// in Spawn.
func WorkerParams() (instanceCount, arenaCount int32, maxOps uint64, deadline time.Time, err error) {
	ic, err := strconv.ParseInt(os.Getenv(EnvInstanceCount), 10, 32)
	if err != nil {
		return 0, 0, 0, time.Time{}, fmt.Errorf("parse %s: %w", EnvInstanceCount, err)
	}
	ac, err := strconv.ParseInt(os.Getenv(EnvArenaCount), 10, 32)
	if err != nil {
		return 0, 0, 0, time.Time{}, fmt.Errorf("parse %s: %w", EnvArenaCount, err)
	}
	mo, err := strconv.ParseUint(os.Getenv(EnvMaxOps), 10, 64)
	if err != nil {
		return 0, 0, 0, time.Time{}, fmt.Errorf("parse %s: %w", EnvMaxOps, err)
	}
	dl, err := strconv.ParseInt(os.Getenv(EnvDeadline), 10, 64)
	if err != nil {
		return 0, 0, 0, time.Time{}, fmt.Errorf("parse %s: %w", EnvDeadline, err)
	}
	if dl != 0 {
		deadline = time.Unix(0, dl)
	}
	return int32(ic), int32(ac), mo, deadline, nil
}

// ForkProbe re-execs the current binary with EnvForkProbe set and waits for
// it to exit; the fork stressor (pkg/stressor/builtin) uses this to
// generate real process churn without shelling out to an external binary.
// main() checks for EnvForkProbe before any other dispatch and exits 0
// immediately.
func ForkProbe() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), EnvForkProbe+"=1")
	return cmd.Run()
}

// IsForkProbe reports whether the current process was re-exec'd purely to
// be waited on and exit, for the fork stressor.
func IsForkProbe() bool {
	return os.Getenv(EnvForkProbe) != ""
}
