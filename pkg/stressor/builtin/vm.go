package builtin

import (
	"fmt"

	"github.com/cuemby/hammer/pkg/stressor"
	"golang.org/x/sys/unix"
)

// vmEntry repeatedly maps and touches (then unmaps) anonymous pages,
// exercising the same page-fault/TLB pressure the host's guard pages in
// pkg/arena are meant to model, just on worker-private memory.
func vmEntry() stressor.Entry {
	return stressor.Entry{
		ID:         2,
		Name:       "vm",
		ClassMask:  stressor.ClassVM | stressor.ClassMemory,
		VerifyMode: stressor.VerifyOptional,
		Run:        runVM,
		Hooks: stressor.Hooks{
			Supported: supportedVM,
		},
	}
}

const vmMapSize = 4 << 20 // 4MiB per iteration

func supportedVM(string) error {
	b, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return fmt.Errorf("anonymous mmap unavailable: %w", err)
	}
	_ = unix.Munmap(b)
	return nil
}

func runVM(args *stressor.Args) stressor.ExitCode {
	var touched uint64
	for args.Continue() {
		b, err := unix.Mmap(-1, 0, vmMapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
		if err != nil {
			return stressor.NoResource
		}
		for off := 0; off < len(b); off += unix.Getpagesize() {
			b[off] = byte(*args.Counter)
			touched++
		}
		if err := unix.Munmap(b); err != nil {
			return stressor.Failure
		}
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	args.Metrics.Set(0, "pages-touched", float64(touched))
	return stressor.Success
}
