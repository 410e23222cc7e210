// Package arena implements the process-shared memory region: a table of
// StatsSlot/ChecksumSlot pairs plus three guard pages, all reachable from
// both the orchestrator and every worker.
//
// Go has no fork(2) that keeps the runtime alive in the child, so workers
// are re-exec'd (pkg/procexec) rather than forked; MAP_ANON|MAP_SHARED
// memory does not survive exec, so the arena instead backs its mappings
// with memfd_create(2) file descriptors passed across exec via
// exec.Cmd.ExtraFiles and re-mmap'd by the child at start of day.
package arena

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	statsSlotSize    = int(unsafe.Sizeof(StatsSlot{}))
	checksumSlotSize = int(unsafe.Sizeof(ChecksumSlot{}))
	headSize         = int(unsafe.Sizeof(SharedHead{}))
)

// Arena is the live, mapped view of the shared regions. All fields are
// valid in both the orchestrator and every worker process once Open/Create
// has returned.
type Arena struct {
	Count int

	statsFD, checksumFD, guardFD int

	statsMap    []byte
	checksumMap []byte

	guardNone []byte
	guardRO   []byte
	guardWO   []byte
}

func roundUp(n, page int) int {
	if n%page == 0 {
		return n
	}
	return (n/page + 1) * page
}

// regionSizes computes the two mapping lengths: the stats region carries
// two extra pages (the last one re-protected as a guard), the checksum
// region one.
func regionSizes(count, page int) (statsSize, checksumSize int) {
	statsSize = roundUp(headSize+count*statsSlotSize+2*page, page)
	checksumSize = roundUp(count*checksumSlotSize+page, page)
	return statsSize, checksumSize
}

// Create allocates the arena for a fresh run: count StatsSlot/ChecksumSlot
// pairs, zeroed, plus the three guard pages. Called once, in the
// orchestrator, before any instance is forked. count 0 is legal (a run
// where everything was excluded still renders a report) and maps the
// head-plus-guard minimum.
func Create(count int) (*Arena, error) {
	page := unix.Getpagesize()

	statsSize, checksumSize := regionSizes(count, page)
	guardSize := 3 * page

	statsFD, err := memfd("hammer-stats", statsSize)
	if err != nil {
		return nil, fmt.Errorf("allocate stats arena: %w", err)
	}
	checksumFD, err := memfd("hammer-checksum", checksumSize)
	if err != nil {
		unix.Close(statsFD)
		return nil, fmt.Errorf("allocate checksum arena: %w", err)
	}
	guardFD, err := memfd("hammer-guard", guardSize)
	if err != nil {
		unix.Close(statsFD)
		unix.Close(checksumFD)
		return nil, fmt.Errorf("allocate guard pages: %w", err)
	}

	a := &Arena{Count: count, statsFD: statsFD, checksumFD: checksumFD, guardFD: guardFD}
	if err := a.mapAll(statsSize, checksumSize); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Open re-maps an arena inherited across exec by file descriptor number
// (pkg/procexec places them at fixed, known indices via ExtraFiles). Called
// once per worker process, before its run function is invoked.
func Open(statsFD, checksumFD, guardFD, count int) (*Arena, error) {
	page := unix.Getpagesize()
	statsSize, checksumSize := regionSizes(count, page)

	a := &Arena{Count: count, statsFD: statsFD, checksumFD: checksumFD, guardFD: guardFD}
	if err := a.mapAll(statsSize, checksumSize); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Arena) mapAll(statsSize, checksumSize int) error {
	var err error
	a.statsMap, err = unix.Mmap(a.statsFD, 0, statsSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap stats arena: %w", err)
	}
	a.checksumMap, err = unix.Mmap(a.checksumFD, 0, checksumSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap checksum arena: %w", err)
	}

	page := unix.Getpagesize()
	// The last page of the stats region is a guard: any worker write to it
	// is a design violation. PROT_NONE preferred, remap RO as
	// the first fallback; if neither protection takes, the region simply
	// keeps its trailing page writable. The mapping length is not shortened
	// in that case, so nothing records that the guard is missing.
	tail := a.statsMap[statsSize-page:]
	if err := unix.Mprotect(tail, unix.PROT_NONE); err != nil {
		_ = unix.Mprotect(tail, unix.PROT_READ)
	}
	// Three independent mappings of the same guard fd, each with a fixed
	// protection. page_wo is deliberately mapped PROT_READ, not write-only:
	// the mislabel is long-standing and kept as is.
	a.guardNone, err = unix.Mmap(a.guardFD, 0, page, unix.PROT_NONE, unix.MAP_SHARED)
	if err != nil {
		// PROT_NONE mappings fail closed on some sandboxes; fall back to
		// PROT_READ so the region still exists for workers to probe.
		a.guardNone, err = unix.Mmap(a.guardFD, 0, page, unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return fmt.Errorf("mmap guard page (none): %w", err)
		}
	}
	a.guardRO, err = unix.Mmap(a.guardFD, int64(page), page, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap guard page (ro): %w", err)
	}
	a.guardWO, err = unix.Mmap(a.guardFD, int64(2*page), page, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap guard page (wo): %w", err)
	}
	return nil
}

func memfd(name string, size int) (int, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return 0, err
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return 0, err
	}
	return fd, nil
}

// Head returns the shared run-wide counters and locks.
func (a *Arena) Head() *SharedHead {
	return (*SharedHead)(unsafe.Pointer(&a.statsMap[0]))
}

// Stats returns a pointer to StatsSlot i. i must be in [0, Count).
func (a *Arena) Stats(i int) *StatsSlot {
	off := headSize + i*statsSlotSize
	return (*StatsSlot)(unsafe.Pointer(&a.statsMap[off]))
}

// Checksum returns a pointer to ChecksumSlot i. i must be in [0, Count).
func (a *Arena) Checksum(i int) *ChecksumSlot {
	off := i * checksumSlotSize
	return (*ChecksumSlot)(unsafe.Pointer(&a.checksumMap[off]))
}

// GuardAddrs returns this process's own mapped addresses of the three guard
// pages, suitable for stressor.Args.Guard. Addresses differ across
// processes (each mmap's the shared fd independently); what matters is the
// protection, not the numeric value.
func (a *Arena) GuardAddrs() (none, ro, wo uintptr) {
	return uintptr(unsafe.Pointer(&a.guardNone[0])),
		uintptr(unsafe.Pointer(&a.guardRO[0])),
		uintptr(unsafe.Pointer(&a.guardWO[0]))
}

// FDs returns the three backing file descriptors, for handing to
// pkg/procexec as a child's ExtraFiles.
func (a *Arena) FDs() (stats, checksum, guard int) {
	return a.statsFD, a.checksumFD, a.guardFD
}

// Close unmaps and closes every region, in reverse order of acquisition.
func (a *Arena) Close() {
	if a.guardWO != nil {
		unix.Munmap(a.guardWO)
	}
	if a.guardRO != nil {
		unix.Munmap(a.guardRO)
	}
	if a.guardNone != nil {
		unix.Munmap(a.guardNone)
	}
	if a.checksumMap != nil {
		unix.Munmap(a.checksumMap)
	}
	if a.statsMap != nil {
		unix.Munmap(a.statsMap)
	}
	if a.guardFD != 0 {
		unix.Close(a.guardFD)
	}
	if a.checksumFD != 0 {
		unix.Close(a.checksumFD)
	}
	if a.statsFD != 0 {
		unix.Close(a.statsFD)
	}
}
