package arena

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

func spinlockPtr(s *spinlock) *uint32 {
	return (*uint32)(unsafe.Pointer(s))
}

// Lock spins (yielding to the scheduler between attempts) until it acquires
// the shared word. Critical sections behind this are expected to be O(μs),
// so a spinlock is cheaper than a syscall-based futex wait for the
// contention levels hammer sees.
func (s *spinlock) Lock() {
	p := spinlockPtr(s)
	for !atomic.CompareAndSwapUint32(p, 0, 1) {
		runtime.Gosched()
	}
}

// Unlock releases the lock. Calling Unlock without holding the lock is a
// programming error, same as with sync.Mutex.
func (s *spinlock) Unlock() {
	atomic.StoreUint32(spinlockPtr(s), 0)
}
