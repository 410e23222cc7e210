package supervisor

import (
	"syscall"

	"github.com/cuemby/hammer/pkg/arena"
)

// captureRusage fills in a worker's own resource usage just before it
// reports back. Since each worker is its own process,
// RUSAGE_SELF already scopes to exactly this instance.
func captureRusage(slot *arena.StatsSlot) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return
	}
	slot.RusageUtime = float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6
	slot.RusageStime = float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
	slot.RusageUtimeTotal = slot.RusageUtime
	slot.RusageStimeTotal = slot.RusageStime
	slot.RusageMaxRSS = ru.Maxrss
}
