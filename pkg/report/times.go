package report

import (
	"syscall"
	"time"
)

// BuildTimes fills in the YAML schema's `times:` block: wall-clock run
// time, aggregate user/system time across every stressor's rows, and the
// host's load average at report time, read with the same Sysinfo call
// pkg/signalcore's SIGUSR2 handler uses.
func BuildTimes(wallClock time.Duration, numCPU int, rows []MetricRow) Times {
	var userSum, sysSum float64
	for _, r := range rows {
		userSum += r.UserTime
		sysSum += r.SystemTime
	}
	total := userSum + sysSum
	runSecs := wallClock.Seconds()

	t := Times{
		RunTime:          runSecs,
		AvailableCPUTime: runSecs * float64(numCPU),
		UserTime:         userSum,
		SystemTime:       sysSum,
		TotalTime:        total,
	}
	if runSecs > 0 {
		t.UserTimePercent = userSum / runSecs * 100
		t.SystemTimePercent = sysSum / runSecs * 100
		t.TotalTimePercent = total / runSecs * 100
	}
	t.LoadAverage1Minute, t.LoadAverage5Minute, t.LoadAverage15Minute = loadAverage()
	return t
}

func loadAverage() (one, five, fifteen float64) {
	var si syscall.Sysinfo_t
	if err := syscall.Sysinfo(&si); err != nil {
		return 0, 0, 0
	}
	const scale = 1 << 16
	return float64(si.Loads[0]) / scale, float64(si.Loads[1]) / scale, float64(si.Loads[2]) / scale
}
