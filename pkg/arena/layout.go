package arena

import "github.com/cuemby/hammer/pkg/stressor"

// Every type in this file is placed directly inside a memory-mapped,
// process-shared region. They must stay pointer-free: a Go pointer or
// string header is only meaningful inside the address space that allocated
// it, so none may appear here. Variable-length data (a metric's
// description) is carried as a fixed-size byte array instead, exactly the
// way the parallel ChecksumSlot table carries a fixed zero-padded struct
// rather than a pointer into the stats region.

// boolWord is a four-byte flag, read/written with sync/atomic so a worker's
// write and the orchestrator's post-reap read never tear.
type boolWord uint32

const (
	boolFalse boolWord = 0
	boolTrue  boolWord = 1
)

func toBoolWord(b bool) boolWord {
	if b {
		return boolTrue
	}
	return boolFalse
}

func (b boolWord) bool() bool { return b != boolFalse }

// spinlock is a process-shared mutex implemented as a CAS loop over a
// shared uint32 word, backing the three cross-cutting locks in SharedHead
// (perf, warn_once, net_port_map). See lock.go.
type spinlock uint32

// CounterInfo is the worker's live counter block inside its StatsSlot.
type CounterInfo struct {
	Counter      uint64
	CounterReady boolWord
	RunOK        boolWord
	ForceKilled  boolWord
	_            uint32 // pad to 8-byte alignment
}

// RawMetric is the shared-memory resident form of one auxiliary metric.
// DescLen bounds the valid prefix of Desc; CopyMetrics sets Value to -1 for
// an unused entry, and a slot CopyMetrics never filled keeps the zeroed 0.
type RawMetric struct {
	Desc    [32]byte
	DescLen uint8
	_       [7]byte
	Value   float64
}

// StatsSlot holds one live instance's statistics. Ownership is
// exclusive: the worker that owns index i writes only StatsSlot[i] (and the
// matching ChecksumSlot[i]); the orchestrator reads both only after reap.
type StatsSlot struct {
	PID         int32
	_           [4]byte
	CounterInfo CounterInfo

	Start         float64
	Duration      float64
	DurationTotal float64
	CounterTotal  uint64

	RusageUtime      float64
	RusageStime      float64
	RusageUtimeTotal float64
	RusageStimeTotal float64
	RusageMaxRSS     int64

	Sigalarmed boolWord
	Completed  boolWord
	Signalled  boolWord
	_          uint32

	Metrics [stressor.MaxAuxMetrics]RawMetric
}

// ChecksumData is the integrity-checked payload: the fields that must
// validate against the worker's live counter info, with the pad zeroed
// before hashing.
type ChecksumData struct {
	Counter uint64
	RunOK   boolWord
	_       [20]byte // zeroed pad, included in the hashed byte range
}

// ChecksumSlot lives in its own mapping so corruption of the stats region
// cannot silently corrupt the checksums meant to detect it.
type ChecksumSlot struct {
	Data ChecksumData
	Hash uint32
	_    uint32
}

// SharedHead holds the run-wide counters plus the three intra-process
// spinlocks guarding the shared-heap string dup, one-shot warning dedup,
// and port bookkeeping tools.
type SharedHead struct {
	Started uint64
	Exited  uint64
	Reaped  uint64
	Failed  uint64
	Alarmed uint64

	TimeStarted  float64
	CaughtSigint boolWord
	_            uint32

	WarnOnceLock   spinlock
	NetPortMapLock spinlock
	PerfLock       spinlock
}
