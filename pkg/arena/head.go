package arena

import (
	"sync/atomic"
	"unsafe"
)

// The five run-wide counters in SharedHead are written from both the
// orchestrator and every live worker (a worker bumps Exited/Alarmed before
// it returns; the orchestrator bumps Started after spawn and Reaped/Failed
// after wait()), so every access goes through sync/atomic rather than plain
// reads/writes.

func (h *SharedHead) IncStarted() { atomic.AddUint64(&h.Started, 1) }
func (h *SharedHead) IncExited()  { atomic.AddUint64(&h.Exited, 1) }
func (h *SharedHead) IncReaped()  { atomic.AddUint64(&h.Reaped, 1) }
func (h *SharedHead) IncFailed()  { atomic.AddUint64(&h.Failed, 1) }
func (h *SharedHead) IncAlarmed() { atomic.AddUint64(&h.Alarmed, 1) }

func (h *SharedHead) LoadStarted() uint64 { return atomic.LoadUint64(&h.Started) }
func (h *SharedHead) LoadExited() uint64  { return atomic.LoadUint64(&h.Exited) }
func (h *SharedHead) LoadReaped() uint64  { return atomic.LoadUint64(&h.Reaped) }
func (h *SharedHead) LoadFailed() uint64  { return atomic.LoadUint64(&h.Failed) }
func (h *SharedHead) LoadAlarmed() uint64 { return atomic.LoadUint64(&h.Alarmed) }

func (h *SharedHead) SetCaughtSigint() {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&h.CaughtSigint)), uint32(boolTrue))
}

func (h *SharedHead) IsCaughtSigint() bool {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&h.CaughtSigint))) == uint32(boolTrue)
}
