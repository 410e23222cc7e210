package arena

import "unsafe"

// Jenkins computes Bob Jenkins' one-at-a-time hash over the raw bytes of a
// ChecksumData block, padding included (and zeroed). It is integrity
// tooling, not a cryptographic hash.
func Jenkins(d *ChecksumData) uint32 {
	b := (*[unsafe.Sizeof(ChecksumData{})]byte)(unsafe.Pointer(d))[:]
	var h uint32
	for _, c := range b {
		h += uint32(c)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

// Seal stamps a ChecksumSlot from the worker's live counter/run_ok, just
// before worker exit.
func Seal(c *ChecksumSlot, counter uint64, runOK bool) {
	c.Data = ChecksumData{Counter: counter, RunOK: toBoolWord(runOK)}
	c.Hash = Jenkins(&c.Data)
}

// Verify rebuilds a ChecksumData from the slot's own counter/run_ok fields
// and compares it byte-for-byte and by hash against the stored checksum.
func Verify(s *StatsSlot, c *ChecksumSlot) bool {
	want := ChecksumData{Counter: s.CounterInfo.Counter, RunOK: s.CounterInfo.RunOK}
	if want != c.Data {
		return false
	}
	return Jenkins(&want) == c.Hash
}
