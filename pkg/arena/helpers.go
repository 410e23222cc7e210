package arena

import "github.com/cuemby/hammer/pkg/stressor"

func (s *StatsSlot) SetCompleted(v bool)  { s.Completed = toBoolWord(v) }
func (s *StatsSlot) IsCompleted() bool    { return s.Completed.bool() }
func (s *StatsSlot) SetSignalled(v bool)  { s.Signalled = toBoolWord(v) }
func (s *StatsSlot) IsSignalled() bool    { return s.Signalled.bool() }
func (s *StatsSlot) SetSigalarmed(v bool) { s.Sigalarmed = toBoolWord(v) }
func (s *StatsSlot) IsSigalarmed() bool   { return s.Sigalarmed.bool() }

func (c *CounterInfo) SetCounterReady(v bool) { c.CounterReady = toBoolWord(v) }
func (c *CounterInfo) IsCounterReady() bool   { return c.CounterReady.bool() }
func (c *CounterInfo) SetRunOK(v bool)        { c.RunOK = toBoolWord(v) }
func (c *CounterInfo) IsRunOK() bool          { return c.RunOK.bool() }
func (c *CounterInfo) SetForceKilled(v bool)  { c.ForceKilled = toBoolWord(v) }
func (c *CounterInfo) IsForceKilled() bool    { return c.ForceKilled.bool() }

// CopyMetrics copies a worker-local stressor.MetricSet into the slot's
// shared-memory-safe, pointer-free representation.
func (s *StatsSlot) CopyMetrics(ms *stressor.MetricSet) {
	if ms == nil {
		return
	}
	for i := 0; i < stressor.MaxAuxMetrics; i++ {
		desc := ms.Description[i]
		if desc == "" {
			s.Metrics[i].Value = -1
			s.Metrics[i].DescLen = 0
			continue
		}
		n := copy(s.Metrics[i].Desc[:], desc)
		s.Metrics[i].DescLen = uint8(n)
		s.Metrics[i].Value = ms.Value[i]
	}
}

// Description returns the i'th auxiliary metric's description, or "" if
// unused.
func (m *RawMetric) Description() string {
	if m.DescLen == 0 {
		return ""
	}
	return string(m.Desc[:m.DescLen])
}
