package metrics

import (
	"math"

	"github.com/cuemby/hammer/pkg/arena"
	"github.com/cuemby/hammer/pkg/stressor"
)

// AuxMetric is one auxiliary metric's geometric mean across every instance
// that published a positive value for it.
type AuxMetric struct {
	Description string
	Value       float64
}

// Aggregate is the per-stressor rollup the report renders.
type Aggregate struct {
	Name               string
	Instances          int
	CompletedInstances int

	CounterTotal uint64
	UserTime     float64
	SystemTime   float64
	RealTime     float64
	MaxRSS       int64

	BogoRate         float64
	BogoRateRealTime float64
	CPUUsagePercent  float64

	Aux []AuxMetric
}

// ValidationResult is the outcome of the checksum validation pass over
// one stressor's completed slots.
type ValidationResult struct {
	Mismatches       []int // slot indices whose checksum failed to validate
	SuspiciouslyIdle bool
}

// Validate rebuilds each completed slot's checksum from its own live
// counter/run_ok fields and compares it against the stored ChecksumSlot,
// flagging any mismatch.
func Validate(ar *arena.Arena, name string, slots []int) ValidationResult {
	var vr ValidationResult
	minDuration := math.Inf(1)
	allZero := true
	completed := 0

	for _, idx := range slots {
		s := ar.Stats(idx)
		if !s.IsCompleted() {
			continue
		}
		completed++
		c := ar.Checksum(idx)
		if !arena.Verify(s, c) {
			vr.Mismatches = append(vr.Mismatches, idx)
			ChecksumMismatches.WithLabelValues(name).Inc()
		}
		if s.CounterInfo.Counter != 0 {
			allZero = false
		}
		if s.Duration < minDuration {
			minDuration = s.Duration
		}
	}
	// Every counter zero with 30s+ of observed run time means the workers
	// sat idle — surfaced to the caller rather than logged here, since only
	// the caller knows the run's verbosity level.
	vr.SuspiciouslyIdle = completed > 0 && allZero && minDuration > 30
	return vr
}

// AggregateSlots computes the per-stressor rollup over a set of slots, and
// mirrors the headline numbers into the Prometheus gauges.
func AggregateSlots(ar *arena.Arena, name string, slots []int) Aggregate {
	agg := Aggregate{Name: name, Instances: len(slots)}

	var realTimeSum float64
	auxSamples := make([][]float64, stressor.MaxAuxMetrics)
	auxDesc := make([]string, stressor.MaxAuxMetrics)

	for _, idx := range slots {
		s := ar.Stats(idx)
		if !s.IsCompleted() {
			continue
		}
		agg.CompletedInstances++
		agg.CounterTotal += s.CounterTotal
		agg.UserTime += s.RusageUtimeTotal
		agg.SystemTime += s.RusageStimeTotal
		realTimeSum += s.DurationTotal
		if s.RusageMaxRSS > agg.MaxRSS {
			agg.MaxRSS = s.RusageMaxRSS
		}
		for i := 0; i < stressor.MaxAuxMetrics; i++ {
			m := s.Metrics[i]
			if m.DescLen == 0 || m.Value <= 0 {
				continue
			}
			auxDesc[i] = m.Description()
			auxSamples[i] = append(auxSamples[i], m.Value)
		}
	}

	if agg.CompletedInstances > 0 {
		agg.RealTime = realTimeSum / float64(agg.CompletedInstances)
	}
	denom := agg.UserTime + agg.SystemTime
	if denom > 0 {
		agg.BogoRate = float64(agg.CounterTotal) / denom
	}
	if agg.RealTime > 0 {
		agg.BogoRateRealTime = float64(agg.CounterTotal) / agg.RealTime
		agg.CPUUsagePercent = denom / agg.RealTime * 100 / float64(maxInt(agg.CompletedInstances, 1))
	}

	for i := 0; i < stressor.MaxAuxMetrics; i++ {
		if len(auxSamples[i]) == 0 {
			continue
		}
		agg.Aux = append(agg.Aux, AuxMetric{Description: auxDesc[i], Value: geometricMean(auxSamples[i])})
	}

	BogoOpsTotal.WithLabelValues(name).Set(float64(agg.CounterTotal))
	BogoOpsPerSecond.WithLabelValues(name).Set(agg.BogoRateRealTime)
	CPUUsagePercent.WithLabelValues(name).Set(agg.CPUUsagePercent)

	return agg
}

// geometricMean uses a frexp/pow construction: accumulate each sample as
// mantissa*2^exponent to avoid overflow on the raw product,
// then take the n'th root of the mantissa product and exponent sum
// separately before recombining.
func geometricMean(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return -1
	}
	mantissaProduct := 1.0
	exponentSum := 0
	for _, v := range vals {
		frac, exp := math.Frexp(v)
		mantissaProduct *= frac
		exponentSum += exp
		// Renormalize periodically so mantissaProduct stays within
		// float64 range for long sample sets.
		for mantissaProduct < 0.5 {
			mantissaProduct *= 2
			exponentSum--
		}
	}
	return math.Pow(mantissaProduct, 1/float64(n)) * math.Pow(2, float64(exponentSum)/float64(n))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
