package builtin

import (
	"math"

	"github.com/cuemby/hammer/pkg/stressor"
)

// cpuEntry exercises floating point and integer ALUs with a small rotating
// method table.
func cpuEntry() stressor.Entry {
	return stressor.Entry{
		ID:         1,
		Name:       "cpu",
		ClassMask:  stressor.ClassCPU,
		VerifyMode: stressor.VerifyOptional,
		Run:        runCPU,
	}
}

var cpuMethods = []func(uint64) float64{
	cpuMethodSqrt,
	cpuMethodTrig,
	cpuMethodInt,
}

func runCPU(args *stressor.Args) stressor.ExitCode {
	var acc float64
	method := 0
	for args.Continue() {
		acc += cpuMethods[method%len(cpuMethods)](*args.Counter)
		method++
		*args.Counter++
		if args.MaxOps != 0 && *args.Counter >= args.MaxOps {
			break
		}
	}
	args.Metrics.Set(0, "cpu-checksum", acc)
	return stressor.Success
}

func cpuMethodSqrt(n uint64) float64 {
	return math.Sqrt(float64(n) + 1)
}

func cpuMethodTrig(n uint64) float64 {
	x := float64(n%360) * math.Pi / 180
	return math.Sin(x)*math.Sin(x) + math.Cos(x)*math.Cos(x)
}

func cpuMethodInt(n uint64) float64 {
	var v uint64 = n
	for i := 0; i < 8; i++ {
		v = v*2654435761 + 1
	}
	return float64(v % 1000007)
}
