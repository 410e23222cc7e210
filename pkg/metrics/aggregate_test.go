package metrics

import (
	"math"
	"testing"
)

func TestGeometricMeanKnownValues(t *testing.T) {
	got := geometricMean([]float64{4, 9})
	want := math.Sqrt(36)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("geometricMean(4,9) = %v, want %v", got, want)
	}
}

func TestGeometricMeanEmpty(t *testing.T) {
	if got := geometricMean(nil); got != -1 {
		t.Fatalf("geometricMean(nil) = %v, want -1", got)
	}
}

func TestGeometricMeanSingleValueIsIdentity(t *testing.T) {
	got := geometricMean([]float64{42})
	if math.Abs(got-42) > 1e-9 {
		t.Fatalf("geometricMean(42) = %v, want 42", got)
	}
}
