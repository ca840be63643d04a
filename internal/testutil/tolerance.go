package testutil

import (
	"math"
	"testing"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
)

// RequireComplexNear fails t if |got - want| exceeds eps.
func RequireComplexNear(t testing.TB, got, want cplx.Complex, eps float64) {
	t.Helper()

	if d := got.Dist(want); d > eps || math.IsNaN(d) {
		t.Fatalf("got %v, want %v (|diff| %g > eps %g)", got, want, d, eps)
	}
}

// RequireComplexSliceNear fails t if got and want differ in length or if
// any element pair is further apart than eps.
func RequireComplexSliceNear(t testing.TB, got, want []cplx.Complex, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if d := got[i].Dist(want[i]); d > eps || math.IsNaN(d) {
			t.Fatalf("index %d: got %v, want %v (|diff| %g > eps %g)", i, got[i], want[i], d, eps)
		}
	}
}

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t testing.TB, got, want []float64, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if diff := math.Abs(got[i] - want[i]); diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}
