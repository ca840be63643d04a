package window

import (
	"errors"
	"math"
	"testing"
)

func TestGenerate(t *testing.T) {
	const size = 64

	tests := []struct {
		typ  Type
		gain float64 // coherent gain / size
	}{
		{TypeRectangular, 1},
		{TypeHann, 0.5},
		{TypeHamming, 0.54},
		{TypeBlackman, 0.42},
		{TypeBlackmanHarris4Term, 0.35875},
		{TypeFlatTop, 0.21557895},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			w, err := Generate(tt.typ, size)
			if err != nil {
				t.Fatal(err)
			}

			if len(w) != size {
				t.Fatalf("len = %d", len(w))
			}

			g, err := CoherentGain(w)
			if err != nil {
				t.Fatal(err)
			}

			if math.Abs(g/size-tt.gain) > 1e-9 {
				t.Errorf("coherent gain/size = %g, want %g", g/size, tt.gain)
			}

			// Periodic: w[k] = w[size-k].
			for k := 1; k < size/2; k++ {
				if math.Abs(w[k]-w[size-k]) > 1e-12 {
					t.Fatalf("w[%d] = %g, w[%d] = %g", k, w[k], size-k, w[size-k])
				}
			}
		})
	}
}

func TestHannPeaksAtCentre(t *testing.T) {
	w, err := Generate(TypeHann, 8)
	if err != nil {
		t.Fatal(err)
	}

	if w[0] != 0 || math.Abs(w[4]-1) > 1e-15 {
		t.Errorf("w[0] = %g, w[4] = %g", w[0], w[4])
	}
}

func TestParse(t *testing.T) {
	for typ, name := range names {
		got, err := Parse(name)
		if err != nil || got != typ {
			t.Errorf("Parse(%q) = %v, %v", name, got, err)
		}
	}

	if _, err := Parse("kaiser"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Parse(kaiser) err = %v", err)
	}
}

func TestErrors(t *testing.T) {
	if _, err := Generate(TypeHann, 0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("size 0: %v", err)
	}

	if _, err := Generate(Type(99), 8); !errors.Is(err, ErrUnknownType) {
		t.Errorf("type 99: %v", err)
	}

	if _, err := CoherentGain([]float64{1, -1}); !errors.Is(err, ErrZeroCoherentGain) {
		t.Errorf("zero gain: %v", err)
	}

	if err := ApplyInPlace(make([]float64, 3), make([]float64, 4)); err == nil {
		t.Error("length mismatch accepted")
	}
}

func TestApplyInPlace(t *testing.T) {
	x := []float64{2, 2, 2, 2}

	w, _ := Generate(TypeHann, 4)
	if err := ApplyInPlace(x, w); err != nil {
		t.Fatal(err)
	}

	want := []float64{0, 1, 2, 1}
	for k := range x {
		if math.Abs(x[k]-want[k]) > 1e-12 {
			t.Errorf("x[%d] = %g, want %g", k, x[k], want[k])
		}
	}
}
