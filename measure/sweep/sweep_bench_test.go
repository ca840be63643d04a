package sweep

import (
	"testing"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
)

type passthrough struct{}

func (passthrough) Tune(khz float64) (float64, error) { return khz, nil }

func BenchmarkSweep(b *testing.B) {
	sw, err := New(Setup{Start: 100, End: 12000, Points: 201}, passthrough{}, nil)
	if err != nil {
		b.Fatal(err)
	}

	res := sw.NewResult()
	measure := func(int) (cplx.Complex, error) { return cplx.New(0.1, 0.2), nil }

	b.ResetTimer()

	for b.Loop() {
		if err := sw.SweepInto(res, 1, measure); err != nil {
			b.Fatal(err)
		}
	}
}
