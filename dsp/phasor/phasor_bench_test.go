package phasor

import (
	"testing"

	"github.com/snorklerjoe/breadboard-vna/dsp/window"
	"github.com/snorklerjoe/breadboard-vna/internal/testutil"
)

func BenchmarkDownconverter(b *testing.B) {
	step := PhaseStep(ifFreq, pairRate)
	i, q := testutil.Tone(step, 800, 0.4, 992)
	d := NewDownconverter(step)

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		if _, err := d.Extract(i, q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSingleBin(b *testing.B) {
	i, q := testutil.Tone(PhaseStep(onBin, pairRate), 800, 0.4, 1024)

	sb, err := NewSingleBin(1024, onBin, pairRate, window.TypeHann)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		if _, err := sb.Extract(i, q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGoertzel(b *testing.B) {
	step := PhaseStep(ifFreq, pairRate)
	i, q := testutil.Tone(step, 800, 0.4, 992)
	g := NewGoertzel(step)

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		if _, err := g.Extract(i, q); err != nil {
			b.Fatal(err)
		}
	}
}
