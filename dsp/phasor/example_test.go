package phasor_test

import (
	"fmt"
	"math"

	"github.com/snorklerjoe/breadboard-vna/dsp/phasor"
)

func ExampleDownconverter() {
	step := phasor.PhaseStep(10e3, 250e3)

	// 40 cycles of a 10 kHz tone with amplitude 100 and phase 30°.
	i := make([]float64, 1000)
	q := make([]float64, 1000)

	for k := range i {
		s, c := math.Sincos(step*float64(k) + math.Pi/6)
		i[k], q[k] = 100*c, 100*s
	}

	p, err := phasor.NewDownconverter(step).Extract(i, q)
	if err != nil {
		panic(err)
	}

	fmt.Printf("|P| = %.2f, angle = %.2f°\n", p.Abs(), p.AngleDeg())

	// Output:
	// |P| = 100.00, angle = 30.00°
}
