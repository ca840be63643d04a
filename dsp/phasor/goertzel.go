package phasor

import (
	"math"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
)

// Goertzel evaluates the DFT of I+jQ at a single, possibly off-bin,
// frequency with a second-order recurrence per channel. It computes the same
// sum as Downconverter without reference tables, so it needs no scratch and
// may be shared between goroutines.
type Goertzel struct {
	step     float64
	coeff    float64
	sideband Sideband
}

// NewGoertzel returns an extractor for a tone advancing step radians per
// sample pair.
func NewGoertzel(step float64) *Goertzel {
	return &Goertzel{step: step, coeff: 2 * math.Cos(step)}
}

// WithSideband sets the quadrature sign convention and returns g.
func (g *Goertzel) WithSideband(sb Sideband) *Goertzel {
	g.sideband = sb
	return g
}

// Step returns the phase advance per sample pair.
func (g *Goertzel) Step() float64 { return g.step }

// Extract implements Extractor.
func (g *Goertzel) Extract(i, q []float64) (cplx.Complex, error) {
	if err := checkWindow(i, q); err != nil {
		return cplx.Zero, err
	}

	xi := g.bin(i)
	xq := g.bin(q)

	if g.sideband == Lower {
		xq = xq.Neg()
	}

	// X = X_I + j·X_Q
	x := xi.Add(cplx.New(-xq.Im, xq.Re))

	return x.Scale(1 / float64(len(i))), nil
}

// bin runs the recurrence over x and returns Σ x[n]·exp(-j·step·n).
func (g *Goertzel) bin(x []float64) cplx.Complex {
	var s0, s1 float64

	coeff := g.coeff
	for _, v := range x {
		s := v + coeff*s0 - s1
		s1 = s0
		s0 = s
	}

	// y = s0 - exp(-jω)·s1 = exp(jω(N-1))·X
	sin, cos := math.Sincos(g.step)
	y := cplx.New(s0-cos*s1, sin*s1)

	return y.Mul(cplx.FromPolar(1, -g.step*float64(len(x)-1)))
}
