package phasor

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
)

// Errors returned by extractors.
var (
	ErrEmptyWindow    = errors.New("phasor: sample window is empty")
	ErrLengthMismatch = errors.New("phasor: I and Q windows differ in length")
	ErrShortWindow    = errors.New("phasor: window shorter than transform size")
	ErrInvalidSize    = errors.New("phasor: transform size must be a positive power of two")
	ErrInvalidRate    = errors.New("phasor: sample rate must be positive")
	ErrBinOutOfRange  = errors.New("phasor: tone frequency outside the transform")
)

// Extractor converts an I/Q window into one phasor.
type Extractor interface {
	Extract(i, q []float64) (cplx.Complex, error)
}

// Sideband selects the sign convention of the quadrature channel.
type Sideband int

const (
	// Upper treats I+jQ as the analytic signal (Q leads I).
	Upper Sideband = iota
	// Lower treats I-jQ as the analytic signal (Q lags I), as produced by a
	// detector whose LO sits above the stimulus.
	Lower
)

// PhaseStep returns the reference phase advance in radians per sample pair
// for a tone at freq sampled at pairRate pairs per second. Both arguments use
// the same unit.
func PhaseStep(freq, pairRate float64) float64 {
	return 2 * math.Pi * freq / pairRate
}

// Downconverter is a digital downconverter with a fixed phase step.
//
// The cos/sin reference tables are built once per window length and reused,
// so a Downconverter must not be shared between goroutines.
type Downconverter struct {
	step     float64
	sideband Sideband

	cos, sin []float64
	prod     []float64
}

// NewDownconverter returns a downconverter advancing step radians per pair.
func NewDownconverter(step float64) *Downconverter {
	return &Downconverter{step: step}
}

// WithSideband sets the quadrature sign convention and returns d.
func (d *Downconverter) WithSideband(sb Sideband) *Downconverter {
	d.sideband = sb
	return d
}

// Step returns the phase advance per sample pair.
func (d *Downconverter) Step() float64 { return d.step }

// Extract accumulates (I·cosθ + Q·sinθ, Q·cosθ - I·sinθ) over the window and
// normalizes by its length. With Lower sideband the Q terms change sign.
func (d *Downconverter) Extract(i, q []float64) (cplx.Complex, error) {
	if err := checkWindow(i, q); err != nil {
		return cplx.Zero, err
	}

	d.prepare(len(i))

	ic := d.dot(i, d.cos)
	is := d.dot(i, d.sin)
	qc := d.dot(q, d.cos)
	qs := d.dot(q, d.sin)

	if d.sideband == Lower {
		qc, qs = -qc, -qs
	}

	n := float64(len(i))

	return cplx.New((ic+qs)/n, (qc-is)/n), nil
}

func (d *Downconverter) prepare(n int) {
	if len(d.cos) == n {
		return
	}

	d.cos = make([]float64, n)
	d.sin = make([]float64, n)
	d.prod = make([]float64, n)

	for k := range n {
		d.sin[k], d.cos[k] = math.Sincos(d.step * float64(k))
	}
}

func (d *Downconverter) dot(x, ref []float64) float64 {
	vecmath.MulBlock(d.prod, x, ref)

	var sum float64
	for _, v := range d.prod {
		sum += v
	}

	return sum
}

// RMS estimates the phasor from the RMS of each channel. Each component is
// that channel's peak amplitude (√2·RMS) carrying the sign of the matching
// component of the downconverted sum. The result lands in the right quadrant
// but its magnitude and angle are only indicative; use Downconverter for
// calibrated measurements.
type RMS struct {
	ddc *Downconverter
}

// NewRMS returns an RMS extractor whose signs come from a downconverter with
// the given step.
func NewRMS(step float64) *RMS {
	return &RMS{ddc: NewDownconverter(step)}
}

// Extract implements Extractor.
func (r *RMS) Extract(i, q []float64) (cplx.Complex, error) {
	ref, err := r.ddc.Extract(i, q)
	if err != nil {
		return cplx.Zero, err
	}

	// √2 scales a sinusoid's RMS back to its peak, matching the
	// downconverter's amplitude.
	re := math.Copysign(math.Sqrt2*rms(i), ref.Re)
	im := math.Copysign(math.Sqrt2*rms(q), ref.Im)

	return cplx.New(re, im), nil
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(x)))
}

func checkWindow(i, q []float64) error {
	if len(i) != len(q) {
		return ErrLengthMismatch
	}

	if len(i) == 0 {
		return ErrEmptyWindow
	}

	return nil
}
