package phasor

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/dsp/window"
)

// SingleBin extracts the phasor from one bin of a fixed-size forward FFT of
// I+jQ. The first Size pairs of the window are transformed; the bin nearest
// the tone frequency is read and normalized by the window's coherent gain.
//
// A SingleBin owns its FFT plan and scratch buffers and must not be shared
// between goroutines.
type SingleBin struct {
	size     int
	bin      int
	sideband Sideband
	window   []float64
	gain     float64

	plan *algofft.Plan[complex128]
	re   []float64
	im   []float64
	in   []complex128
	out  []complex128
}

// NewSingleBin builds a size-point extractor for a tone at freq, sampled at
// pairRate pairs per second. size must be a power of two. win tapers the
// frame before the transform; window.TypeRectangular leaves it untouched.
func NewSingleBin(size int, freq, pairRate float64, win window.Type) (*SingleBin, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, ErrInvalidSize
	}

	if pairRate <= 0 || math.IsNaN(pairRate) || math.IsInf(pairRate, 0) {
		return nil, ErrInvalidRate
	}

	bin := int(math.Round(freq * float64(size) / pairRate))
	if bin < 0 || bin >= size {
		return nil, fmt.Errorf("%w: %g at bin %d of %d", ErrBinOutOfRange, freq, bin, size)
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("phasor: failed to create FFT plan: %w", err)
	}

	coeffs, err := window.Generate(win, size)
	if err != nil {
		return nil, fmt.Errorf("phasor: %w", err)
	}

	gain, err := window.CoherentGain(coeffs)
	if err != nil {
		return nil, fmt.Errorf("phasor: %w", err)
	}

	s := &SingleBin{
		size:   size,
		bin:    bin,
		window: coeffs,
		gain:   gain,
		plan:   plan,
		re:     make([]float64, size),
		im:     make([]float64, size),
		in:     make([]complex128, size),
		out:    make([]complex128, size),
	}

	return s, nil
}

// WithSideband sets the quadrature sign convention and returns s.
func (s *SingleBin) WithSideband(sb Sideband) *SingleBin {
	s.sideband = sb
	return s
}

// Bin returns the FFT bin that is read.
func (s *SingleBin) Bin() int { return s.bin }

// Size returns the transform length.
func (s *SingleBin) Size() int { return s.size }

// Extract implements Extractor.
func (s *SingleBin) Extract(i, q []float64) (cplx.Complex, error) {
	if err := checkWindow(i, q); err != nil {
		return cplx.Zero, err
	}

	if len(i) < s.size {
		return cplx.Zero, fmt.Errorf("%w: %d < %d", ErrShortWindow, len(i), s.size)
	}

	copy(s.re, i[:s.size])
	copy(s.im, q[:s.size])

	if err := window.ApplyInPlace(s.re, s.window); err != nil {
		return cplx.Zero, fmt.Errorf("phasor: %w", err)
	}

	if err := window.ApplyInPlace(s.im, s.window); err != nil {
		return cplx.Zero, fmt.Errorf("phasor: %w", err)
	}

	sign := 1.0
	if s.sideband == Lower {
		sign = -1
	}

	for k := range s.in {
		s.in[k] = complex(s.re[k], sign*s.im[k])
	}

	if err := s.plan.Forward(s.out, s.in); err != nil {
		return cplx.Zero, fmt.Errorf("phasor: forward FFT failed: %w", err)
	}

	return cplx.FromComplex128(s.out[s.bin]).Scale(1 / s.gain), nil
}
