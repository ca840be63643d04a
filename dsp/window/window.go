// Package window generates the tapers applied before a single-bin FFT.
package window

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Type identifies a window function.
type Type int

const (
	TypeRectangular Type = iota
	TypeHann
	TypeHamming
	TypeBlackman
	TypeBlackmanHarris4Term
	TypeFlatTop
)

// Errors returned by window generation.
var (
	ErrInvalidSize      = errors.New("window: size must be > 0")
	ErrUnknownType      = errors.New("window: unknown type")
	ErrZeroCoherentGain = errors.New("window: coherent gain is zero")
)

// Cosine-sum coefficients a0, a1, ... for w(x) = Σ a_k·cos(2πkx).
var (
	hannCoeffs            = []float64{0.5, -0.5}
	hammingCoeffs         = []float64{0.54, -0.46}
	blackmanCoeffs        = []float64{0.42, -0.5, 0.08}
	blackmanHarris4Coeffs = []float64{0.35875, -0.48829, 0.14128, -0.01168}
	flatTopCoeffs         = []float64{0.21557895, -0.41663158, 0.277263158, -0.083578947, 0.006947368}
)

var names = map[Type]string{
	TypeRectangular:         "rect",
	TypeHann:                "hann",
	TypeHamming:             "hamming",
	TypeBlackman:            "blackman",
	TypeBlackmanHarris4Term: "blackman-harris",
	TypeFlatTop:             "flattop",
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}

	return fmt.Sprintf("window(%d)", int(t))
}

// Parse returns the type named s, as printed by String.
func Parse(s string) (Type, error) {
	for t, name := range names {
		if name == s {
			return t, nil
		}
	}

	return TypeRectangular, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Generate returns size periodic coefficients of window t. Over a size-point
// FFT an on-bin tone then reads exactly CoherentGain times its amplitude.
func Generate(t Type, size int) ([]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	var coeffs []float64

	switch t {
	case TypeRectangular:
	case TypeHann:
		coeffs = hannCoeffs
	case TypeHamming:
		coeffs = hammingCoeffs
	case TypeBlackman:
		coeffs = blackmanCoeffs
	case TypeBlackmanHarris4Term:
		coeffs = blackmanHarris4Coeffs
	case TypeFlatTop:
		coeffs = flatTopCoeffs
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}

	w := make([]float64, size)
	for n := range w {
		w[n] = 1
		if coeffs != nil {
			w[n] = cosineSum(float64(n)/float64(size), coeffs)
		}
	}

	return w, nil
}

// CoherentGain returns the sum of the coefficients, the factor by which the
// window scales an on-bin tone's DFT amplitude.
func CoherentGain(coeffs []float64) (float64, error) {
	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}

	if sum == 0 {
		return 0, ErrZeroCoherentGain
	}

	return sum, nil
}

// ApplyInPlace multiplies samples by coeffs.
func ApplyInPlace(samples, coeffs []float64) error {
	if len(samples) != len(coeffs) {
		return fmt.Errorf("window: %d samples, %d coefficients", len(samples), len(coeffs))
	}

	vecmath.MulBlockInPlace(samples, coeffs)

	return nil
}

func cosineSum(x float64, coeffs []float64) float64 {
	phase := 2 * math.Pi * x

	sum := 0.0
	for k, c := range coeffs {
		sum += c * math.Cos(float64(k)*phase)
	}

	return sum
}
