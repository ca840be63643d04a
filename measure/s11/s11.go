// Package s11 derives display quantities from a reflection coefficient.
package s11

import (
	"errors"
	"math"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
)

// Z0 is the reference impedance of the instrument in ohms.
const Z0 = 50.0

// FloorDB is returned by ReturnLossDB for |Γ| = 0.
const FloorDB = -300.0

// ErrInvalidReference is returned for a non-positive reference impedance.
var ErrInvalidReference = errors.New("s11: reference impedance must be positive")

// ReturnLossDB returns 20·log10|Γ|, the reflection magnitude in dB as plotted
// by the instrument: 0 dB for total reflection, negative for better matches.
// |Γ| = 0 yields FloorDB.
func ReturnLossDB(gamma cplx.Complex) float64 {
	return MagnitudeDB(gamma.Abs())
}

// MagnitudeDB converts a precomputed |Γ| to dB, clamped at FloorDB.
func MagnitudeDB(mag float64) float64 {
	if mag <= 0 || math.IsNaN(mag) {
		return FloorDB
	}

	return math.Max(FloorDB, 20*math.Log10(mag))
}

// PhaseDeg returns the angle of Γ in degrees.
func PhaseDeg(gamma cplx.Complex) float64 {
	return gamma.AngleDeg()
}

// VSWR returns (1+|Γ|)/(1-|Γ|). |Γ| >= 1 yields +Inf.
func VSWR(gamma cplx.Complex) float64 {
	mag := gamma.Abs()
	if mag >= 1 {
		return math.Inf(1)
	}

	return (1 + mag) / (1 - mag)
}

// MismatchLossDB returns the power lost to reflection, -10·log10(1-|Γ|²).
// |Γ| >= 1 yields +Inf.
func MismatchLossDB(gamma cplx.Complex) float64 {
	p := 1 - gamma.AbsSq()
	if p <= 0 {
		return math.Inf(1)
	}

	return -10 * math.Log10(p)
}

// ToImpedance returns Z = z0·(1+Γ)/(1-Γ). Γ = 1 (an open) has no finite
// impedance and yields cplx.ErrZeroDivisor.
func ToImpedance(gamma cplx.Complex, z0 float64) (cplx.Complex, error) {
	if z0 <= 0 {
		return cplx.Zero, ErrInvalidReference
	}

	z, err := cplx.One.Add(gamma).Div(cplx.One.Sub(gamma))
	if err != nil {
		return cplx.Zero, err
	}

	return z.Scale(z0), nil
}

// FromImpedance returns Γ = (Z-z0)/(Z+z0).
func FromImpedance(z cplx.Complex, z0 float64) (cplx.Complex, error) {
	if z0 <= 0 {
		return cplx.Zero, ErrInvalidReference
	}

	ref := cplx.Real(z0)

	return z.Sub(ref).Div(z.Add(ref))
}
