// Package cal solves and applies the three-term one-port error model.
//
// The measured reflection coefficient Γm relates to the actual Γa through
//
//	Γm = (e00 - ΔE·Γa) / (1 - e11·Γa)
//
// where e00 is directivity, e11 source match and ΔE = e00·e11 - e10·e01.
// Rearranged, each calibration standard contributes one equation that is
// linear in the unknowns:
//
//	e00 + (Γa·Γm)·e11 - Γa·ΔE = Γm
//
// Three standards with known Γa give a 3×3 complex system, solved here in
// closed form with Cramer's rule. Correction inverts the model:
//
//	Γa = (Γm - e00) / (Γm·e11 - ΔE)
//
// Error terms are valid only at the frequency where the standards were
// measured.
package cal

import (
	"errors"
	"fmt"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
)

// Errors returned by calibration.
var (
	ErrCalibrationInvalid = errors.New("cal: calibration invalid")
	ErrMeasurementFault   = errors.New("cal: correction denominator is zero")
)

// degenerateDeterminant bounds |D| below which the three standards are
// treated as indistinguishable.
const degenerateDeterminant = 1e-12

// Standard identifies a calibration standard.
type Standard int

// Calibration standards in the order they are measured.
const (
	Short Standard = iota
	Open
	Load
)

// Order is the measurement order used by a calibration run.
var Order = [...]Standard{Short, Open, Load}

func (s Standard) String() string {
	switch s {
	case Short:
		return "short"
	case Open:
		return "open"
	case Load:
		return "load"
	default:
		return fmt.Sprintf("standard(%d)", int(s))
	}
}

// Standards holds the actual reflection coefficients of the standards.
type Standards struct {
	Short cplx.Complex
	Open  cplx.Complex
	Load  cplx.Complex
}

// Ideal returns the ideal standards: Short = -1, Open = +1, Load = 0.
func Ideal() Standards {
	return Standards{Short: cplx.MinusOne, Open: cplx.One, Load: cplx.Zero}
}

// StandardsWithLoad returns ideal short and open standards with a resistive
// load of zLoad ohms in a z0 ohm system, e.g. a 51 Ω resistor in 50 Ω.
func StandardsWithLoad(zLoad, z0 float64) Standards {
	s := Ideal()
	s.Load = cplx.Real((zLoad - z0) / (zLoad + z0))

	return s
}

// Get returns the actual reflection coefficient of std.
func (s Standards) Get(std Standard) cplx.Complex {
	switch std {
	case Short:
		return s.Short
	case Open:
		return s.Open
	default:
		return s.Load
	}
}

// ErrorTerms are the three one-port error terms at a single frequency.
type ErrorTerms struct {
	E00    cplx.Complex // directivity
	E11    cplx.Complex // source match
	DeltaE cplx.Complex // e00·e11 - e10·e01
}

// Identity returns terms for which Apply returns its input unchanged.
func Identity() ErrorTerms {
	return ErrorTerms{DeltaE: cplx.MinusOne}
}

// Tracking returns the reflection tracking term e10·e01 = e00·e11 - ΔE.
func (t ErrorTerms) Tracking() cplx.Complex {
	return t.E00.Mul(t.E11).Sub(t.DeltaE)
}

// Measured returns the raw reflection coefficient these terms predict for a
// device with actual reflection coefficient gamma. It is the inverse of
// Apply and is used to synthesize raw data.
func (t ErrorTerms) Measured(gamma cplx.Complex) (cplx.Complex, error) {
	num := t.E00.Sub(t.DeltaE.Mul(gamma))
	den := cplx.One.Sub(t.E11.Mul(gamma))

	m, err := num.Div(den)
	if err != nil {
		return cplx.Zero, fmt.Errorf("%w: %w", ErrMeasurementFault, err)
	}

	return m, nil
}

// Calibrate solves the error terms from the measured short, open and load
// using the ideal standards.
func Calibrate(short, open, load cplx.Complex) (ErrorTerms, error) {
	return Ideal().Calibrate(short, open, load)
}

// Calibrate solves the error terms from the measured reflection coefficients
// of the three standards in s.
//
// Each row k of the system is [1, a_k·m_k, -a_k]·[e00, e11, ΔE]ᵀ = m_k with
// a_k the actual and m_k the measured value. All three unknowns share the
// determinant D of that matrix; |D| ≈ 0 yields ErrCalibrationInvalid.
func (s Standards) Calibrate(short, open, load cplx.Complex) (ErrorTerms, error) {
	a := [3]cplx.Complex{s.Short, s.Open, s.Load}
	m := [3]cplx.Complex{short, open, load}

	var rows [3][3]cplx.Complex
	for k := range rows {
		rows[k] = [3]cplx.Complex{cplx.One, a[k].Mul(m[k]), a[k].Neg()}
	}

	d := det3(rows)
	if !d.IsFinite() || d.Abs() < degenerateDeterminant {
		return ErrorTerms{}, fmt.Errorf("%w: degenerate standards (|D| = %g)", ErrCalibrationInvalid, d.Abs())
	}

	var x [3]cplx.Complex

	for col := range x {
		r := rows
		for k := range r {
			r[k][col] = m[k]
		}

		v, err := det3(r).Div(d)
		if err != nil {
			return ErrorTerms{}, fmt.Errorf("%w: %w", ErrCalibrationInvalid, err)
		}

		x[col] = v
	}

	return ErrorTerms{E00: x[0], E11: x[1], DeltaE: x[2]}, nil
}

// Apply returns the corrected reflection coefficient for raw.
// A zero-magnitude denominator yields ErrMeasurementFault.
func Apply(raw cplx.Complex, t ErrorTerms) (cplx.Complex, error) {
	num := raw.Sub(t.E00)
	den := raw.Mul(t.E11).Sub(t.DeltaE)

	g, err := num.Div(den)
	if err != nil {
		return cplx.Zero, fmt.Errorf("%w: %w", ErrMeasurementFault, err)
	}

	return g, nil
}

// det3 expands a 3×3 complex determinant along the first row.
func det3(r [3][3]cplx.Complex) cplx.Complex {
	m0 := r[1][1].Mul(r[2][2]).Sub(r[1][2].Mul(r[2][1]))
	m1 := r[1][0].Mul(r[2][2]).Sub(r[1][2].Mul(r[2][0]))
	m2 := r[1][0].Mul(r[2][1]).Sub(r[1][1].Mul(r[2][0]))

	return r[0][0].Mul(m0).Sub(r[0][1].Mul(m1)).Add(r[0][2].Mul(m2))
}
