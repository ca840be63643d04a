// Package cplx provides the rectangular complex value used throughout the
// measurement chain.
//
// Go's built-in complex128 silently yields Inf/NaN when dividing by zero.
// Reflection-coefficient arithmetic needs that case detected, so division
// here returns ErrZeroDivisor instead of a non-finite result.
package cplx

import (
	"errors"
	"fmt"
	"math"
)

// ErrZeroDivisor is returned when dividing by a zero-magnitude value or when
// the quotient would not be finite.
var ErrZeroDivisor = errors.New("cplx: division by zero-magnitude value")

// Complex is an immutable complex number in rectangular form.
type Complex struct {
	Re float64
	Im float64
}

// Common constants.
var (
	Zero     = Complex{}
	One      = Complex{Re: 1}
	MinusOne = Complex{Re: -1}
)

// New returns re + j·im.
func New(re, im float64) Complex {
	return Complex{Re: re, Im: im}
}

// Real returns x + j0.
func Real(x float64) Complex {
	return Complex{Re: x}
}

// FromPolar builds a value from magnitude and angle in radians.
func FromPolar(mag, angle float64) Complex {
	s, c := math.Sincos(angle)
	return Complex{Re: mag * c, Im: mag * s}
}

// FromComplex128 converts a builtin complex value.
func FromComplex128(z complex128) Complex {
	return Complex{Re: real(z), Im: imag(z)}
}

// Complex128 converts to the builtin complex type.
func (z Complex) Complex128() complex128 {
	return complex(z.Re, z.Im)
}

// Add returns z + w.
func (z Complex) Add(w Complex) Complex {
	return Complex{Re: z.Re + w.Re, Im: z.Im + w.Im}
}

// Sub returns z - w.
func (z Complex) Sub(w Complex) Complex {
	return Complex{Re: z.Re - w.Re, Im: z.Im - w.Im}
}

// Mul returns z · w.
func (z Complex) Mul(w Complex) Complex {
	return Complex{
		Re: z.Re*w.Re - z.Im*w.Im,
		Im: z.Re*w.Im + z.Im*w.Re,
	}
}

// Scale returns s · z for real s.
func (z Complex) Scale(s float64) Complex {
	return Complex{Re: s * z.Re, Im: s * z.Im}
}

// Neg returns -z.
func (z Complex) Neg() Complex {
	return Complex{Re: -z.Re, Im: -z.Im}
}

// Conj returns the complex conjugate of z.
func (z Complex) Conj() Complex {
	return Complex{Re: z.Re, Im: -z.Im}
}

// Div returns z / w.
//
// Only an exactly zero divisor, or one small enough that the quotient
// overflows, yields ErrZeroDivisor and a zero value. The operands are scaled
// by the larger divisor component first, so tiny but nonzero divisors divide
// normally.
func (z Complex) Div(w Complex) (Complex, error) {
	if w.Re == 0 && w.Im == 0 {
		return Zero, ErrZeroDivisor
	}

	var q Complex

	if math.Abs(w.Re) >= math.Abs(w.Im) {
		r := w.Im / w.Re
		d := w.Re + w.Im*r
		q = Complex{Re: (z.Re + z.Im*r) / d, Im: (z.Im - z.Re*r) / d}
	} else {
		r := w.Re / w.Im
		d := w.Im + w.Re*r
		q = Complex{Re: (z.Re*r + z.Im) / d, Im: (z.Im*r - z.Re) / d}
	}

	if !q.IsFinite() {
		return Zero, fmt.Errorf("%w: divisor %v", ErrZeroDivisor, w)
	}

	return q, nil
}

// Inv returns 1 / z.
func (z Complex) Inv() (Complex, error) {
	return One.Div(z)
}

// Abs returns the magnitude |z|.
func (z Complex) Abs() float64 {
	return math.Hypot(z.Re, z.Im)
}

// AbsSq returns |z|² without the square root.
func (z Complex) AbsSq() float64 {
	return z.Re*z.Re + z.Im*z.Im
}

// Angle returns the argument of z in radians, in (-π, π].
func (z Complex) Angle() float64 {
	return math.Atan2(z.Im, z.Re)
}

// AngleDeg returns the argument of z in degrees, in (-180, 180].
func (z Complex) AngleDeg() float64 {
	return z.Angle() * 180 / math.Pi
}

// IsZero reports whether both parts are exactly zero.
func (z Complex) IsZero() bool {
	return z.Re == 0 && z.Im == 0
}

// IsFinite reports whether neither part is NaN or Inf.
func (z Complex) IsFinite() bool {
	return !math.IsNaN(z.Re) && !math.IsNaN(z.Im) &&
		!math.IsInf(z.Re, 0) && !math.IsInf(z.Im, 0)
}

// Dist returns |z - w|.
func (z Complex) Dist(w Complex) float64 {
	return z.Sub(w).Abs()
}

// NearlyEqual reports whether |z - w| <= eps.
func (z Complex) NearlyEqual(w Complex, eps float64) bool {
	return z.Dist(w) <= eps
}

// String formats z as "a+bj".
func (z Complex) String() string {
	return fmt.Sprintf("%g%+gj", z.Re, z.Im)
}

// Mean returns the arithmetic mean of values. An empty slice yields Zero.
func Mean(values []Complex) Complex {
	if len(values) == 0 {
		return Zero
	}

	var sum Complex
	for _, v := range values {
		sum = sum.Add(v)
	}

	return sum.Scale(1 / float64(len(values)))
}
