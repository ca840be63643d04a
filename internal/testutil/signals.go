package testutil

import (
	"math"
	"math/rand"
)

// Tone generates an analytic I/Q tone: I = amp·cos(step·k + phase),
// Q = amp·sin(step·k + phase).
func Tone(step, amp, phase float64, length int) (i, q []float64) {
	i = make([]float64, length)
	q = make([]float64, length)

	for k := range i {
		s, c := math.Sincos(step*float64(k) + phase)
		i[k] = amp * c
		q[k] = amp * s
	}

	return i, q
}

// ToneCounts generates a tone as unsigned ADC counts centred on offset and
// clamped to the converter range [0, 2^bits-1].
func ToneCounts(step, amp, phase, offset float64, bits, length int) (i, q []uint16) {
	fi, fq := Tone(step, amp, phase, length)
	top := float64(uint32(1)<<bits - 1)

	i = make([]uint16, length)
	q = make([]uint16, length)

	for k := range fi {
		i[k] = uint16(math.Max(0, math.Min(top, math.Round(fi[k]+offset))))
		q[k] = uint16(math.Max(0, math.Min(top, math.Round(fq[k]+offset))))
	}

	return i, q
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))

	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}

	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}

	return out
}
