// Package phasor converts a window of bias-free I/Q samples into a single
// complex phasor describing the intermediate-frequency tone in that window.
//
// Four extractors are provided:
//
//   - Downconverter multiplies the window by a local complex reference
//     exp(-jθ), with θ advancing by a fixed step per sample pair, and
//     averages. This is the canonical algorithm.
//   - SingleBin reads one bin of a fixed-size forward FFT of I+jQ. For a tone
//     that falls exactly on the bin it agrees with Downconverter.
//   - Goertzel computes the Downconverter sum with a two-term recurrence per
//     channel instead of reference tables.
//   - RMS measures the RMS of I and Q independently and takes the sign of each
//     from the downconverted sum. It is cheap and coarse.
//
// Every extractor expects the processed window produced by package acquire:
// DC bias already removed and transient samples already dropped. The
// magnitude of the result is proportional to the tone amplitude. Its angle
// only has meaning relative to another phasor captured with the same
// reference timing.
//
// # Usage
//
//	step := phasor.PhaseStep(10e3, 250e3)
//	ddc := phasor.NewDownconverter(step)
//	p, err := ddc.Extract(i, q)
package phasor
