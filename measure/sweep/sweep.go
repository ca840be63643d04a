package sweep

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
)

// Errors returned by sweep functions.
var (
	ErrInvalidFrequency = errors.New("sweep: frequency must be positive")
	ErrFrequencyOrder   = errors.New("sweep: start frequency must be less than end frequency")
	ErrInvalidPoints    = errors.New("sweep: number of points must be >= 2")
	ErrLengthMismatch   = errors.New("sweep: output slices must have one entry per point")
	ErrMissingTuner     = errors.New("sweep: tuner is required")
)

// Setup describes a logarithmic sweep. Frequencies are in kHz.
type Setup struct {
	Start  float64 `json:"start_khz"`
	End    float64 `json:"end_khz"`
	Points int     `json:"points"`
}

// DefaultSetup returns the reference sweep: 20 points from 100 kHz to 12 MHz.
func DefaultSetup() Setup {
	return Setup{Start: 100, End: 12000, Points: 20}
}

// Validate checks the sweep parameters.
func (s Setup) Validate() error {
	if !(s.Start > 0) || !(s.End > 0) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
		return ErrInvalidFrequency
	}

	if !(s.End > s.Start) {
		return ErrFrequencyOrder
	}

	if s.Points < 2 {
		return ErrInvalidPoints
	}

	return nil
}

// Targets returns the requested frequencies, log-spaced and non-decreasing.
func (s Setup) Targets() ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	lo := math.Log10(s.Start)
	step := (math.Log10(s.End) - lo) / float64(s.Points-1)

	out := make([]float64, s.Points)
	for k := range out {
		out[k] = math.Pow(10, lo+float64(k)*step)
	}

	out[len(out)-1] = s.End

	return out, nil
}

// FrequencySetter moves the stimulus to a target frequency and returns the
// frequency actually reached. It blocks until the signal has settled.
type FrequencySetter interface {
	Tune(khz float64) (float64, error)
}

// Source is the stimulus synthesizer.
type Source interface {
	SetFrequency(khz float64) (float64, error)
}

// LO is the receiver's local oscillator.
type LO interface {
	SetLOFrequency(khz float64) (float64, error)
}

// Sleeper provides blocking delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Tuner places the receiver LO on the target and the source one
// intermediate frequency above whatever the LO actually reached, so the IF
// stays exact despite LO quantization. The recorded frequency is the
// source's.
type Tuner struct {
	Source  Source
	LO      LO
	IF      float64 // kHz
	Settle  time.Duration
	Sleeper Sleeper
}

// DefaultSettle is the frequency-change settle delay.
const DefaultSettle = 10 * time.Millisecond

// Tune implements FrequencySetter.
func (t *Tuner) Tune(khz float64) (float64, error) {
	lo, err := t.LO.SetLOFrequency(khz)
	if err != nil {
		return 0, fmt.Errorf("sweep: set LO to %.3f kHz: %w", khz, err)
	}

	actual, err := t.Source.SetFrequency(lo + t.IF)
	if err != nil {
		return 0, fmt.Errorf("sweep: set source to %.3f kHz: %w", lo+t.IF, err)
	}

	if t.Sleeper != nil && t.Settle > 0 {
		t.Sleeper.Sleep(t.Settle)
	}

	return actual, nil
}

// MeasureFunc returns the averaged raw Γ at the current frequency.
type MeasureFunc func(averages int) (cplx.Complex, error)

// Result holds one sweep. It is allocated once per Sweeper and overwritten
// in place by every SweepInto.
type Result struct {
	Frequencies []float64      // actual frequency per point, kHz
	Raw         []cplx.Complex // uncorrected Γ
	Corrected   []cplx.Complex // Γ after Calibration.Apply
	Faults      []error        // non-nil where the point is invalid
}

// Valid reports whether point k carries a usable measurement.
func (r *Result) Valid(k int) bool { return r.Faults[k] == nil }

// Len returns the number of points.
func (r *Result) Len() int { return len(r.Frequencies) }

// Sweeper runs sweeps over a fixed Setup.
type Sweeper struct {
	setup   Setup
	targets []float64
	tuner   FrequencySetter
	log     *slog.Logger
}

// New returns a Sweeper. A nil logger discards output.
func New(setup Setup, tuner FrequencySetter, log *slog.Logger) (*Sweeper, error) {
	if tuner == nil {
		return nil, ErrMissingTuner
	}

	targets, err := setup.Targets()
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Sweeper{setup: setup, targets: targets, tuner: tuner, log: log}, nil
}

// Setup returns the sweep parameters.
func (s *Sweeper) Setup() Setup { return s.setup }

// Points returns the number of points per sweep.
func (s *Sweeper) Points() int { return len(s.targets) }

// Targets returns a copy of the requested frequencies.
func (s *Sweeper) Targets() []float64 {
	return append([]float64(nil), s.targets...)
}

// NewResult allocates a Result sized for this sweep.
func (s *Sweeper) NewResult() *Result {
	n := len(s.targets)

	return &Result{
		Frequencies: make([]float64, n),
		Raw:         make([]cplx.Complex, n),
		Corrected:   make([]cplx.Complex, n),
		Faults:      make([]error, n),
	}
}

// Sweep visits every target in order, writing the actual frequency, the raw
// Γ and any measurement fault of point k into freqs[k], gammas[k] and
// faults[k]. A faulted point leaves gammas[k] zero and the sweep continues.
// Tuning failures and other hardware errors abort the sweep.
func (s *Sweeper) Sweep(averages int, measure MeasureFunc, freqs []float64, gammas []cplx.Complex, faults []error) error {
	n := len(s.targets)
	if len(freqs) != n || len(gammas) != n || len(faults) != n {
		return ErrLengthMismatch
	}

	for k, target := range s.targets {
		f, err := s.tuner.Tune(target)
		if err != nil {
			return fmt.Errorf("sweep: point %d: %w", k, err)
		}

		freqs[k] = f

		g, err := measure(averages)
		switch {
		case IsFault(err):
			s.log.Warn("point faulted", "point", k, "khz", f, "err", err)
			gammas[k], faults[k] = cplx.Zero, err
		case err != nil:
			return fmt.Errorf("sweep: point %d (%.3f kHz): %w", k, f, err)
		default:
			gammas[k], faults[k] = g, nil
		}
	}

	return nil
}

// SweepInto runs Sweep into res. Corrected values are cleared.
func (s *Sweeper) SweepInto(res *Result, averages int, measure MeasureFunc) error {
	clear(res.Corrected)
	return s.Sweep(averages, measure, res.Frequencies, res.Raw, res.Faults)
}

// IsFault reports whether err marks a single invalid measurement rather than
// a hardware failure.
func IsFault(err error) bool {
	return errors.Is(err, gamma.ErrMeasurementFault) || errors.Is(err, cal.ErrMeasurementFault)
}
