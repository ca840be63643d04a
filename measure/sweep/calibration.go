package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
)

// frequencyTolerance is the largest difference in kHz between a measured and
// a calibrated point that still counts as the same frequency.
const frequencyTolerance = 1e-6

// Prompt asks the operator to connect a standard and blocks until it is in
// place. Returning an error aborts the calibration.
type Prompt func(ctx context.Context, std cal.Standard) error

// Calibration is a complete per-point calibration for one sweep setup.
type Calibration struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	Setup       Setup
	Standards   cal.Standards
	Frequencies []float64
	Short       []cplx.Complex
	Open        []cplx.Complex
	Load        []cplx.Complex
	Terms       []cal.ErrorTerms
}

// CalibrateSweep solves error terms at every point from the measured
// standards. A degenerate point fails the whole calibration.
func CalibrateSweep(std cal.Standards, short, open, load []cplx.Complex) ([]cal.ErrorTerms, error) {
	n := len(short)
	if n == 0 || len(open) != n || len(load) != n {
		return nil, fmt.Errorf("%w: standard sweeps have lengths %d/%d/%d",
			cal.ErrCalibrationInvalid, len(short), len(open), len(load))
	}

	terms := make([]cal.ErrorTerms, n)

	for k := range terms {
		t, err := std.Calibrate(short[k], open[k], load[k])
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", k, err)
		}

		terms[k] = t
	}

	return terms, nil
}

// ApplySweep writes the corrected Γ of every point into dst. Points whose
// fault is already set are skipped; a point whose correction faults gets
// the fault recorded in faults. Only structural problems are returned.
func ApplySweep(dst, raw []cplx.Complex, terms []cal.ErrorTerms, faults []error) error {
	if terms == nil {
		return fmt.Errorf("%w: not calibrated", cal.ErrCalibrationInvalid)
	}

	n := len(raw)
	if len(terms) != n || len(dst) != n || len(faults) != n {
		return fmt.Errorf("%w: %d raw points, %d error terms", cal.ErrCalibrationInvalid, n, len(terms))
	}

	for k := range raw {
		if faults[k] != nil {
			dst[k] = cplx.Zero
			continue
		}

		g, err := cal.Apply(raw[k], terms[k])
		if err != nil {
			faults[k] = fmt.Errorf("point %d: %w", k, err)
		}

		dst[k] = g
	}

	return nil
}

// Apply corrects res in place. The result must have been measured on the
// same frequency grid as the calibration.
func (c *Calibration) Apply(res *Result) error {
	if c == nil {
		return fmt.Errorf("%w: not calibrated", cal.ErrCalibrationInvalid)
	}

	if len(res.Frequencies) != len(c.Frequencies) {
		return fmt.Errorf("%w: %d points measured, %d calibrated",
			cal.ErrCalibrationInvalid, len(res.Frequencies), len(c.Frequencies))
	}

	for k, f := range res.Frequencies {
		if math.Abs(f-c.Frequencies[k]) > frequencyTolerance {
			return fmt.Errorf("%w: point %d measured at %.3f kHz, calibrated at %.3f kHz",
				cal.ErrCalibrationInvalid, k, f, c.Frequencies[k])
		}
	}

	return ApplySweep(res.Corrected, res.Raw, c.Terms, res.Faults)
}

// Calibrate prompts for each standard in cal.Order, sweeps it with the given
// number of averages and solves the error terms at every point. Any faulted
// point in a standard sweep, or a frequency grid that moves between
// standards, invalidates the calibration.
func (s *Sweeper) Calibrate(ctx context.Context, measure MeasureFunc, averages int, std cal.Standards, prompt Prompt) (*Calibration, error) {
	n := len(s.targets)
	c := &Calibration{
		ID:          uuid.New(),
		CreatedAt:   time.Now(),
		Setup:       s.setup,
		Standards:   std,
		Frequencies: make([]float64, n),
	}

	freqs := make([]float64, n)
	faults := make([]error, n)

	for _, which := range cal.Order {
		if prompt != nil {
			if err := prompt(ctx, which); err != nil {
				return nil, fmt.Errorf("sweep: %s prompt: %w", which, err)
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gammas := make([]cplx.Complex, n)
		if err := s.Sweep(averages, measure, freqs, gammas, faults); err != nil {
			return nil, fmt.Errorf("sweep: %s standard: %w", which, err)
		}

		if err := errors.Join(faults...); err != nil {
			return nil, fmt.Errorf("%w: %s standard faulted: %w", cal.ErrCalibrationInvalid, which, err)
		}

		if which == cal.Order[0] {
			copy(c.Frequencies, freqs)
		} else if !sameGrid(freqs, c.Frequencies) {
			return nil, fmt.Errorf("%w: frequency grid changed during %s", cal.ErrCalibrationInvalid, which)
		}

		s.log.Info("standard measured", "standard", which.String(), "points", n)

		switch which {
		case cal.Short:
			c.Short = gammas
		case cal.Open:
			c.Open = gammas
		case cal.Load:
			c.Load = gammas
		}
	}

	terms, err := CalibrateSweep(std, c.Short, c.Open, c.Load)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	c.Terms = terms
	s.log.Info("calibration complete", "id", c.ID.String(), "points", n)

	return c, nil
}

func sameGrid(a, b []float64) bool {
	for k := range a {
		if math.Abs(a[k]-b[k]) > frequencyTolerance {
			return false
		}
	}

	return true
}
