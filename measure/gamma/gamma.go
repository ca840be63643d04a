// Package gamma measures the raw (uncorrected) reflection coefficient at the
// current stimulus frequency.
//
// One repeat measures the incident and reflected phasors back to back and
// forms Γ = P_refl / P_ref. Measure repeats that, drops repeats that faulted,
// discards the single repeat furthest from the mean when more than two
// remain, and averages the rest.
package gamma

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/dsp/phasor"
	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
)

// Errors returned by the measurer.
var (
	ErrMeasurementFault = errors.New("gamma: measurement fault")
	ErrInvalidAverages  = errors.New("gamma: number of averages must be >= 1")
	ErrInvalidGain      = errors.New("gamma: bridge gain must be positive")
	ErrInvalidSettle    = errors.New("gamma: settle delay must be >= 0")
	ErrMissingHardware  = errors.New("gamma: receiver, source and platform are required")
)

// Path selects which bridge port feeds the receiver.
type Path int

// Receiver paths.
const (
	Incident Path = iota
	Reflected
)

func (p Path) String() string {
	if p == Incident {
		return "incident"
	}

	return "reflected"
}

// Receiver switches the receiver input and resets its local oscillator.
type Receiver interface {
	Select(p Path) error
	ResetPhase() error
}

// Platform supplies blocking delays and the atomic timing-critical section.
//
// Critical must run fn with pre-emption suppressed. fn only resets the
// oscillator phase and starts a burst, so the section lasts microseconds.
type Platform interface {
	Sleep(d time.Duration)
	Critical(fn func())
}

// Hardware bundles the collaborators a Measurer drives.
type Hardware struct {
	Receiver Receiver
	Source   acquire.Source
	Platform Platform
}

// Config holds measurement parameters.
type Config struct {
	// Settle is the delay after switching paths before capturing.
	Settle time.Duration
	// BridgeGain multiplies the reflected phasor to compensate the
	// bridge's reflected-path loss.
	BridgeGain float64
	// MinReference is the smallest |P_ref| accepted as a valid reference.
	MinReference float64
	// Logger receives fault reports. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a 2 ms settle, unity bridge gain and a reference
// floor of 1e-6 counts.
func DefaultConfig() Config {
	return Config{
		Settle:       2 * time.Millisecond,
		BridgeGain:   1,
		MinReference: 1e-6,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Settle < 0 {
		return ErrInvalidSettle
	}

	if c.BridgeGain <= 0 {
		return ErrInvalidGain
	}

	return nil
}

// Measurer takes raw Γ measurements. It owns its acquisition buffer and
// extractor and is used by one goroutine at a time.
type Measurer struct {
	hw  Hardware
	buf *acquire.Buffer
	ext phasor.Extractor
	cfg Config
	log *slog.Logger
}

// New returns a Measurer.
func New(hw Hardware, buf *acquire.Buffer, ext phasor.Extractor, cfg Config) (*Measurer, error) {
	if hw.Receiver == nil || hw.Source == nil || hw.Platform == nil || buf == nil || ext == nil {
		return nil, ErrMissingHardware
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Measurer{hw: hw, buf: buf, ext: ext, cfg: cfg, log: log}, nil
}

// MeasureOnce takes one raw Γ. A near-zero reference phasor or a failed
// division yields an error wrapping ErrMeasurementFault; hardware errors are
// returned as-is.
func (m *Measurer) MeasureOnce() (cplx.Complex, error) {
	ref, err := m.phasor(Incident)
	if err != nil {
		return cplx.Zero, err
	}

	refl, err := m.phasor(Reflected)
	if err != nil {
		return cplx.Zero, err
	}

	if ref.Abs() < m.cfg.MinReference {
		return cplx.Zero, fmt.Errorf("%w: |P_ref| = %g", ErrMeasurementFault, ref.Abs())
	}

	g, err := refl.Scale(m.cfg.BridgeGain).Div(ref)
	if err != nil {
		return cplx.Zero, fmt.Errorf("%w: %w", ErrMeasurementFault, err)
	}

	return g, nil
}

// Measure takes n repeats and returns their outlier-rejected mean.
//
// Repeats that fault are excluded. If every repeat faults the result is
// ErrMeasurementFault. Any other error aborts immediately.
func (m *Measurer) Measure(n int) (cplx.Complex, error) {
	if n < 1 {
		return cplx.Zero, ErrInvalidAverages
	}

	repeats := make([]cplx.Complex, 0, n)

	var lastFault error

	for range n {
		g, err := m.MeasureOnce()
		if errors.Is(err, ErrMeasurementFault) {
			lastFault = err
			m.log.Warn("repeat faulted", "err", err)

			continue
		}

		if err != nil {
			return cplx.Zero, err
		}

		repeats = append(repeats, g)
	}

	if len(repeats) == 0 {
		return cplx.Zero, fmt.Errorf("gamma: all %d repeats faulted: %w", n, lastFault)
	}

	return RejectOutlier(repeats), nil
}

// LevelCheck captures one burst on path p and returns the peak-to-peak level
// as a fraction of ADC full scale. Values near 1 indicate clipping.
func (m *Measurer) LevelCheck(p Path) (float64, error) {
	if err := m.selectPath(p); err != nil {
		return 0, err
	}

	if err := m.buf.Capture(m.hw.Source); err != nil {
		return 0, err
	}

	return m.buf.Level(), nil
}

func (m *Measurer) phasor(p Path) (cplx.Complex, error) {
	if err := m.selectPath(p); err != nil {
		return cplx.Zero, err
	}

	if err := m.buf.CaptureArmed(m.hw.Source, m.arm); err != nil {
		return cplx.Zero, fmt.Errorf("gamma: %s capture: %w", p, err)
	}

	i, q := m.buf.Processed()

	ph, err := m.ext.Extract(i, q)
	if err != nil {
		return cplx.Zero, fmt.Errorf("gamma: %s phasor: %w", p, err)
	}

	return ph, nil
}

func (m *Measurer) selectPath(p Path) error {
	if err := m.hw.Receiver.Select(p); err != nil {
		return fmt.Errorf("gamma: select %s: %w", p, err)
	}

	m.hw.Platform.Sleep(m.cfg.Settle)

	return nil
}

// arm resets the oscillator phase and, when the source supports it, starts
// the burst, all inside the platform's critical section.
func (m *Measurer) arm() error {
	var err error

	m.hw.Platform.Critical(func() {
		err = m.hw.Receiver.ResetPhase()
		if err != nil {
			return
		}

		if a, ok := m.hw.Source.(acquire.Armer); ok {
			err = a.Arm()
		}
	})

	return err
}

// RejectOutlier returns the mean of values after discarding the single value
// furthest from their mean. With two or fewer values it returns the plain
// mean. Exactly one value is discarded however many deviate.
func RejectOutlier(values []cplx.Complex) cplx.Complex {
	mean := cplx.Mean(values)
	if len(values) <= 2 {
		return mean
	}

	worst := 0
	worstDist := -1.0

	for k, v := range values {
		if d := v.Dist(mean); d > worstDist {
			worst, worstDist = k, d
		}
	}

	var sum cplx.Complex
	for k, v := range values {
		if k != worst {
			sum = sum.Add(v)
		}
	}

	return sum.Scale(1 / float64(len(values)-1))
}
