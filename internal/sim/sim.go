// Package sim simulates the analog front end: a stimulus synthesizer, a
// quadrature receiver with a resettable local oscillator, a directional
// bridge with a configurable error box and a device under test.
//
// A Device satisfies every hardware interface the measurement chain needs,
// so the whole pipeline can run without a board attached.
package sim

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

// ErrNotTuned is returned by CaptureIQ before both oscillators are set.
var ErrNotTuned = errors.New("sim: source and LO must be tuned before capture")

// Config describes the simulated board.
type Config struct {
	PairRate     float64 // I/Q pair rate, kHz
	Amplitude    float64 // incident tone amplitude, ADC counts
	Offset       float64 // ADC mid-scale, counts
	Bits         int
	LOResolution float64 // LO tuning step, kHz; 0 tunes exactly
	Noise        float64 // uniform noise peak, counts
	Seed         uint64
	Delay        float64 // cable delay, ms, applied to both paths
	// Box returns the bridge error terms at a frequency. Nil means an ideal
	// bridge.
	Box func(khz float64) cal.ErrorTerms
	// ExhaustEvery makes every n-th capture fail with
	// acquire.ErrResourceExhausted. Zero disables it.
	ExhaustEvery int
}

// DefaultConfig returns a 250 kHz pair rate, a 12-bit converter driven to
// about 40% of full scale and 1 kHz LO steps, with a mild error box.
func DefaultConfig() Config {
	return Config{
		PairRate:     250,
		Amplitude:    800,
		Offset:       2048,
		Bits:         12,
		LOResolution: 1,
		Delay:        2e-5,
		Box:          TypicalBox,
	}
}

// TypicalBox is a plausible breadboard bridge: a little leakage rising with
// frequency, a poor source match and tracking that rolls off.
func TypicalBox(khz float64) cal.ErrorTerms {
	x := math.Log10(khz)
	e00 := cplx.FromPolar(0.02*x, 0.7*x)
	e11 := cplx.FromPolar(0.08, -0.5*x)
	tr := cplx.FromPolar(0.95-0.04*x, -0.3*x)

	return cal.ErrorTerms{E00: e00, E11: e11, DeltaE: e00.Mul(e11).Sub(tr)}
}

// Device is a simulated board. All methods are safe for concurrent use.
type Device struct {
	cfg Config

	mu       sync.Mutex
	dut      func(khz float64) cplx.Complex
	src, lo  float64
	path     gamma.Path
	phase    float64
	rng      *rand.Rand
	captures int
	slept    time.Duration
}

// New returns a Device with an open circuit connected.
func New(cfg Config) *Device {
	d := &Device{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
	d.ConnectGamma(cplx.One)

	return d
}

// Connect attaches a device under test whose reflection coefficient depends
// on frequency.
func (d *Device) Connect(dut func(khz float64) cplx.Complex) {
	d.mu.Lock()
	d.dut = dut
	d.mu.Unlock()
}

// ConnectGamma attaches a device with a constant reflection coefficient.
func (d *Device) ConnectGamma(g cplx.Complex) {
	d.Connect(func(float64) cplx.Complex { return g })
}

// ConnectImpedance attaches a lumped impedance in a z0 system.
func (d *Device) ConnectImpedance(z cplx.Complex, z0 float64) error {
	zn := cplx.Real(z0)

	g, err := z.Sub(zn).Div(z.Add(zn))
	if err != nil {
		return err
	}

	d.ConnectGamma(g)

	return nil
}

// Prompt returns a calibration prompt that connects each requested standard.
func (d *Device) Prompt(std cal.Standards) sweep.Prompt {
	return func(ctx context.Context, which cal.Standard) error {
		d.ConnectGamma(std.Get(which))
		return ctx.Err()
	}
}

// Hardware returns the device wired as a measurer's collaborators.
func (d *Device) Hardware() gamma.Hardware {
	return gamma.Hardware{Receiver: d, Source: d, Platform: d}
}

// Tuner returns a frequency plan that keeps the given IF between source
// and LO.
func (d *Device) Tuner(ifKHz float64) *sweep.Tuner {
	return &sweep.Tuner{Source: d, LO: d, IF: ifKHz, Settle: sweep.DefaultSettle, Sleeper: d}
}

// SetFrequency tunes the stimulus exactly.
func (d *Device) SetFrequency(khz float64) (float64, error) {
	d.mu.Lock()
	d.src = khz
	d.mu.Unlock()

	return khz, nil
}

// SetLOFrequency tunes the LO to the nearest LOResolution step.
func (d *Device) SetLOFrequency(khz float64) (float64, error) {
	if r := d.cfg.LOResolution; r > 0 {
		khz = math.Round(khz/r) * r
	}

	d.mu.Lock()
	d.lo = khz
	d.mu.Unlock()

	return khz, nil
}

// Select switches the receiver input.
func (d *Device) Select(p gamma.Path) error {
	d.mu.Lock()
	d.path = p
	d.mu.Unlock()

	return nil
}

// ResetPhase restarts the LO at zero phase.
func (d *Device) ResetPhase() error {
	d.mu.Lock()
	d.phase = 0
	d.mu.Unlock()

	return nil
}

// Sleep records the delay without blocking.
func (d *Device) Sleep(dur time.Duration) {
	d.mu.Lock()
	d.slept += dur
	d.mu.Unlock()
}

// Slept returns the total delay requested so far.
func (d *Device) Slept() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.slept
}

// Critical runs fn directly.
func (d *Device) Critical(fn func()) { fn() }

// Captures returns the number of CaptureIQ calls so far.
func (d *Device) Captures() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.captures
}

// CaptureIQ synthesizes one burst of the IF tone on the selected path.
func (d *Device) CaptureIQ(i, q []uint16) error {
	if len(i) != len(q) {
		return acquire.ErrLengthMismatch
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.captures++
	if n := d.cfg.ExhaustEvery; n > 0 && d.captures%n == 0 {
		return acquire.ErrResourceExhausted
	}

	if d.src == 0 || d.lo == 0 {
		return ErrNotTuned
	}

	ph := cplx.FromPolar(d.cfg.Amplitude, d.phase-2*math.Pi*d.src*d.cfg.Delay)

	if d.path == gamma.Reflected {
		box := cal.Identity()
		if d.cfg.Box != nil {
			box = d.cfg.Box(d.src)
		}

		gm, err := box.Measured(d.dut(d.src))
		if err != nil {
			return err
		}

		ph = ph.Mul(gm)
	}

	step := 2 * math.Pi * (d.src - d.lo) / d.cfg.PairRate
	top := float64(uint32(1)<<d.cfg.Bits - 1)

	for k := range i {
		s, c := math.Sincos(step * float64(k))
		tone := ph.Mul(cplx.New(c, s))
		i[k] = d.count(tone.Re, top)
		q[k] = d.count(tone.Im, top)
	}

	// A free-running LO starts the next burst at an unrelated phase.
	d.phase += 1.9

	return nil
}

func (d *Device) count(v, top float64) uint16 {
	v += d.cfg.Offset
	if d.cfg.Noise > 0 {
		v += (d.rng.Float64()*2 - 1) * d.cfg.Noise
	}

	return uint16(math.Max(0, math.Min(top, math.Round(v))))
}
