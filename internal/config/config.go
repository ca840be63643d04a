// Package config holds the instrument's runtime configuration and its JSON
// file form.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/snorklerjoe/breadboard-vna/dsp/phasor"
	"github.com/snorklerjoe/breadboard-vna/dsp/window"
	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
	"github.com/snorklerjoe/breadboard-vna/measure/live"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

// Extractor names.
const (
	ExtractorDDC      = "ddc"
	ExtractorFFT      = "fft"
	ExtractorRMS      = "rms"
	ExtractorGoertzel = "goertzel"
)

// Hardware backends.
const (
	BackendSim   = "sim"
	BackendBoard = "board"
)

// Defaults.
const (
	DefaultAverages    = 4
	DefaultCalAverages = 4
	DefaultIF          = 10.0  // kHz
	DefaultPairRate    = 250.0 // kHz, 500 kS/s aggregate
	DefaultSettle      = 2 * time.Millisecond
	DefaultBridgeGain  = 1.0
	DefaultZ0          = 50.0
	DefaultWindow      = "hann"
)

// Errors returned by configuration.
var (
	ErrInvalidAverages  = errors.New("config: averages must be >= 1")
	ErrInvalidIF        = errors.New("config: IF must be positive and below the Nyquist limit of the pair rate")
	ErrInvalidExtractor = errors.New("config: unknown extractor")
	ErrInvalidBackend   = errors.New("config: unknown hardware backend")
	ErrInvalidLoad      = errors.New("config: load and reference impedance must be positive")
	ErrNoSerialPort     = errors.New("config: board backend needs a serial port")
	ErrConfigVersion    = errors.New("config: unsupported config file version")
)

// Hardware selects and addresses the measurement hardware.
type Hardware struct {
	Backend    string
	SerialPort string
	Baud       int
	USBVendor  uint16
	USBProduct uint16
}

// Config is the runtime configuration.
type Config struct {
	Sweep       sweep.Setup
	Averages    int
	CalAverages int

	IF         float64 // kHz
	PairRate   float64 // kHz
	Extractor  string
	Window     string // FFT extractor taper, see window.Parse
	Acquire    acquire.Config
	Settle     time.Duration // after a path switch
	FreqSettle time.Duration // after a frequency change
	BridgeGain float64

	LoadOhms float64 // actual resistance of the load standard
	Z0       float64

	Hardware Hardware
}

// Default returns the reference instrument configuration.
func Default() *Config {
	return &Config{
		Sweep:       sweep.DefaultSetup(),
		Averages:    DefaultAverages,
		CalAverages: DefaultCalAverages,
		IF:          DefaultIF,
		PairRate:    DefaultPairRate,
		Extractor:   ExtractorDDC,
		Window:      DefaultWindow,
		Acquire:     acquire.DefaultConfig(),
		Settle:      DefaultSettle,
		FreqSettle:  sweep.DefaultSettle,
		BridgeGain:  DefaultBridgeGain,
		LoadOhms:    DefaultZ0,
		Z0:          DefaultZ0,
		Hardware:    Hardware{Backend: BackendSim},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Sweep.Validate(); err != nil {
		return err
	}

	if c.Averages < 1 || c.CalAverages < 1 {
		return ErrInvalidAverages
	}

	if c.IF <= 0 || c.PairRate <= 0 || c.IF >= c.PairRate/2 {
		return fmt.Errorf("%w: IF %g kHz, pair rate %g kHz", ErrInvalidIF, c.IF, c.PairRate)
	}

	switch c.Extractor {
	case ExtractorDDC, ExtractorFFT, ExtractorRMS, ExtractorGoertzel:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExtractor, c.Extractor)
	}

	if _, err := window.Parse(c.Window); err != nil {
		return err
	}

	if err := c.Acquire.Validate(); err != nil {
		return err
	}

	if err := c.Gamma(nil).Validate(); err != nil {
		return err
	}

	if c.LoadOhms <= 0 || c.Z0 <= 0 {
		return ErrInvalidLoad
	}

	switch c.Hardware.Backend {
	case BackendSim:
	case BackendBoard:
		if c.Hardware.SerialPort == "" {
			return ErrNoSerialPort
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Hardware.Backend)
	}

	return nil
}

// Gamma returns the measurer configuration.
func (c *Config) Gamma(log *slog.Logger) gamma.Config {
	g := gamma.DefaultConfig()
	g.Settle = c.Settle
	g.BridgeGain = c.BridgeGain
	g.Logger = log

	return g
}

// Live returns the loop configuration.
func (c *Config) Live(log *slog.Logger) live.Config {
	return live.Config{
		Averages:    c.Averages,
		CalAverages: c.CalAverages,
		Standards:   c.Standards(),
		Logger:      log,
	}
}

// Standards returns the calibration standards, with the load at its
// configured resistance.
func (c *Config) Standards() cal.Standards {
	return cal.StandardsWithLoad(c.LoadOhms, c.Z0)
}

// NewExtractor builds the configured phasor extractor.
func (c *Config) NewExtractor() (phasor.Extractor, error) {
	step := phasor.PhaseStep(c.IF, c.PairRate)

	switch c.Extractor {
	case ExtractorDDC:
		return phasor.NewDownconverter(step), nil
	case ExtractorRMS:
		return phasor.NewRMS(step), nil
	case ExtractorGoertzel:
		return phasor.NewGoertzel(step), nil
	case ExtractorFFT:
		win, err := window.Parse(c.Window)
		if err != nil {
			return nil, err
		}

		sb, err := phasor.NewSingleBin(floorPow2(c.Acquire.Window()), c.IF, c.PairRate, win)
		if err != nil {
			return nil, err
		}

		return sb, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidExtractor, c.Extractor)
	}
}

// floorPow2 returns the largest power of two not above n, or 0.
func floorPow2(n int) int {
	if n <= 0 {
		return 0
	}

	p := 1
	for p*2 <= n {
		p *= 2
	}

	return p
}
