// Package acquire captures raw I/Q sample bursts and conditions them for
// phasor extraction.
//
// A burst is captured into an owned Buffer that is reused for every
// measurement. After capture the arithmetic mean of each channel over the
// processed window is removed from every sample in that channel. The
// processed window is the trailing part of the burst; the leading Discard
// sample pairs are treated as pre-steady-state transient and are ignored by
// every downstream computation.
package acquire

import (
	"errors"
	"fmt"
)

// Errors returned by acquisition.
var (
	ErrResourceExhausted = errors.New("acquire: transfer resource unavailable")
	ErrInvalidLength     = errors.New("acquire: burst length must be positive")
	ErrInvalidDiscard    = errors.New("acquire: discard must leave a non-empty processed window")
	ErrInvalidRetries    = errors.New("acquire: retries must be >= 0")
	ErrInvalidBits       = errors.New("acquire: ADC resolution must be between 1 and 16 bits")
	ErrLengthMismatch    = errors.New("acquire: I and Q buffers differ in length")
)

// Source performs one blocking burst capture of len(i) sample pairs,
// alternating between the I and Q inputs. Implementations return an error
// wrapping ErrResourceExhausted when the transfer resource (DMA channel,
// USB transfer slot) cannot be claimed; the capture may then be retried.
type Source interface {
	CaptureIQ(i, q []uint16) error
}

// Armer is implemented by sources that can start a burst separately from
// collecting it. Arm takes the first sample immediately and returns; the next
// CaptureIQ blocks until the armed burst completes.
type Armer interface {
	Arm() error
}

// Config describes the burst geometry.
type Config struct {
	Samples int // sample pairs per burst
	Discard int // leading pairs treated as transient
	Retries int // extra attempts after ErrResourceExhausted
	Bits    int // ADC resolution, used for level reporting
}

// DefaultConfig returns the geometry of the reference hardware: 1024 pairs,
// 32 discarded, 12-bit converter.
func DefaultConfig() Config {
	return Config{
		Samples: 1024,
		Discard: 32,
		Retries: 3,
		Bits:    12,
	}
}

// Validate checks that the configuration leaves a usable processed window.
func (c Config) Validate() error {
	if c.Samples <= 0 {
		return ErrInvalidLength
	}

	if c.Discard < 0 || c.Discard >= c.Samples {
		return ErrInvalidDiscard
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if c.Bits < 1 || c.Bits > 16 {
		return ErrInvalidBits
	}

	return nil
}

// Window returns the number of sample pairs in the processed window.
func (c Config) Window() int {
	return c.Samples - c.Discard
}

// Buffer owns the sample memory for one acquisition chain. It is not safe for
// concurrent use; a measurement worker holds exactly one.
type Buffer struct {
	cfg  Config
	rawI []uint16
	rawQ []uint16
	i    []float64
	q    []float64

	meanI, meanQ float64
}

// NewBuffer allocates a buffer for cfg.
func NewBuffer(cfg Config) (*Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Buffer{
		cfg:  cfg,
		rawI: make([]uint16, cfg.Samples),
		rawQ: make([]uint16, cfg.Samples),
		i:    make([]float64, cfg.Samples),
		q:    make([]float64, cfg.Samples),
	}, nil
}

// Config returns the buffer geometry.
func (b *Buffer) Config() Config { return b.cfg }

// Capture runs one burst on src and removes the per-channel DC bias.
// It blocks for the full burst and is not cancellable.
func (b *Buffer) Capture(src Source) error {
	return b.CaptureArmed(src, nil)
}

// CaptureArmed is Capture with a hook that runs immediately before every
// attempt, including retries. Measurements use it to reset the receiver phase
// and start the burst inside one timing-critical section. An error from arm
// aborts the capture; an arm error wrapping ErrResourceExhausted is retried.
func (b *Buffer) CaptureArmed(src Source, arm func() error) error {
	var err error

	for attempt := 0; attempt <= b.cfg.Retries; attempt++ {
		err = nil
		if arm != nil {
			err = arm()
		}

		if err == nil {
			err = src.CaptureIQ(b.rawI, b.rawQ)
		}

		if err == nil {
			break
		}

		if !errors.Is(err, ErrResourceExhausted) {
			return fmt.Errorf("acquire: capture failed: %w", err)
		}
	}

	if err != nil {
		return fmt.Errorf("acquire: %d attempts: %w", b.cfg.Retries+1, err)
	}

	b.meanI = removeBias(b.i, b.rawI, b.cfg.Discard)
	b.meanQ = removeBias(b.q, b.rawQ, b.cfg.Discard)

	return nil
}

// Processed returns the bias-free trailing window of the last capture.
// The slices alias the buffer and are overwritten by the next Capture.
func (b *Buffer) Processed() (i, q []float64) {
	d := b.cfg.Discard
	return b.i[d:], b.q[d:]
}

// Samples returns the full bias-free burst including the transient.
func (b *Buffer) Samples() (i, q []float64) {
	return b.i, b.q
}

// Raw returns the unsigned counts of the last capture.
func (b *Buffer) Raw() (i, q []uint16) {
	return b.rawI, b.rawQ
}

// Bias returns the means removed from the I and Q channels by the last capture.
func (b *Buffer) Bias() (i, q float64) {
	return b.meanI, b.meanQ
}

// Level returns the larger of the I and Q peak-to-peak excursions over the
// processed window, as a fraction of ADC full scale. 1.0 means the converter
// is clipping.
func (b *Buffer) Level() float64 {
	d := b.cfg.Discard
	full := float64(uint32(1) << b.cfg.Bits)

	return max(peakToPeak(b.rawI[d:]), peakToPeak(b.rawQ[d:])) / full
}

// removeBias converts raw into dst, subtracting the mean of raw[discard:]
// from every sample. It returns the mean.
func removeBias(dst []float64, raw []uint16, discard int) float64 {
	var sum float64
	for _, v := range raw[discard:] {
		sum += float64(v)
	}

	mean := sum / float64(len(raw)-discard)

	for k, v := range raw {
		dst[k] = float64(v) - mean
	}

	return mean
}

func peakToPeak(x []uint16) float64 {
	if len(x) == 0 {
		return 0
	}

	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	return float64(hi - lo)
}
