// Package live runs the continuous measurement loop.
//
// A single worker goroutine owns the hardware. It calibrates on request,
// sweeps continuously once calibrated and publishes each corrected sweep to
// a SharedBuffer that any number of presenters poll.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

// Errors returned by the loop.
var (
	ErrInvalidAverages = errors.New("live: averages must be >= 1")
	ErrMissingSweeper  = errors.New("live: sweeper and measure function are required")
)

// Config holds loop parameters.
type Config struct {
	Averages    int // repeats per point during live sweeps
	CalAverages int // repeats per point while measuring standards
	Standards   cal.Standards
	Logger      *slog.Logger
}

// DefaultConfig returns 4 averages for both live and calibration sweeps and
// ideal standards.
func DefaultConfig() Config {
	return Config{Averages: 4, CalAverages: 4, Standards: cal.Ideal()}
}

type calRequest struct {
	ctx    context.Context
	prompt sweep.Prompt
	attach func(context.Context) error
	reply  chan calReply
}

type calReply struct {
	c   *sweep.Calibration
	err error
}

// Loop is the measurement worker.
type Loop struct {
	sweeper *sweep.Sweeper
	measure sweep.MeasureFunc
	cfg     Config
	log     *slog.Logger
	buf     *SharedBuffer
	calReq  chan calRequest

	// Owned by Run.
	res   *sweep.Result
	cal   *sweep.Calibration
	stage Snapshot
}

// New returns a Loop that sweeps with sw and measures with measure.
func New(sw *sweep.Sweeper, measure sweep.MeasureFunc, cfg Config) (*Loop, error) {
	if sw == nil || measure == nil {
		return nil, ErrMissingSweeper
	}

	if cfg.Averages < 1 || cfg.CalAverages < 1 {
		return nil, ErrInvalidAverages
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	n := sw.Points()
	l := &Loop{
		sweeper: sw,
		measure: measure,
		cfg:     cfg,
		log:     log,
		buf:     NewSharedBuffer(n),
		calReq:  make(chan calRequest),
		res:     sw.NewResult(),
	}
	l.stage.resize(n)

	return l, nil
}

// Buffer returns the buffer completed sweeps are published to.
func (l *Loop) Buffer() *SharedBuffer { return l.buf }

// Run owns the hardware until ctx is done. It waits for the first
// calibration, then sweeps continuously, serving recalibration requests
// between sweeps. A sweep in progress always completes; ctx is only checked
// between sweeps. Hardware errors end the loop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if l.cal == nil {
			l.log.Info("waiting for calibration")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case req := <-l.calReq:
				l.serve(req)
			}

			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-l.calReq:
			l.serve(req)
			continue
		default:
		}

		if err := l.step(); err != nil {
			return err
		}
	}
}

// BeginCalibration asks the running loop to calibrate and waits for the
// result. prompt is called from the worker goroutine before each standard.
// attach, if not nil, is called on the worker after the last standard and
// before sweeping resumes, so the first sweep under the new calibration
// measures the reconnected DUT. If calibration or attach fails the previous
// calibration, if any, stays in effect.
func (l *Loop) BeginCalibration(ctx context.Context, prompt sweep.Prompt, attach func(context.Context) error) (*sweep.Calibration, error) {
	req := calRequest{ctx: ctx, prompt: prompt, attach: attach, reply: make(chan calReply, 1)}

	select {
	case l.calReq <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.c, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loop) serve(req calRequest) {
	c, err := l.sweeper.Calibrate(req.ctx, l.measure, l.cfg.CalAverages, l.cfg.Standards, req.prompt)
	if err == nil && req.attach != nil {
		if err = req.attach(req.ctx); err != nil {
			c = nil
			err = fmt.Errorf("live: attach: %w", err)
		}
	}

	if err != nil {
		l.log.Error("calibration failed", "err", err)
	} else {
		l.cal = c
	}

	req.reply <- calReply{c: c, err: err}
}

// step runs one corrected sweep and publishes it.
func (l *Loop) step() error {
	if err := l.sweeper.SweepInto(l.res, l.cfg.Averages, l.measure); err != nil {
		return fmt.Errorf("live: %w", err)
	}

	if err := l.cal.Apply(l.res); err != nil {
		return fmt.Errorf("live: %w", err)
	}

	l.publish()

	return nil
}

func (l *Loop) publish() {
	l.stage.Sequence++
	l.stage.Fill(l.res, l.cal.ID.String())
	l.buf.Publish(&l.stage)
}
