package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/gousb"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/hw"
	"github.com/snorklerjoe/breadboard-vna/hw/serialfe"
	"github.com/snorklerjoe/breadboard-vna/hw/usbadc"
	"github.com/snorklerjoe/breadboard-vna/internal/config"
	"github.com/snorklerjoe/breadboard-vna/internal/sim"
	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

// instrument is a measurer and sweeper wired to one backend.
type instrument struct {
	cfg      *config.Config
	measurer *gamma.Measurer
	sweeper  *sweep.Sweeper
	tuner    *sweep.Tuner

	// prompt asks for each calibration standard; attach restores the DUT
	// once calibration is done.
	prompt sweep.Prompt
	attach func(ctx context.Context) error

	closers []func() error
}

func (in *instrument) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		errs = append(errs, in.closers[i]())
	}

	return errors.Join(errs...)
}

// calibrate runs the three standard sweeps and then reattaches the DUT.
func (in *instrument) calibrate(ctx context.Context) (*sweep.Calibration, error) {
	c, err := in.sweeper.Calibrate(ctx, in.measurer.Measure, in.cfg.CalAverages, in.cfg.Standards(), in.prompt)
	if err != nil {
		return nil, err
	}

	if err := in.attach(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// simOptions configures the simulated backend.
type simOptions struct {
	dutOhms float64
	seed    uint64
}

// openInstrument wires the configured backend. Operator prompts for the
// board backend read lines from con.
func openInstrument(cfg *config.Config, log *slog.Logger, con *console, sopt simOptions) (*instrument, error) {
	switch cfg.Hardware.Backend {
	case config.BackendSim:
		return openSim(cfg, log, sopt)
	case config.BackendBoard:
		return openBoard(cfg, log, con)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Hardware.Backend)
	}
}

func openSim(cfg *config.Config, log *slog.Logger, sopt simOptions) (*instrument, error) {
	scfg := sim.DefaultConfig()
	scfg.PairRate = cfg.PairRate
	scfg.Bits = cfg.Acquire.Bits
	scfg.Seed = sopt.seed

	d := sim.New(scfg)

	tuner := d.Tuner(cfg.IF)
	tuner.Settle = cfg.FreqSettle

	in, err := assemble(cfg, log, d.Hardware(), tuner)
	if err != nil {
		return nil, err
	}

	in.prompt = d.Prompt(cfg.Standards())
	in.attach = func(context.Context) error {
		return d.ConnectImpedance(cplx.Real(sopt.dutOhms), cfg.Z0)
	}

	if err := in.attach(context.Background()); err != nil {
		return nil, err
	}

	return in, nil
}

func openBoard(cfg *config.Config, log *slog.Logger, con *console) (*instrument, error) {
	h := cfg.Hardware

	baud := h.Baud
	if baud == 0 {
		baud = serialfe.DefaultBaud
	}

	fe, err := serialfe.Open(h.SerialPort, baud)
	if err != nil {
		return nil, err
	}

	vid, pid := gousb.ID(usbadc.VendorID), gousb.ID(usbadc.ProductID)
	if h.USBVendor != 0 {
		vid = gousb.ID(h.USBVendor)
	}

	if h.USBProduct != 0 {
		pid = gousb.ID(h.USBProduct)
	}

	usb := gousb.NewContext()

	adc, err := usbadc.Open(usb, vid, pid)
	if err != nil {
		usb.Close()
		fe.Close()

		return nil, err
	}

	if err := adc.SetPairs(cfg.Acquire.Samples); err != nil {
		adc.Close()
		usb.Close()
		fe.Close()

		return nil, err
	}

	host := &hw.Host{}
	tuner := &sweep.Tuner{Source: fe, LO: fe, IF: cfg.IF, Settle: cfg.FreqSettle, Sleeper: host}
	hardware := gamma.Hardware{Receiver: fe, Source: acquire.NewInterleaved(adc), Platform: host}

	in, err := assemble(cfg, log, hardware, tuner)
	if err != nil {
		adc.Close()
		usb.Close()
		fe.Close()

		return nil, err
	}

	in.closers = []func() error{fe.Close, usb.Close, adc.Close}
	in.prompt = func(ctx context.Context, std cal.Standard) error {
		return con.ask(ctx, fmt.Sprintf("Connect the %s standard and press Enter", std))
	}
	in.attach = func(ctx context.Context) error {
		return con.ask(ctx, "Connect the device under test and press Enter")
	}

	return in, nil
}

func assemble(cfg *config.Config, log *slog.Logger, hardware gamma.Hardware, tuner *sweep.Tuner) (*instrument, error) {
	buf, err := acquire.NewBuffer(cfg.Acquire)
	if err != nil {
		return nil, err
	}

	ext, err := cfg.NewExtractor()
	if err != nil {
		return nil, err
	}

	m, err := gamma.New(hardware, buf, ext, cfg.Gamma(log))
	if err != nil {
		return nil, err
	}

	sw, err := sweep.New(cfg.Sweep, tuner, log)
	if err != nil {
		return nil, err
	}

	return &instrument{cfg: cfg, measurer: m, sweeper: sw, tuner: tuner}, nil
}

// console serialises operator input. Lines are read on their own goroutine
// so that waiting for one can be cancelled.
type console struct {
	out   io.Writer
	lines chan string
}

func newConsole(r io.Reader, out io.Writer) *console {
	c := &console{out: out, lines: make(chan string)}

	go func() {
		defer close(c.lines)

		sc := bufio.NewScanner(r)
		for sc.Scan() {
			c.lines <- strings.TrimSpace(sc.Text())
		}
	}()

	return c
}

// ask prints msg and waits for a line.
func (c *console) ask(ctx context.Context, msg string) error {
	infoc.Fprintf(c.out, "%s: ", msg)

	_, err := c.next(ctx)

	return err
}

// next returns the next line, io.EOF when input is exhausted or the context
// error.
func (c *console) next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}

		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
