// Package usbadc reads I/Q sample bursts from the acquisition board over a
// USB bulk pipe.
//
// Every request is a 4-byte header (command, flags, little-endian uint16
// payload length) followed by the payload. A capture request carries the
// number of sample pairs; the board answers with one status byte and, on
// success, 4 bytes per pair: little-endian uint16 I then Q.
package usbadc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
)

// USB identifiers of the acquisition board.
const (
	VendorID  = 0x2E8A
	ProductID = 0x000A
)

// Endpoint numbers.
const (
	EndpointIn  = 1
	EndpointOut = 1
)

// DefaultTimeout bounds a single bulk transfer.
const DefaultTimeout = time.Second

// Protocol bytes.
const (
	cmdCapture = 0x01

	statusOK   = 0x00
	statusBusy = 0x01
)

// Errors returned by the device.
var (
	ErrNotFound      = errors.New("usbadc: device not found")
	ErrShortTransfer = errors.New("usbadc: short transfer")
	ErrStatus        = errors.New("usbadc: device reported an error")
	ErrBurstLength   = errors.New("usbadc: burst length must be even and fit in 16 bits")
)

// BulkIn is the receive half of a bulk pipe. *gousb.InEndpoint satisfies it.
type BulkIn interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// BulkOut is the send half of a bulk pipe. *gousb.OutEndpoint satisfies it.
type BulkOut interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Device is an acquisition board. It implements acquire.BurstReader and
// acquire.Armer and is not safe for concurrent use.
type Device struct {
	in      BulkIn
	out     BulkOut
	timeout time.Duration

	armed int // pairs requested by the pending Arm, 0 when idle
	frame []byte

	closers []func() error
}

// NewDevice returns a Device speaking over an already opened pipe.
func NewDevice(in BulkIn, out BulkOut, timeout time.Duration) *Device {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Device{in: in, out: out, timeout: timeout}
}

// Open finds the first board with the given IDs, claims its default
// interface and returns it ready for capture.
func Open(ctx *gousb.Context, vid, pid gousb.ID) (*Device, error) {
	usbDev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("usbadc: open %s:%s: %w", vid, pid, err)
	}

	if usbDev == nil {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, vid, pid)
	}

	if err := usbDev.SetAutoDetach(true); err != nil {
		usbDev.Close()
		return nil, fmt.Errorf("usbadc: auto detach: %w", err)
	}

	cfg, err := usbDev.Config(1)
	if err != nil {
		usbDev.Close()
		return nil, fmt.Errorf("usbadc: configuration: %w", err)
	}

	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		usbDev.Close()

		return nil, fmt.Errorf("usbadc: claim interface: %w", err)
	}

	epIn, err := iface.InEndpoint(EndpointIn)
	if err != nil {
		iface.Close()
		cfg.Close()
		usbDev.Close()

		return nil, fmt.Errorf("usbadc: IN endpoint: %w", err)
	}

	epOut, err := iface.OutEndpoint(EndpointOut)
	if err != nil {
		iface.Close()
		cfg.Close()
		usbDev.Close()

		return nil, fmt.Errorf("usbadc: OUT endpoint: %w", err)
	}

	d := NewDevice(epIn, epOut, DefaultTimeout)
	d.closers = []func() error{
		func() error { iface.Close(); return nil },
		cfg.Close,
		usbDev.Close,
	}

	return d, nil
}

// Close releases the interface and the device.
func (d *Device) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}

	d.closers = nil

	return errors.Join(errs...)
}

// SetPairs fixes the burst length used by Arm.
func (d *Device) SetPairs(pairs int) error {
	if pairs <= 0 || pairs > 0xFFFF {
		return ErrBurstLength
	}

	d.frame = make([]byte, 1+4*pairs)

	return nil
}

// Arm sends the capture request so the board starts sampling immediately.
func (d *Device) Arm() error {
	pairs := (len(d.frame) - 1) / 4
	if pairs <= 0 {
		return ErrBurstLength
	}

	req := make([]byte, 4+2)
	req[0] = cmdCapture
	binary.LittleEndian.PutUint16(req[2:4], 2)
	binary.LittleEndian.PutUint16(req[4:6], uint16(pairs))

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	n, err := d.out.WriteContext(ctx, req)
	if err != nil {
		return fmt.Errorf("usbadc: send capture: %w", err)
	}

	if n != len(req) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortTransfer, n, len(req))
	}

	d.armed = pairs

	return nil
}

// ReadBurst implements acquire.BurstReader. It arms the board first unless
// Arm was already called for a burst of this length.
func (d *Device) ReadBurst(raw []uint16) error {
	if len(raw)%2 != 0 || len(raw) == 0 {
		return ErrBurstLength
	}

	pairs := len(raw) / 2
	if d.armed != pairs {
		if err := d.SetPairs(pairs); err != nil {
			return err
		}

		if err := d.Arm(); err != nil {
			return err
		}
	}

	d.armed = 0

	if err := d.readFrame(); err != nil {
		return err
	}

	switch d.frame[0] {
	case statusOK:
	case statusBusy:
		return fmt.Errorf("usbadc: %w", acquire.ErrResourceExhausted)
	default:
		return fmt.Errorf("%w: status 0x%02x", ErrStatus, d.frame[0])
	}

	body := d.frame[1:]
	for k := range raw {
		raw[k] = binary.LittleEndian.Uint16(body[2*k:])
	}

	return nil
}

// readFrame fills d.frame, accepting a busy status without a body.
func (d *Device) readFrame() error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	got := 0
	for got < len(d.frame) {
		n, err := d.in.ReadContext(ctx, d.frame[got:])
		if err != nil {
			return fmt.Errorf("usbadc: read burst: %w", err)
		}

		if n == 0 {
			return fmt.Errorf("%w: %d of %d bytes", ErrShortTransfer, got, len(d.frame))
		}

		got += n
		if d.frame[0] != statusOK {
			return nil
		}
	}

	return nil
}
