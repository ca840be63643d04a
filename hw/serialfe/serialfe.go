// Package serialfe drives the analog front end over its serial control line:
// the stimulus synthesizer, the receiver LO, the bridge path switch and the
// LO phase reset.
//
// The protocol is line based ASCII. Each command is answered by exactly one
// line, "OK" optionally followed by a value, or "ERR" followed by a message:
//
//	F 1500.000   ->  OK 1500.000   set stimulus, reply actual kHz
//	L 1490.000   ->  OK 1490.000   set LO, reply actual kHz
//	P I | P R    ->  OK            select incident or reflected path
//	R            ->  OK            reset LO phase
package serialfe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
)

// DefaultBaud is the control line speed.
const DefaultBaud = 115200

// DefaultTimeout bounds the wait for one reply line.
const DefaultTimeout = 500 * time.Millisecond

// Errors returned by the front end.
var (
	ErrRejected = errors.New("serialfe: command rejected")
	ErrProtocol = errors.New("serialfe: malformed reply")
	ErrTimeout  = errors.New("serialfe: reply timed out")
)

// inputResetter is implemented by serial.Port.
type inputResetter interface {
	ResetInputBuffer() error
}

// timeoutReader reports an empty read as ErrTimeout. A serial port returns
// (0, nil) when its read timeout expires.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrTimeout
	}

	return n, err
}

// FrontEnd talks to the front-end controller. It implements sweep.Source,
// sweep.LO and gamma.Receiver and is safe for concurrent use.
type FrontEnd struct {
	mu    sync.Mutex
	rw    io.ReadWriter
	r     *bufio.Reader
	port  serial.Port
	stale bool // last exchange failed; input may hold a late reply
}

// New returns a FrontEnd speaking over rw. A read returning no data and no
// error counts as a reply timeout. If rw has a ResetInputBuffer method, as a
// serial port does, unread input is discarded before the command following a
// failed exchange so a late reply is not taken as the answer to it.
func New(rw io.ReadWriter) *FrontEnd {
	return &FrontEnd{rw: rw, r: bufio.NewReader(timeoutReader{rw})}
}

// Open opens a serial port and returns a FrontEnd on it.
func Open(name string, baud int) (*FrontEnd, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serialfe: open %s: %w", name, err)
	}

	if err := port.SetReadTimeout(DefaultTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialfe: %s read timeout: %w", name, err)
	}

	fe := New(port)
	fe.port = port

	return fe, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serialfe: list ports: %w", err)
	}

	return ports, nil
}

// Close closes the underlying port when Open created it.
func (f *FrontEnd) Close() error {
	if f.port == nil {
		return nil
	}

	return f.port.Close()
}

// SetFrequency tunes the stimulus.
func (f *FrontEnd) SetFrequency(khz float64) (float64, error) {
	return f.tune("F", khz)
}

// SetLOFrequency tunes the receiver LO.
func (f *FrontEnd) SetLOFrequency(khz float64) (float64, error) {
	return f.tune("L", khz)
}

// Select switches the bridge path.
func (f *FrontEnd) Select(p gamma.Path) error {
	arg := "I"
	if p == gamma.Reflected {
		arg = "R"
	}

	_, err := f.do("P " + arg)

	return err
}

// ResetPhase restarts the LO at zero phase.
func (f *FrontEnd) ResetPhase() error {
	_, err := f.do("R")
	return err
}

func (f *FrontEnd) tune(cmd string, khz float64) (float64, error) {
	val, err := f.do(cmd + " " + strconv.FormatFloat(khz, 'f', 3, 64))
	if err != nil {
		return 0, err
	}

	actual, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrProtocol, val)
	}

	return actual, nil
}

// do sends one command line and returns the value part of the OK reply.
func (f *FrontEnd) do(cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stale {
		if err := f.resync(); err != nil {
			return "", err
		}
	}

	if _, err := io.WriteString(f.rw, cmd+"\n"); err != nil {
		f.stale = true
		return "", fmt.Errorf("serialfe: send %q: %w", cmd, err)
	}

	line, err := f.r.ReadString('\n')
	if err != nil {
		f.stale = true
		return "", fmt.Errorf("serialfe: reply to %q: %w", cmd, err)
	}

	line = strings.TrimSpace(line)
	status, val, _ := strings.Cut(line, " ")

	switch status {
	case "OK":
		return val, nil
	case "ERR":
		return "", fmt.Errorf("%w: %s: %s", ErrRejected, cmd, val)
	default:
		f.stale = true
		return "", fmt.Errorf("%w: %q", ErrProtocol, line)
	}
}

// resync drops buffered and pending input.
func (f *FrontEnd) resync() error {
	if ir, ok := f.rw.(inputResetter); ok {
		if err := ir.ResetInputBuffer(); err != nil {
			return fmt.Errorf("serialfe: reset input: %w", err)
		}
	}

	f.r.Reset(timeoutReader{f.rw})
	f.stale = false

	return nil
}
