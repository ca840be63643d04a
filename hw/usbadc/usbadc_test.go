package usbadc

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
)

// board answers capture requests from a script of status bytes. Each read
// returns at most chunk bytes.
type board struct {
	statuses []byte
	requests [][]byte
	pending  []byte
	chunk    int
	next     uint16
}

func (b *board) WriteContext(_ context.Context, buf []byte) (int, error) {
	b.requests = append(b.requests, append([]byte(nil), buf...))

	status := byte(statusOK)
	if len(b.statuses) > 0 {
		status, b.statuses = b.statuses[0], b.statuses[1:]
	}

	b.pending = []byte{status}
	if status != statusOK {
		return len(buf), nil
	}

	pairs := int(binary.LittleEndian.Uint16(buf[4:6]))
	for range 2 * pairs {
		b.pending = binary.LittleEndian.AppendUint16(b.pending, b.next)
		b.next++
	}

	return len(buf), nil
}

func (b *board) ReadContext(_ context.Context, buf []byte) (int, error) {
	n := copy(buf, b.pending)
	if b.chunk > 0 && n > b.chunk {
		n = b.chunk
	}

	b.pending = b.pending[n:]

	return n, nil
}

func TestReadBurstDecodes(t *testing.T) {
	b := &board{chunk: 5}
	d := NewDevice(b, b, 0)

	raw := make([]uint16, 8)
	if err := d.ReadBurst(raw); err != nil {
		t.Fatal(err)
	}

	for k, v := range raw {
		if v != uint16(k) {
			t.Fatalf("raw = %v", raw)
		}
	}

	req := b.requests[0]
	if req[0] != cmdCapture || binary.LittleEndian.Uint16(req[4:]) != 4 {
		t.Errorf("request = %x", req)
	}
}

func TestArmThenRead(t *testing.T) {
	b := &board{}
	d := NewDevice(b, b, 0)

	if err := d.SetPairs(3); err != nil {
		t.Fatal(err)
	}

	if err := d.Arm(); err != nil {
		t.Fatal(err)
	}

	if err := d.ReadBurst(make([]uint16, 6)); err != nil {
		t.Fatal(err)
	}

	if len(b.requests) != 1 {
		t.Errorf("sent %d requests, want 1", len(b.requests))
	}
}

func TestBusyIsResourceExhausted(t *testing.T) {
	b := &board{statuses: []byte{statusBusy, statusBusy, statusOK}}

	buf, err := acquire.NewBuffer(acquire.Config{Samples: 16, Discard: 2, Retries: 3, Bits: 12})
	if err != nil {
		t.Fatal(err)
	}

	if err := buf.Capture(acquire.NewInterleaved(NewDevice(b, b, 0))); err != nil {
		t.Fatal(err)
	}

	if len(b.requests) != 3 {
		t.Errorf("sent %d requests, want 3", len(b.requests))
	}

	i, q := buf.Raw()
	if i[0] != 0 || q[0] != 1 || i[15] != 30 || q[15] != 31 {
		t.Errorf("deinterleaved i=%v q=%v", i, q)
	}
}

func TestDeviceErrors(t *testing.T) {
	b := &board{statuses: []byte{0x7f}}
	d := NewDevice(b, b, 0)

	if err := d.ReadBurst(make([]uint16, 4)); !errors.Is(err, ErrStatus) {
		t.Errorf("err = %v, want ErrStatus", err)
	}

	if err := d.ReadBurst(make([]uint16, 3)); !errors.Is(err, ErrBurstLength) {
		t.Errorf("odd burst: err = %v, want ErrBurstLength", err)
	}

	if err := NewDevice(b, b, 0).Arm(); !errors.Is(err, ErrBurstLength) {
		t.Errorf("Arm without length: err = %v, want ErrBurstLength", err)
	}

	// The board goes silent halfway through a burst.
	silent := &board{}
	d = NewDevice(silent, silent, 0)
	_ = d.SetPairs(4)
	_ = d.Arm()
	silent.pending = silent.pending[:5]

	if err := d.ReadBurst(make([]uint16, 8)); !errors.Is(err, ErrShortTransfer) {
		t.Errorf("err = %v, want ErrShortTransfer", err)
	}
}
