package live

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/dsp/phasor"
	"github.com/snorklerjoe/breadboard-vna/internal/sim"
	"github.com/snorklerjoe/breadboard-vna/measure/acquire"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
	"github.com/snorklerjoe/breadboard-vna/measure/s11"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

func TestSharedBufferReadClearsChanged(t *testing.T) {
	b := NewSharedBuffer(2)

	var got Snapshot
	if b.Read(&got) {
		t.Error("fresh buffer reports a change")
	}

	b.Publish(&Snapshot{
		Sequence:     1,
		FrequencyKHz: []float64{100, 200},
		ReturnLossDB: []float64{-3, -20},
		PhaseDeg:     []float64{10, -10},
		Valid:        []bool{true, false},
	})

	if !b.Changed() {
		t.Error("Changed() = false after Publish")
	}

	if !b.Read(&got) {
		t.Error("Read() = false after Publish")
	}

	if got.Sequence != 1 || got.Len() != 2 || got.ReturnLossDB[1] != -20 || got.Valid[1] {
		t.Errorf("snapshot = %+v", got)
	}

	if b.Read(&got) || b.Changed() {
		t.Error("changed flag not cleared by Read")
	}
}

func TestSharedBufferNeverTorn(t *testing.T) {
	const points = 64

	b := NewSharedBuffer(points)
	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		s := Snapshot{}
		s.resize(points)

		for seq := uint64(1); seq <= 500; seq++ {
			s.Sequence = seq
			for k := range points {
				s.FrequencyKHz[k] = float64(seq)
				s.ReturnLossDB[k] = -float64(seq)
			}

			b.Publish(&s)
		}

		close(done)
	}()

	var snap Snapshot

	for {
		b.Read(&snap)

		want := float64(snap.Sequence)
		for k := range snap.Len() {
			if snap.FrequencyKHz[k] != want || snap.ReturnLossDB[k] != -want {
				t.Fatalf("torn snapshot at sequence %d, point %d", snap.Sequence, k)
			}
		}

		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
	}
}

func newLoop(t *testing.T, d *sim.Device, points int) *Loop {
	t.Helper()

	buf, err := acquire.NewBuffer(acquire.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	ext := phasor.NewDownconverter(phasor.PhaseStep(10, 250))

	m, err := gamma.New(d.Hardware(), buf, ext, gamma.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	sw, err := sweep.New(sweep.Setup{Start: 100, End: 12000, Points: points}, d.Tuner(10), nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Averages = 2
	cfg.CalAverages = 2

	l, err := New(sw, m.Measure, cfg)
	if err != nil {
		t.Fatal(err)
	}

	return l
}

// waitFor polls the buffer until a snapshot newer than after arrives.
func waitFor(t *testing.T, b *SharedBuffer, after uint64) Snapshot {
	t.Helper()

	deadline := time.Now().Add(20 * time.Second)

	var snap Snapshot

	for time.Now().Before(deadline) {
		if b.Read(&snap) && snap.Sequence > after {
			return snap
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatalf("no sweep after sequence %d", after)

	return snap
}

func TestLoopCalibratesThenSweeps(t *testing.T) {
	d := sim.New(sim.DefaultConfig())
	l := newLoop(t, d, 8)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)

	go func() { errc <- l.Run(ctx) }()

	attach := func(context.Context) error { return d.ConnectImpedance(cplx.Real(100), 50) }

	c, err := l.BeginCalibration(ctx, d.Prompt(cal.Ideal()), attach)
	if err != nil {
		t.Fatal(err)
	}

	// The DUT is attached before sweeping resumes, so even the first
	// published sweep measures it.
	snap := waitFor(t, l.Buffer(), 0)

	if snap.CalibrationID != c.ID.String() {
		t.Errorf("CalibrationID = %q, want %q", snap.CalibrationID, c.ID)
	}

	want := 20 * math.Log10(1.0/3)

	for k := range snap.Len() {
		if !snap.Valid[k] {
			t.Fatalf("point %d invalid", k)
		}

		if math.Abs(snap.ReturnLossDB[k]-want) > 0.1 {
			t.Errorf("point %d: %.3f dB, want %.3f dB", k, snap.ReturnLossDB[k], want)
		}

		if math.Abs(snap.PhaseDeg[k]) > 1 {
			t.Errorf("point %d: phase %.3f°, want 0°", k, snap.PhaseDeg[k])
		}
	}

	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestRunWaitsForCalibration(t *testing.T) {
	d := sim.New(sim.DefaultConfig())
	l := newLoop(t, d, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() = %v, want context.DeadlineExceeded", err)
	}

	if d.Captures() != 0 {
		t.Errorf("captured %d bursts before calibration", d.Captures())
	}
}

func TestFailedRecalibrationKeepsPrevious(t *testing.T) {
	d := sim.New(sim.DefaultConfig())
	l := newLoop(t, d, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)

	go func() { errc <- l.Run(ctx) }()

	c, err := l.BeginCalibration(ctx, d.Prompt(cal.Ideal()), nil)
	if err != nil {
		t.Fatal(err)
	}

	refuse := errors.New("no standard at hand")

	_, err = l.BeginCalibration(ctx, func(context.Context, cal.Standard) error { return refuse }, nil)
	if !errors.Is(err, refuse) {
		t.Fatalf("err = %v, want prompt error", err)
	}

	unplugged := errors.New("DUT cable unplugged")

	next, err := l.BeginCalibration(ctx, d.Prompt(cal.Ideal()), func(context.Context) error { return unplugged })
	if !errors.Is(err, unplugged) {
		t.Fatalf("err = %v, want attach error", err)
	}

	if next != nil {
		t.Errorf("failed attach returned calibration %s", next.ID)
	}

	snap := waitFor(t, l.Buffer(), 0)
	snap = waitFor(t, l.Buffer(), snap.Sequence)

	if snap.CalibrationID != c.ID.String() {
		t.Errorf("CalibrationID = %q, want previous %q", snap.CalibrationID, c.ID)
	}

	cancel()
	<-errc
}

func TestNewValidates(t *testing.T) {
	d := sim.New(sim.DefaultConfig())
	sw, _ := sweep.New(sweep.DefaultSetup(), d.Tuner(10), nil)

	if _, err := New(nil, nil, DefaultConfig()); !errors.Is(err, ErrMissingSweeper) {
		t.Errorf("err = %v, want ErrMissingSweeper", err)
	}

	cfg := DefaultConfig()
	cfg.Averages = 0

	measure := func(int) (cplx.Complex, error) { return cplx.Zero, nil }
	if _, err := New(sw, measure, cfg); !errors.Is(err, ErrInvalidAverages) {
		t.Errorf("err = %v, want ErrInvalidAverages", err)
	}
}

func TestSnapshotFill(t *testing.T) {
	res := &sweep.Result{
		Frequencies: []float64{100, 1000, 10000},
		Corrected:   []cplx.Complex{cplx.New(0.1, 0), cplx.Zero, cplx.New(0, -0.5)},
		Faults:      []error{nil, gamma.ErrMeasurementFault, nil},
	}
	res.Raw = res.Corrected

	var s Snapshot
	s.Sequence = 7
	s.Fill(res, "cal-1")

	if s.Sequence != 7 || s.CalibrationID != "cal-1" || s.Len() != 3 {
		t.Fatalf("snapshot header = %d %q len %d", s.Sequence, s.CalibrationID, s.Len())
	}

	if math.Abs(s.ReturnLossDB[0]+20) > 1e-9 || s.PhaseDeg[0] != 0 {
		t.Errorf("point 0: %g dB %g°", s.ReturnLossDB[0], s.PhaseDeg[0])
	}

	if s.Valid[1] || s.ReturnLossDB[1] != s11.FloorDB {
		t.Errorf("faulted point: valid %v, %g dB", s.Valid[1], s.ReturnLossDB[1])
	}

	if math.Abs(s.PhaseDeg[2]+90) > 1e-9 || math.Abs(s.ReturnLossDB[2]+6.0206) > 1e-3 {
		t.Errorf("point 2: %g dB %g°", s.ReturnLossDB[2], s.PhaseDeg[2])
	}
}
