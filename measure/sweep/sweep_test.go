package sweep

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/snorklerjoe/breadboard-vna/dsp/cplx"
	"github.com/snorklerjoe/breadboard-vna/internal/testutil"
	"github.com/snorklerjoe/breadboard-vna/measure/cal"
	"github.com/snorklerjoe/breadboard-vna/measure/gamma"
)

func TestSetupValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   Setup
		wantErr error
	}{
		{"default", DefaultSetup(), nil},
		{"zero start", Setup{0, 12000, 20}, ErrInvalidFrequency},
		{"negative end", Setup{100, -1, 20}, ErrInvalidFrequency},
		{"start >= end", Setup{1000, 100, 20}, ErrFrequencyOrder},
		{"equal", Setup{1000, 1000, 20}, ErrFrequencyOrder},
		{"one point", Setup{100, 12000, 1}, ErrInvalidPoints},
		{"NaN start", Setup{math.NaN(), 12000, 20}, ErrInvalidFrequency},
		{"NaN end", Setup{100, math.NaN(), 20}, ErrInvalidFrequency},
		{"infinite end", Setup{100, math.Inf(1), 20}, ErrInvalidFrequency},
		{"infinite start", Setup{math.Inf(1), math.Inf(1), 20}, ErrInvalidFrequency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.setup.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTargetsLogSpaced(t *testing.T) {
	targets, err := Setup{Start: 100, End: 12000, Points: 20}.Targets()
	if err != nil {
		t.Fatal(err)
	}

	if len(targets) != 20 {
		t.Fatalf("len = %d, want 20", len(targets))
	}

	if targets[0] != 100 || targets[19] != 12000 {
		t.Errorf("endpoints = %v, %v, want 100, 12000", targets[0], targets[19])
	}

	ratio := math.Pow(120, 1.0/19)

	for k := 1; k < len(targets); k++ {
		if targets[k] < targets[k-1] {
			t.Fatalf("targets decrease at %d: %v < %v", k, targets[k], targets[k-1])
		}

		if r := targets[k] / targets[k-1]; math.Abs(r-ratio) > 1e-9 {
			t.Errorf("ratio at %d = %v, want %v", k, r, ratio)
		}
	}
}

// quantizedLO rounds to a multiple of res kHz.
type quantizedLO struct{ res float64 }

func (l quantizedLO) SetLOFrequency(khz float64) (float64, error) {
	return math.Round(khz/l.res) * l.res, nil
}

type exactSource struct{ last float64 }

func (s *exactSource) SetFrequency(khz float64) (float64, error) {
	s.last = khz
	return khz, nil
}

type sleepLog struct{ total time.Duration }

func (s *sleepLog) Sleep(d time.Duration) { s.total += d }

func TestTunerFrequencyPlan(t *testing.T) {
	src := &exactSource{}
	sl := &sleepLog{}
	tn := &Tuner{Source: src, LO: quantizedLO{res: 1}, IF: 10, Settle: DefaultSettle, Sleeper: sl}

	got, err := tn.Tune(123.4)
	if err != nil {
		t.Fatal(err)
	}

	if got != 133 || src.last != 133 {
		t.Errorf("Tune(123.4) = %v (source %v), want 133", got, src.last)
	}

	if sl.total != DefaultSettle {
		t.Errorf("settled %v, want %v", sl.total, DefaultSettle)
	}
}

// direct is a FrequencySetter that records the order of targets.
type direct struct {
	visited []float64
	fail    int
}

func (d *direct) Tune(khz float64) (float64, error) {
	d.visited = append(d.visited, khz)
	if d.fail > 0 && len(d.visited) == d.fail {
		return 0, errors.New("synth unlocked")
	}

	return khz, nil
}

func TestSweepRecordsFaultsAndContinues(t *testing.T) {
	tn := &direct{}

	sw, err := New(Setup{Start: 100, End: 1000, Points: 5}, tn, nil)
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	measure := func(averages int) (cplx.Complex, error) {
		calls++
		if averages != 3 {
			t.Errorf("averages = %d, want 3", averages)
		}

		if calls == 2 {
			return cplx.Zero, gamma.ErrMeasurementFault
		}

		return cplx.Real(float64(calls) / 10), nil
	}

	res := sw.NewResult()
	if err := sw.SweepInto(res, 3, measure); err != nil {
		t.Fatal(err)
	}

	if len(tn.visited) != 5 {
		t.Fatalf("visited %d points, want 5", len(tn.visited))
	}

	for k := range res.Len() {
		if want := k != 1; res.Valid(k) != want {
			t.Errorf("Valid(%d) = %v, want %v", k, res.Valid(k), want)
		}
	}

	testutil.RequireComplexNear(t, res.Raw[4], cplx.Real(0.5), 0)
	testutil.RequireComplexNear(t, res.Raw[1], cplx.Zero, 0)
	testutil.RequireSliceNearlyEqual(t, res.Frequencies, sw.Targets(), 0)
}

func TestSweepAbortsOnHardwareError(t *testing.T) {
	sw, _ := New(Setup{Start: 100, End: 1000, Points: 5}, &direct{}, nil)
	boom := errors.New("adc gone")

	err := sw.SweepInto(sw.NewResult(), 1, func(int) (cplx.Complex, error) { return cplx.Zero, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want hardware error", err)
	}

	tn := &direct{fail: 3}
	sw, _ = New(Setup{Start: 100, End: 1000, Points: 5}, tn, nil)

	err = sw.SweepInto(sw.NewResult(), 1, func(int) (cplx.Complex, error) { return cplx.One, nil })
	if err == nil || len(tn.visited) != 3 {
		t.Errorf("err = %v after %d points, want tuning error at point 3", err, len(tn.visited))
	}
}

func TestSweepToleratesDuplicateFrequencies(t *testing.T) {
	tn := &Tuner{Source: &exactSource{}, LO: quantizedLO{res: 5}, IF: 0}

	sw, err := New(Setup{Start: 100, End: 120, Points: 11}, tn, nil)
	if err != nil {
		t.Fatal(err)
	}

	res := sw.NewResult()
	if err := sw.SweepInto(res, 1, func(int) (cplx.Complex, error) { return cplx.One, nil }); err != nil {
		t.Fatal(err)
	}

	dups := 0

	for k := 1; k < res.Len(); k++ {
		if res.Frequencies[k] < res.Frequencies[k-1] {
			t.Fatalf("frequencies decrease at %d", k)
		}

		if res.Frequencies[k] == res.Frequencies[k-1] {
			dups++
		}
	}

	if dups == 0 {
		t.Error("expected quantized duplicates")
	}
}

func TestSweepLengthMismatch(t *testing.T) {
	sw, _ := New(DefaultSetup(), &direct{}, nil)

	err := sw.Sweep(1, nil, make([]float64, 3), make([]cplx.Complex, 20), make([]error, 20))
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestNewRequiresTuner(t *testing.T) {
	if _, err := New(DefaultSetup(), nil, nil); !errors.Is(err, ErrMissingTuner) {
		t.Errorf("err = %v, want ErrMissingTuner", err)
	}
}

// bench simulates a port behind a frequency-dependent error box.
type bench struct {
	freq float64
	dut  func(f float64) cplx.Complex
}

func (b *bench) Tune(khz float64) (float64, error) {
	b.freq = khz
	return khz, nil
}

func (b *bench) box() cal.ErrorTerms {
	x := math.Log10(b.freq)
	e00 := cplx.FromPolar(0.05*x, x)
	e11 := cplx.FromPolar(0.1, -x)
	tr := cplx.FromPolar(0.9-0.05*x, 2*x)

	return cal.ErrorTerms{E00: e00, E11: e11, DeltaE: e00.Mul(e11).Sub(tr)}
}

func (b *bench) measure(int) (cplx.Complex, error) {
	return b.box().Measured(b.dut(b.freq))
}

func (b *bench) prompt(std cal.Standards) Prompt {
	return func(_ context.Context, which cal.Standard) error {
		g := std.Get(which)
		b.dut = func(float64) cplx.Complex { return g }

		return nil
	}
}

func TestCalibrateAndApply(t *testing.T) {
	b := &bench{}

	sw, err := New(DefaultSetup(), b, nil)
	if err != nil {
		t.Fatal(err)
	}

	std := cal.StandardsWithLoad(51, 50)

	c, err := sw.Calibrate(context.Background(), b.measure, 8, std, b.prompt(std))
	if err != nil {
		t.Fatal(err)
	}

	if len(c.Terms) != 20 || len(c.Frequencies) != 20 {
		t.Fatalf("calibration has %d terms, %d frequencies", len(c.Terms), len(c.Frequencies))
	}

	// A 100 Ω load in series with a frequency-dependent phase shift.
	b.dut = func(f float64) cplx.Complex { return cplx.FromPolar(1.0/3, -f/4000) }

	res := sw.NewResult()
	if err := sw.SweepInto(res, 1, b.measure); err != nil {
		t.Fatal(err)
	}

	if err := c.Apply(res); err != nil {
		t.Fatal(err)
	}

	want := make([]cplx.Complex, res.Len())
	for k := range res.Len() {
		if !res.Valid(k) {
			t.Fatalf("point %d faulted: %v", k, res.Faults[k])
		}

		want[k] = b.dut(res.Frequencies[k])
	}

	testutil.RequireComplexSliceNear(t, res.Corrected, want, 1e-9)
}

func TestCalibrateRejectsFaultedStandard(t *testing.T) {
	b := &bench{}
	sw, _ := New(Setup{Start: 100, End: 1000, Points: 4}, b, nil)

	calls := 0
	measure := func(n int) (cplx.Complex, error) {
		calls++
		if calls == 6 {
			return cplx.Zero, gamma.ErrMeasurementFault
		}

		return b.measure(n)
	}

	_, err := sw.Calibrate(context.Background(), measure, 1, cal.Ideal(), b.prompt(cal.Ideal()))
	if !errors.Is(err, cal.ErrCalibrationInvalid) {
		t.Errorf("err = %v, want ErrCalibrationInvalid", err)
	}
}

func TestCalibratePromptOrderAndAbort(t *testing.T) {
	b := &bench{}
	sw, _ := New(Setup{Start: 100, End: 1000, Points: 4}, b, nil)

	var order []cal.Standard

	stop := errors.New("operator cancelled")
	prompt := func(ctx context.Context, which cal.Standard) error {
		order = append(order, which)
		if which == cal.Load {
			return stop
		}

		return b.prompt(cal.Ideal())(ctx, which)
	}

	_, err := sw.Calibrate(context.Background(), b.measure, 1, cal.Ideal(), prompt)
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v, want prompt error", err)
	}

	if len(order) != 3 || order[0] != cal.Short || order[1] != cal.Open || order[2] != cal.Load {
		t.Errorf("prompt order = %v, want short, open, load", order)
	}
}

func TestApplyErrors(t *testing.T) {
	b := &bench{}
	sw, _ := New(Setup{Start: 100, End: 1000, Points: 4}, b, nil)
	res := sw.NewResult()

	var none *Calibration
	if err := none.Apply(res); !errors.Is(err, cal.ErrCalibrationInvalid) {
		t.Errorf("uncalibrated: err = %v, want ErrCalibrationInvalid", err)
	}

	if err := ApplySweep(res.Corrected, res.Raw, nil, res.Faults); !errors.Is(err, cal.ErrCalibrationInvalid) {
		t.Errorf("nil terms: err = %v, want ErrCalibrationInvalid", err)
	}

	c, err := sw.Calibrate(context.Background(), b.measure, 1, cal.Ideal(), b.prompt(cal.Ideal()))
	if err != nil {
		t.Fatal(err)
	}

	short := &Result{Frequencies: make([]float64, 3)}
	if err := c.Apply(short); !errors.Is(err, cal.ErrCalibrationInvalid) {
		t.Errorf("length mismatch: err = %v, want ErrCalibrationInvalid", err)
	}

	if err := sw.SweepInto(res, 1, b.measure); err != nil {
		t.Fatal(err)
	}

	res.Frequencies[2] += 1
	if err := c.Apply(res); !errors.Is(err, cal.ErrCalibrationInvalid) {
		t.Errorf("frequency mismatch: err = %v, want ErrCalibrationInvalid", err)
	}
}

func TestApplySweepSkipsFaultedPoints(t *testing.T) {
	raw := []cplx.Complex{cplx.Real(0.2), cplx.Real(0.9), cplx.One}
	terms := []cal.ErrorTerms{cal.Identity(), cal.Identity(), {E11: cplx.One, DeltaE: cplx.One}}
	faults := []error{nil, gamma.ErrMeasurementFault, nil}
	dst := make([]cplx.Complex, 3)

	if err := ApplySweep(dst, raw, terms, faults); err != nil {
		t.Fatal(err)
	}

	testutil.RequireComplexSliceNear(t, dst[:2], []cplx.Complex{cplx.Real(0.2), cplx.Zero}, 1e-15)

	if !errors.Is(faults[2], cal.ErrMeasurementFault) {
		t.Errorf("faults[2] = %v, want ErrMeasurementFault", faults[2])
	}

	if !IsFault(faults[1]) || !IsFault(faults[2]) || IsFault(errors.New("other")) {
		t.Error("IsFault misclassified")
	}
}
