package live

import (
	"slices"
	"sync"

	"github.com/cwbudde/algo-vecmath"

	"github.com/snorklerjoe/breadboard-vna/measure/s11"
	"github.com/snorklerjoe/breadboard-vna/measure/sweep"
)

// Snapshot is one completed, corrected sweep reduced to display scalars.
type Snapshot struct {
	Sequence      uint64    `json:"sequence"` // increments with every published sweep
	CalibrationID string    `json:"calibration_id"`
	FrequencyKHz  []float64 `json:"frequency_khz"`
	ReturnLossDB  []float64 `json:"return_loss_db"`
	PhaseDeg      []float64 `json:"phase_deg"`
	Valid         []bool    `json:"valid"`

	re, im, mag []float64
}

// Fill reduces the corrected sweep in res into s, reusing its storage.
// Invalid points read FloorDB and zero phase. Sequence is left unchanged.
func (s *Snapshot) Fill(res *sweep.Result, calibrationID string) {
	n := res.Len()
	s.resize(n)
	s.CalibrationID = calibrationID

	s.re = slices.Grow(s.re[:0], n)[:n]
	s.im = slices.Grow(s.im[:0], n)[:n]
	s.mag = slices.Grow(s.mag[:0], n)[:n]

	for k, g := range res.Corrected {
		s.re[k], s.im[k] = g.Re, g.Im
	}

	vecmath.Magnitude(s.mag, s.re, s.im)

	for k, g := range res.Corrected {
		s.FrequencyKHz[k] = res.Frequencies[k]
		s.Valid[k] = res.Valid(k)

		if !s.Valid[k] {
			s.ReturnLossDB[k], s.PhaseDeg[k] = s11.FloorDB, 0
			continue
		}

		s.ReturnLossDB[k] = s11.MagnitudeDB(s.mag[k])
		s.PhaseDeg[k] = s11.PhaseDeg(g)
	}
}

// Len returns the number of points.
func (s *Snapshot) Len() int { return len(s.FrequencyKHz) }

func (s *Snapshot) resize(n int) {
	s.FrequencyKHz = slices.Grow(s.FrequencyKHz[:0], n)[:n]
	s.ReturnLossDB = slices.Grow(s.ReturnLossDB[:0], n)[:n]
	s.PhaseDeg = slices.Grow(s.PhaseDeg[:0], n)[:n]
	s.Valid = slices.Grow(s.Valid[:0], n)[:n]
}

func (s *Snapshot) copyFrom(src *Snapshot) {
	s.resize(src.Len())
	s.Sequence = src.Sequence
	s.CalibrationID = src.CalibrationID
	copy(s.FrequencyKHz, src.FrequencyKHz)
	copy(s.ReturnLossDB, src.ReturnLossDB)
	copy(s.PhaseDeg, src.PhaseDeg)
	copy(s.Valid, src.Valid)
}

// SharedBuffer hands completed sweeps from the measurement worker to
// readers. The worker holds the lock only to copy a finished sweep in, and
// readers hold it only to copy it out, so neither sees a partial sweep.
type SharedBuffer struct {
	mu      sync.Mutex
	snap    Snapshot
	changed bool
}

// NewSharedBuffer returns an empty buffer sized for points.
func NewSharedBuffer(points int) *SharedBuffer {
	b := &SharedBuffer{}
	b.snap.resize(points)

	return b
}

// Publish copies s into the buffer and raises the changed flag.
func (b *SharedBuffer) Publish(s *Snapshot) {
	b.mu.Lock()
	b.snap.copyFrom(s)
	b.changed = true
	b.mu.Unlock()
}

// Read copies the latest sweep into dst, reusing its storage, and clears the
// changed flag. It reports whether a sweep was published since the last
// Read.
func (b *SharedBuffer) Read(dst *Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	dst.copyFrom(&b.snap)
	changed := b.changed
	b.changed = false

	return changed
}

// Changed reports whether a sweep was published since the last Read.
func (b *SharedBuffer) Changed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.changed
}
