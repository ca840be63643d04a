package acquire

import "fmt"

// BurstReader reads one raw burst of interleaved samples: even indices come
// from the I input, odd indices from the Q input.
type BurstReader interface {
	ReadBurst(raw []uint16) error
}

// Interleaved adapts a BurstReader to a Source by splitting each burst into
// its I and Q channels.
type Interleaved struct {
	r   BurstReader
	raw []uint16
}

// NewInterleaved wraps r.
func NewInterleaved(r BurstReader) *Interleaved {
	return &Interleaved{r: r}
}

// CaptureIQ implements Source.
func (s *Interleaved) CaptureIQ(i, q []uint16) error {
	if len(i) != len(q) {
		return ErrLengthMismatch
	}

	n := 2 * len(i)
	if cap(s.raw) < n {
		s.raw = make([]uint16, n)
	}

	s.raw = s.raw[:n]

	if err := s.r.ReadBurst(s.raw); err != nil {
		return err
	}

	return Deinterleave(i, q, s.raw)
}

// Arm starts a burst early when the underlying reader supports it and is a
// no-op otherwise.
func (s *Interleaved) Arm() error {
	if a, ok := s.r.(Armer); ok {
		return a.Arm()
	}

	return nil
}

// Deinterleave splits raw into i (even samples) and q (odd samples).
// len(raw) must be 2·len(i).
func Deinterleave(i, q, raw []uint16) error {
	if len(i) != len(q) {
		return ErrLengthMismatch
	}

	if len(raw) != 2*len(i) {
		return fmt.Errorf("acquire: interleaved burst has %d samples, want %d", len(raw), 2*len(i))
	}

	for k := range i {
		i[k] = raw[2*k]
		q[k] = raw[2*k+1]
	}

	return nil
}
