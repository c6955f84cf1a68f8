package capture

import (
	"context"
	"sync"
	"time"
)

// SyntheticSource generates a moving test pattern. When Paced is true Read
// waits one frame interval between frames; otherwise frames are produced as
// fast as they are requested, stamped with Clock.
type SyntheticSource struct {
	format Format
	paced  bool
	clock  func() time.Time

	mu     sync.Mutex
	seq    uint64
	next   time.Time
	closed bool
}

// SyntheticOption configures a SyntheticSource.
type SyntheticOption func(*SyntheticSource)

// WithPacing makes Read block for one frame interval between frames.
func WithPacing() SyntheticOption {
	return func(s *SyntheticSource) { s.paced = true }
}

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) SyntheticOption {
	return func(s *SyntheticSource) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSynthetic constructs a synthetic source for format.
func NewSynthetic(format Format, opts ...SyntheticOption) *SyntheticSource {
	s := &SyntheticSource{format: format, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read produces the next test frame.
func (s *SyntheticSource) Read(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Frame{}, errSourceClosed
	}
	var wait time.Duration
	if s.paced {
		now := time.Now()
		if s.next.IsZero() {
			s.next = now
		}
		wait = s.next.Sub(now)
		s.next = s.next.Add(s.format.Interval())
	}
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Frame{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	return Frame{Seq: seq, Timestamp: s.clock(), Data: s.pattern(seq)}, nil
}

// pattern draws a vertical bar that advances one column per frame. The first
// byte carries the low bits of seq so tests can identify frames.
func (s *SyntheticSource) pattern(seq uint64) []byte {
	data := make([]byte, s.format.FrameSize())
	if len(data) == 0 {
		return data
	}
	stride := len(data) / max(s.format.Height, 1)
	bpp := max(stride/max(s.format.Width, 1), 1)
	col := int(seq % uint64(max(s.format.Width, 1)))
	for row := 0; row < s.format.Height; row++ {
		start := row*stride + col*bpp
		for i := start; i < start+bpp && i < len(data); i++ {
			data[i] = 0xff
		}
	}
	data[0] = byte(seq)
	return data
}

// Format returns the synthetic frame layout.
func (s *SyntheticSource) Format() Format {
	return s.format
}

// Close stops the source. Later reads fail with a device error.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
