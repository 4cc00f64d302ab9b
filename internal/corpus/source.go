package corpus

import (
	"context"

	"github.com/chaz8081/gostt-bench/internal/audio"
)

// Sample is one evaluation item in canonical form.
type Sample struct {
	// Index is the sample's position in its source sequence.
	Index      int
	Audio      audio.Ref
	Transcript string
}

// Source yields samples in order. Next returns ok=false once the source is
// exhausted. Sources are not safe for concurrent use; callers serialize Next.
type Source interface {
	Next(ctx context.Context) (Sample, bool, error)
	Close() error
}

// Slice is a materialized, restartable source.
type Slice struct {
	samples []Sample
	pos     int
}

// NewSlice wraps samples. Indices are reassigned to slice positions.
func NewSlice(samples []Sample) *Slice {
	out := make([]Sample, len(samples))
	for i, s := range samples {
		s.Index = i
		out[i] = s
	}
	return &Slice{samples: out}
}

func (s *Slice) Next(ctx context.Context) (Sample, bool, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, false, err
	}
	if s.pos >= len(s.samples) {
		return Sample{}, false, nil
	}
	smp := s.samples[s.pos]
	s.pos++
	return smp, true, nil
}

// Len returns the number of samples.
func (s *Slice) Len() int { return len(s.samples) }

// At returns the i-th sample.
func (s *Slice) At(i int) Sample { return s.samples[i] }

// Reset rewinds the slice so it can be iterated again.
func (s *Slice) Reset() { s.pos = 0 }

func (s *Slice) Close() error { return nil }

// Stream is a lazy, single-pass source.
type Stream struct {
	next  func(ctx context.Context) (Sample, bool, error)
	close func() error
	index int
	done  bool
}

// NewStream builds a stream from a pull function. close may be nil.
// Indices are assigned in pull order.
func NewStream(next func(ctx context.Context) (Sample, bool, error), close func() error) *Stream {
	return &Stream{next: next, close: close}
}

func (s *Stream) Next(ctx context.Context) (Sample, bool, error) {
	if s.done {
		return Sample{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, false, err
	}
	smp, ok, err := s.next(ctx)
	if err != nil {
		return Sample{}, false, err
	}
	if !ok {
		s.done = true
		return Sample{}, false, nil
	}
	smp.Index = s.index
	s.index++
	return smp, true, nil
}

func (s *Stream) Close() error {
	s.done = true
	if s.close == nil {
		return nil
	}
	c := s.close
	s.close = nil
	return c()
}

// Take limits src to its first n samples. Slices stay restartable; streams
// are wrapped without reading ahead.
func Take(src Source, n int) Source {
	if n < 0 {
		n = 0
	}
	if sl, ok := src.(*Slice); ok {
		if n >= len(sl.samples) {
			return sl
		}
		return &Slice{samples: sl.samples[:n]}
	}
	return &limited{src: src, left: n}
}

type limited struct {
	src  Source
	left int
}

func (l *limited) Next(ctx context.Context) (Sample, bool, error) {
	if l.left <= 0 {
		return Sample{}, false, nil
	}
	smp, ok, err := l.src.Next(ctx)
	if err != nil || !ok {
		return smp, ok, err
	}
	l.left--
	return smp, true, nil
}

func (l *limited) Close() error { return l.src.Close() }

// Collect drains src into a slice.
func Collect(ctx context.Context, src Source) ([]Sample, error) {
	var out []Sample
	for {
		smp, ok, err := src.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, smp)
	}
}
