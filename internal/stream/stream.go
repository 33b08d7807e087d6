// Package stream presents lazily produced record sequences as named,
// serialized artifacts.
//
// A Stream couples a single-pass record source with a Format. Its bytes are
// produced either on demand through a PullAdapter (pull-through formats) or
// by spooling every encoded record first (buffered formats). Sinks key
// artifacts by Stream.Name, which never changes after creation.
package stream

import (
	"fmt"
	"io"
	"iter"
	"sync"
	"time"
)

var now = time.Now

type Stream struct {
	base   string
	name   string
	format Format
	source iter.Seq2[Record, error]

	mu          sync.Mutex
	consumed    bool
	spool       *Spool
	spoolMemory int
}

// New names the stream "{name}_{unix seconds}.{extension}" and takes
// ownership of source, which is iterated at most once.
func New(name string, format Format, source iter.Seq2[Record, error]) *Stream {
	full := fmt.Sprintf("%s_%d", name, now().Unix())
	if ext := format.Extension(); ext != "" {
		full += "." + ext
	}
	return &Stream{
		base:        name,
		name:        full,
		format:      format,
		source:      source,
		spoolMemory: DefaultSpoolMemory,
	}
}

// FromSlice adapts an in-memory slice to a record source.
func FromSlice(records []Record) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (s *Stream) Name() string     { return s.name }
func (s *Stream) BaseName() string { return s.base }
func (s *Stream) MimeType() string { return s.format.MimeType() }
func (s *Stream) Format() Format   { return s.format }

// SetSpoolMemory changes the in-memory limit of the spool used by buffered
// formats. It has no effect once AsFile was called.
func (s *Stream) SetSpoolMemory(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoolMemory = n
}

func (s *Stream) take() (iter.Seq2[Record, error], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed {
		return nil, fmt.Errorf("%w: %s", ErrConsumed, s.name)
	}
	s.consumed = true
	return s.source, nil
}

// Records iterates the raw source records.
func (s *Stream) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		src, err := s.take()
		if err != nil {
			yield(nil, err)
			return
		}
		for rec, err := range src {
			if !yield(rec, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Readlines iterates records after an encode/decode round trip through the
// stream's format, which yields them in the format's normalized form.
func (s *Stream) Readlines() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for rec, err := range s.Records() {
			if err != nil {
				yield(nil, err)
				return
			}
			data, err := s.format.Encode(rec)
			if err != nil {
				yield(nil, err)
				return
			}
			out, err := s.format.Decode(data)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

// AsFile returns the encoded bytes of the stream. Pull-through formats return
// a forward-only *PullAdapter. Buffered formats return a rewound *Spool that
// can also Seek; calling AsFile again rewinds the same spool until it is
// closed.
func (s *Stream) AsFile() (io.ReadCloser, error) {
	if s.format.Strategy() == Buffered {
		return s.spooled()
	}
	src, err := s.take()
	if err != nil {
		return nil, err
	}
	return NewPullAdapter(src, s.format.Encode), nil
}

func (s *Stream) spooled() (io.ReadCloser, error) {
	s.mu.Lock()
	sp := s.spool
	s.mu.Unlock()
	if sp != nil {
		if err := sp.Rewind(); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrConsumed, s.name)
		}
		return sp, nil
	}

	src, err := s.take()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sp = NewSpool(s.spoolMemory)
	s.mu.Unlock()

	for rec, err := range src {
		if err != nil {
			sp.Close()
			return nil, err
		}
		data, err := s.format.Encode(rec)
		if err != nil {
			sp.Close()
			return nil, err
		}
		if _, err := sp.Write(data); err != nil {
			sp.Close()
			return nil, fmt.Errorf("spooling %s: %w", s.name, err)
		}
	}
	if err := sp.Rewind(); err != nil {
		sp.Close()
		return nil, err
	}

	s.mu.Lock()
	s.spool = sp
	s.mu.Unlock()
	return sp, nil
}

// Close releases the spool of a buffered stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	sp := s.spool
	s.mu.Unlock()
	if sp == nil {
		return nil
	}
	return sp.Close()
}

// Pipe returns a stream with the name and format of s whose records are
// fn applied to the records of s. s is consumed by the result.
func Pipe(s *Stream, fn func(iter.Seq2[Record, error]) iter.Seq2[Record, error]) *Stream {
	return &Stream{
		base:        s.base,
		name:        s.name,
		format:      s.format,
		source:      fn(s.Records()),
		spoolMemory: s.spoolMemory,
	}
}

// Convert re-expresses s in format. When s already has the target kind it is
// returned unchanged and its source is left untouched; otherwise a new stream
// with the same base name reads s through Readlines.
func Convert(s *Stream, format Format) *Stream {
	if s.format.Kind() == format.Kind() {
		return s
	}
	return New(s.base, format, s.Readlines())
}
