package stream

import (
	"io"
	"iter"
)

// PullAdapter turns a push-style record sequence into an io.Reader. Each Read
// serves leftover bytes of the current record first and otherwise pulls and
// encodes exactly one more non-empty record, so memory stays bounded by the
// largest encoded record. Reads may return fewer bytes than asked for.
//
// A PullAdapter is not safe for concurrent use.
type PullAdapter struct {
	next   func() (Record, error, bool)
	stop   func()
	encode func(Record) ([]byte, error)

	leftover []byte
	pos      int64
	done     bool
	err      error
}

func NewPullAdapter(src iter.Seq2[Record, error], encode func(Record) ([]byte, error)) *PullAdapter {
	next, stop := iter.Pull2(src)
	return &PullAdapter{next: next, stop: stop, encode: encode}
}

// Read implements io.Reader. After the source is exhausted and every byte was
// served it returns 0, io.EOF on every call. A record that encodes to zero
// bytes is skipped, it does not end the stream.
func (a *PullAdapter) Read(p []byte) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Records that encode to nothing are pulled past within this call, so one
	// Read may consume several records but serves bytes of at most one.
	for len(a.leftover) == 0 {
		if a.done {
			return 0, io.EOF
		}
		rec, err, ok := a.next()
		if !ok {
			a.done = true
			a.stop()
			return 0, io.EOF
		}
		if err != nil {
			return 0, a.fail(err)
		}
		data, err := a.encode(rec)
		if err != nil {
			return 0, a.fail(err)
		}
		a.leftover = data
	}

	n := copy(p, a.leftover)
	a.leftover = a.leftover[n:]
	a.pos += int64(n)
	return n, nil
}

// Tell returns the number of bytes returned so far.
func (a *PullAdapter) Tell() int64 {
	return a.pos
}

// Close stops the underlying sequence. Reads after Close return io.EOF once
// leftover bytes are drained.
func (a *PullAdapter) Close() error {
	a.done = true
	a.stop()
	return nil
}

func (a *PullAdapter) fail(err error) error {
	a.err = err
	a.done = true
	a.stop()
	return err
}
