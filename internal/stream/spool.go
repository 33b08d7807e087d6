package stream

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// DefaultSpoolMemory is how many bytes a spool keeps in memory before it
// moves its content to a temporary file.
const DefaultSpoolMemory = 16 << 20

var errSpoolClosed = errors.New("spool closed")

// Spool is a write-then-read buffer that lives in memory up to a limit and on
// disk beyond it. Call Rewind once writing is done; afterwards it reads and
// seeks like a file. Close removes the temporary file.
type Spool struct {
	maxMemory int
	buf       bytes.Buffer
	file      *os.File
	rd        io.ReadSeeker
	size      int64
	closed    bool
}

func NewSpool(maxMemory int) *Spool {
	if maxMemory <= 0 {
		maxMemory = DefaultSpoolMemory
	}
	return &Spool{maxMemory: maxMemory}
}

func (s *Spool) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errSpoolClosed
	}
	if s.file == nil && s.buf.Len()+len(p) > s.maxMemory {
		if err := s.rollover(); err != nil {
			return 0, err
		}
	}

	var (
		n   int
		err error
	)
	if s.file != nil {
		n, err = s.file.Write(p)
	} else {
		n, err = s.buf.Write(p)
	}
	s.size += int64(n)
	return n, err
}

func (s *Spool) rollover() error {
	f, err := os.CreateTemp("", "streamkit-spool-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(s.buf.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	s.buf = bytes.Buffer{}
	s.file = f
	return nil
}

// Rewind positions the spool at its first byte for reading.
func (s *Spool) Rewind() error {
	if s.closed {
		return errSpoolClosed
	}
	if s.file != nil {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		s.rd = s.file
		return nil
	}
	s.rd = bytes.NewReader(s.buf.Bytes())
	return nil
}

func (s *Spool) Read(p []byte) (int, error) {
	if s.closed {
		return 0, errSpoolClosed
	}
	if s.rd == nil {
		if err := s.Rewind(); err != nil {
			return 0, err
		}
	}
	return s.rd.Read(p)
}

func (s *Spool) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, errSpoolClosed
	}
	if s.rd == nil {
		if err := s.Rewind(); err != nil {
			return 0, err
		}
	}
	return s.rd.Seek(offset, whence)
}

// Size is the number of bytes written.
func (s *Spool) Size() int64 { return s.size }

// OnDisk reports whether the content moved to a temporary file.
func (s *Spool) OnDisk() bool { return s.file != nil }

func (s *Spool) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = bytes.Buffer{}
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}
