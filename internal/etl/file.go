package etl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/compress"
	"github.com/BartekS5/streamkit/pkg/logger"
)

// FileLoader writes the byte view of a stream to Dir/<stream name>, plus the
// codec extension when Codec compresses. The file appears atomically: bytes
// go to a temporary file in Dir that is renamed once complete.
type FileLoader struct {
	Dir   string
	Codec compress.Codec
}

// Path returns where s will be written.
func (l *FileLoader) Path(s *stream.Stream) string {
	name := s.Name()
	if ext := l.Codec.Extension(); ext != "" {
		name += "." + ext
	}
	return filepath.Join(l.Dir, name)
}

func (l *FileLoader) Load(ctx context.Context, s *stream.Stream) error {
	defer s.Close()

	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return err
	}
	src, err := s.AsFile()
	if err != nil {
		return err
	}
	defer src.Close()

	r, err := compress.NewReader(src, l.Codec)
	if err != nil {
		return err
	}

	dest := l.Path(s)
	n, err := writeAtomic(ctx, dest, r)
	if err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	logger.Infof("Wrote %s (%d bytes, %s)", dest, n, s.MimeType())
	return nil
}

func writeAtomic(ctx context.Context, dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return n, err
	}
	return n, nil
}

// ctxReader checks for cancellation before every Read.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
