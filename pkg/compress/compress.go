// Package compress wraps byte views of record streams in a compressor that is
// driven by the consumer's reads.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

type Codec string

const (
	None   Codec = "none"
	Snappy Codec = "snappy"
	LZ4    Codec = "lz4"
	Zstd   Codec = "zstd"
)

// ParseCodec accepts a codec name or its file extension. An empty name means
// None.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "none":
		return None, nil
	case "snappy", "sz":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	default:
		return "", fmt.Errorf("unknown compression codec %q", name)
	}
}

// Extension is appended to artifact names, without the dot.
func (c Codec) Extension() string {
	switch c {
	case Snappy:
		return "sz"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zst"
	default:
		return ""
	}
}

// FromExtension returns the codec whose extension ends name, or None.
func FromExtension(name string) Codec {
	for _, c := range []Codec{Snappy, LZ4, Zstd} {
		if strings.HasSuffix(name, "."+c.Extension()) {
			return c
		}
	}
	return None
}

func (c Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("no compressor for codec %q", c)
	}
}

const chunkSize = 32 << 10

// Reader compresses src as it is read. Every Read pulls at most one chunk
// from src through the compressor, so memory stays bounded by the chunk size
// plus the compressor's own window.
type Reader struct {
	src   io.Reader
	out   bytes.Buffer
	zw    io.WriteCloser
	chunk []byte
	eof   bool
	err   error
}

// NewReader returns src unchanged for None.
func NewReader(src io.Reader, c Codec) (io.Reader, error) {
	if c == None || c == "" {
		return src, nil
	}
	r := &Reader{src: src, chunk: make([]byte, chunkSize)}
	zw, err := c.newWriter(&r.out)
	if err != nil {
		return nil, err
	}
	r.zw = zw
	return r, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	for r.out.Len() == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.eof {
			return 0, io.EOF
		}
		r.fill()
	}
	return r.out.Read(p)
}

func (r *Reader) fill() {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		if _, werr := r.zw.Write(r.chunk[:n]); werr != nil {
			r.err = fmt.Errorf("compressing: %w", werr)
			return
		}
	}
	switch {
	case err == io.EOF:
		r.eof = true
		if cerr := r.zw.Close(); cerr != nil {
			r.err = fmt.Errorf("compressing: %w", cerr)
		}
	case err != nil:
		r.err = err
	}
}

// NewDecompressReader undoes NewReader. The caller closes the result; closing
// does not close src.
func NewDecompressReader(src io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case None, "":
		return io.NopCloser(src), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Zstd:
		return zstd.NewReader(src), nil
	default:
		return nil, fmt.Errorf("no decompressor for codec %q", c)
	}
}
