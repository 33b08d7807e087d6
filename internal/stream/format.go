package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrAbstractMethod is returned when a Codec is used without the encode
	// or decode function it needs.
	ErrAbstractMethod = errors.New("abstract method not implemented")

	// ErrConsumed is returned when a single-pass stream is read twice.
	ErrConsumed = errors.New("stream already consumed")
)

// Record is one field->value mapping produced by a source.
type Record map[string]any

// Kind tags the closed set of record formats.
type Kind string

const (
	KindJSONLines      Kind = "jsonl"
	KindNormalizedJSON Kind = "normalized-json"
	KindBinary         Kind = "bson"
	KindDelimited      Kind = "csv"
	KindCustom         Kind = "custom"
)

// Strategy selects how a stream exposes its bytes.
type Strategy int

const (
	// PullThrough encodes records on demand while the consumer reads.
	PullThrough Strategy = iota
	// Buffered encodes every record into a spool first, then rewinds it.
	Buffered
)

func (s Strategy) String() string {
	if s == Buffered {
		return "buffered"
	}
	return "pull-through"
}

// Format encodes and decodes single records. Encode output for consecutive
// records concatenates into a valid artifact of the format.
type Format interface {
	Kind() Kind
	Extension() string
	MimeType() string
	Strategy() Strategy
	Encode(Record) ([]byte, error)
	Decode([]byte) (Record, error)
}

// FormatOptions parameterizes FormatFor.
type FormatOptions struct {
	Columns   []string
	Delimiter rune
}

// FormatFor returns a fresh Format of the given kind. Formats with per-stream
// state (delimited text) must not be shared between streams, so callers ask
// for a new one for every stream.
func FormatFor(kind Kind, opts FormatOptions) (Format, error) {
	switch kind {
	case KindJSONLines, "":
		return JSONLines{}, nil
	case KindNormalizedJSON:
		return NormalizedJSON{}, nil
	case KindBinary:
		return BSON{}, nil
	case KindDelimited:
		return NewDelimited(opts.Delimiter, opts.Columns...), nil
	default:
		return nil, fmt.Errorf("unknown record format %q", kind)
	}
}
