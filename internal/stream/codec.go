package stream

import "fmt"

// Codec builds a Format from plain functions, for one-off formats that are
// not worth a type. A nil EncodeFunc or DecodeFunc fails with
// ErrAbstractMethod the first time it is needed.
type Codec struct {
	Ext        string
	Mime       string
	Spool      bool
	EncodeFunc func(Record) ([]byte, error)
	DecodeFunc func([]byte) (Record, error)
}

func (c Codec) Kind() Kind        { return KindCustom }
func (c Codec) Extension() string { return c.Ext }

func (c Codec) MimeType() string {
	if c.Mime == "" {
		return "application/octet-stream"
	}
	return c.Mime
}

func (c Codec) Strategy() Strategy {
	if c.Spool {
		return Buffered
	}
	return PullThrough
}

func (c Codec) Encode(r Record) ([]byte, error) {
	if c.EncodeFunc == nil {
		return nil, fmt.Errorf("%w: encode for %q records", ErrAbstractMethod, c.Ext)
	}
	return c.EncodeFunc(r)
}

func (c Codec) Decode(data []byte) (Record, error) {
	if c.DecodeFunc == nil {
		return nil, fmt.Errorf("%w: decode for %q records", ErrAbstractMethod, c.Ext)
	}
	return c.DecodeFunc(data)
}
