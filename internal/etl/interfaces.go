package etl

import (
	"context"

	"github.com/BartekS5/streamkit/internal/stream"
)

// Extractor turns one incremental read of a source into a named stream. The
// stream's records are produced lazily; checkpoints move as they are consumed.
type Extractor interface {
	Extract(ctx context.Context) (*stream.Stream, error)
}

// Loader drains a stream into a sink.
type Loader interface {
	Load(ctx context.Context, s *stream.Stream) error
}
