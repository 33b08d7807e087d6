package etl

import (
	"fmt"
	"iter"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/logger"
	"github.com/BartekS5/streamkit/pkg/models"
	"github.com/BartekS5/streamkit/pkg/utils"
)

// Transformer renames and converts the fields named by a job's transform
// section. Unmapped fields are kept unless DropUnmapped is set.
type Transformer struct {
	Config models.TransformConfig
}

func NewTransformer(config models.TransformConfig) *Transformer {
	return &Transformer{Config: config}
}

func (t *Transformer) Transform(rec stream.Record) (stream.Record, error) {
	out := make(stream.Record, len(rec))
	if !t.Config.DropUnmapped {
		for k, v := range rec {
			out[k] = v
		}
		for _, f := range t.Config.Fields {
			delete(out, f.Source)
		}
	}

	for _, f := range t.Config.Fields {
		val, exists := rec[f.Source]
		if !exists {
			continue
		}
		converted, err := utils.ConvertType(val, f.Type, f.Format)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Source, err)
		}
		out[f.Target] = converted
	}
	return out, nil
}

// Apply transforms every record of seq. Records that fail to convert are
// logged and skipped.
func (t *Transformer) Apply(seq iter.Seq2[stream.Record, error]) iter.Seq2[stream.Record, error] {
	if len(t.Config.Fields) == 0 {
		return seq
	}
	return func(yield func(stream.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			out, err := t.Transform(rec)
			if err != nil {
				logger.Errorf("Skipping record due to transform error: %v", err)
				continue
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}
