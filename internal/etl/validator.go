package etl

import (
	"fmt"
	"iter"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/logger"
)

type Validator struct {
	Required []string
}

func NewValidator(required []string) *Validator {
	return &Validator{Required: required}
}

// ValidateRecord checks that every required field is present and not null.
func (v *Validator) ValidateRecord(rec stream.Record) error {
	for _, field := range v.Required {
		if val, ok := rec[field]; !ok || val == nil {
			return fmt.Errorf("missing required field: %s", field)
		}
	}
	return nil
}

// Apply drops invalid records from seq, logging each one.
func (v *Validator) Apply(seq iter.Seq2[stream.Record, error]) iter.Seq2[stream.Record, error] {
	if len(v.Required) == 0 {
		return seq
	}
	return func(yield func(stream.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if err := v.ValidateRecord(rec); err != nil {
				logger.Warnf("Skipping invalid record: %v", err)
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
