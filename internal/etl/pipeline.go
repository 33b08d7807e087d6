package etl

import (
	"context"
	"iter"
	"time"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	defaultPageSize  = 1000
	defaultBatchSize = 500
	progressEvery    = 10000
)

type Pipeline struct {
	Extractor   Extractor
	Loader      Loader
	Transformer *Transformer
	Validator   *Validator
	Limiter     *rate.Limiter
	DryRun      bool
}

// NewPipeline creates a pipeline with dry-run support. Transformer, Validator
// and Limiter are optional and may be set on the result.
func NewPipeline(ext Extractor, loader Loader, dryRun bool) *Pipeline {
	return &Pipeline{
		Extractor: ext,
		Loader:    loader,
		DryRun:    dryRun,
	}
}

// Run extracts one stream, passes its records through the transform,
// validation and throttle stages and hands it to the loader. In dry-run mode
// the records are read and counted but nothing is loaded.
func (p *Pipeline) Run(ctx context.Context) error {
	s, err := p.Extractor.Extract(ctx)
	if err != nil {
		logger.Errorf("Extraction failed: %v", err)
		return err
	}
	logger.Infof("Starting pipeline for %s (format %s, DryRun: %v)", s.Name(), s.Format().Kind(), p.DryRun)

	stats := &progress{name: s.Name(), start: time.Now()}
	s = stream.Pipe(s, func(seq iter.Seq2[stream.Record, error]) iter.Seq2[stream.Record, error] {
		if p.Transformer != nil {
			seq = p.Transformer.Apply(seq)
		}
		if p.Validator != nil {
			seq = p.Validator.Apply(seq)
		}
		seq = Throttle(ctx, seq, p.Limiter)
		return stats.count(seq)
	})

	if p.DryRun {
		for _, err := range s.Records() {
			if err != nil {
				logger.Errorf("Extraction failed after %d records: %v", stats.total, err)
				return err
			}
		}
		logger.Infof("[DRY RUN] Would load %d records into %s", stats.total, s.Name())
		return nil
	}

	if err := p.Loader.Load(ctx, s); err != nil {
		logger.Errorf("Loading %s failed after %d records: %v", s.Name(), stats.total, err)
		return err
	}
	stats.log("Pipeline finished successfully.")
	return nil
}

type progress struct {
	name  string
	start time.Time
	total int
}

func (p *progress) count(seq iter.Seq2[stream.Record, error]) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		for rec, err := range seq {
			if err == nil {
				p.total++
				if p.total%progressEvery == 0 {
					p.log("Progress.")
				}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func (p *progress) log(msg string) {
	duration := time.Since(p.start)
	perSec := 0.0
	if duration.Seconds() > 0 {
		perSec = float64(p.total) / duration.Seconds()
	}
	logger.Infof("%s %s Total: %d. Rate: %.2f records/sec.", msg, p.name, p.total, perSec)
}
