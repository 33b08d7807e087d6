package cli

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/BartekS5/streamkit/internal/config"
	"github.com/BartekS5/streamkit/internal/etl"
	"github.com/BartekS5/streamkit/internal/incremental"
	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/checkpoint"
	"github.com/BartekS5/streamkit/pkg/compress"
	"github.com/BartekS5/streamkit/pkg/database"
	"github.com/BartekS5/streamkit/pkg/logger"
	"github.com/BartekS5/streamkit/pkg/models"
	"go.mongodb.org/mongo-driver/mongo"
)

func openStore(ctx context.Context) (*checkpoint.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	store := checkpoint.New()
	if err := store.Configure(ctx, cfg.Checkpoint); err != nil {
		return nil, err
	}
	return store, nil
}

// connections holds whatever clients a job needs; close releases them.
type connections struct {
	cfg   *config.Config
	mongo *mongo.Client
}

func (c *connections) mongoClient(ctx context.Context) (*mongo.Client, error) {
	if c.mongo != nil {
		return c.mongo, nil
	}
	client, err := database.ConnectMongo(ctx, c.cfg.MongoConnString)
	if err != nil {
		return nil, err
	}
	c.mongo = client
	return client, nil
}

func (c *connections) close() {
	if c.mongo != nil {
		database.DisconnectMongo(c.mongo)
	}
}

func runExtract(ctx context.Context, opts *ExtractOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	job, err := config.LoadJob(opts.JobFile)
	if err != nil {
		return err
	}
	if err := cfg.Require(job); err != nil {
		return err
	}

	store := checkpoint.New()
	if err := store.Configure(ctx, cfg.Checkpoint); err != nil {
		return err
	}
	defer store.Close()

	tracked := store
	if opts.DryRun {
		tracked = checkpoint.DryRun(store)
	}

	conns := &connections{cfg: cfg}
	defer conns.close()

	format, err := buildFormat(job.Format)
	if err != nil {
		return err
	}
	extractor, closeSource, err := buildExtractor(ctx, conns, job, tracked, format)
	if err != nil {
		return err
	}
	defer closeSource()

	loader, err := buildLoader(ctx, conns, job.Sink)
	if err != nil {
		return err
	}

	pipeline := etl.NewPipeline(extractor, loader, opts.DryRun)
	pipeline.Transformer = etl.NewTransformer(job.Transform)
	pipeline.Validator = etl.NewValidator(job.Transform.Required)
	pipeline.Limiter = etl.NewThrottle(job.Throttle)

	logger.Infof("Starting extraction %s (%s -> %s)", job.Name, job.Source.Type, job.Sink.Type)
	if err := pipeline.Run(ctx); err != nil {
		return err
	}
	logger.Infof("Extraction %s finished.", job.Name)
	return nil
}

func buildFormat(fc models.FormatConfig) (stream.Format, error) {
	opts := stream.FormatOptions{Columns: fc.Columns}
	if fc.Delimiter != "" {
		opts.Delimiter, _ = utf8.DecodeRuneInString(fc.Delimiter)
	}
	return stream.FormatFor(stream.Kind(fc.Kind), opts)
}

func buildExtractor(ctx context.Context, conns *connections, job *models.Job, store *checkpoint.Store, format stream.Format) (etl.Extractor, func(), error) {
	src := job.Source
	noop := func() {}

	switch src.Type {
	case models.SourceSQL:
		db, err := database.ConnectSQL(ctx, conns.cfg.SQLConnString)
		if err != nil {
			return nil, noop, err
		}
		return &etl.SQLExtractor{
			DB:      db,
			Table:   src.Table,
			OrderBy: src.OrderBy,
			Tracker: incremental.NewRowTracker(store, job.Name, src.Watermark.Column, src.Watermark.Init),
			Format:  format,
			Name:    job.Name,
		}, func() { db.Close() }, nil

	case models.SourceMongo:
		client, err := conns.mongoClient(ctx)
		if err != nil {
			return nil, noop, err
		}
		return &etl.MongoExtractor{
			Client:     client,
			Database:   src.Database,
			Collection: src.Collection,
			PageSize:   src.PageSize,
			Tracker:    incremental.NewRowTracker(store, job.Name, src.Watermark.Column, src.Watermark.Init),
			Format:     format,
			Name:       job.Name,
		}, noop, nil

	case models.SourceObjects:
		return &etl.ObjectExtractor{
			Root:    src.Root,
			Pattern: src.Pattern,
			Source:  fmt.Sprintf("%s:%s", src.Platform, src.Root),
			Parse:   src.Parse,
			Path:    src.Path,
			Tracker: incremental.NewObjectTracker(store),
			Format:  format,
			Name:    job.Name,
		}, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown source type %q", src.Type)
	}
}

func buildLoader(ctx context.Context, conns *connections, sink models.SinkConfig) (etl.Loader, error) {
	switch sink.Type {
	case models.SinkFile:
		codec, err := compress.ParseCodec(sink.Compression)
		if err != nil {
			return nil, err
		}
		return &etl.FileLoader{Dir: sink.Dir, Codec: codec}, nil
	case models.SinkMongo:
		client, err := conns.mongoClient(ctx)
		if err != nil {
			return nil, err
		}
		return &etl.MongoLoader{
			Client:     client,
			Database:   sink.Database,
			Collection: sink.Collection,
			IDField:    sink.IDField,
			BatchSize:  sink.BatchSize,
		}, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", sink.Type)
	}
}
