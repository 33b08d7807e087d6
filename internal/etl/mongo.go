package etl

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/BartekS5/streamkit/internal/incremental"
	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/logger"
	"github.com/BartekS5/streamkit/pkg/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoExtractor reads a collection in ascending order of the watermark
// column, starting above the persisted watermark. Without a column it reads
// every document ordered by _id.
type MongoExtractor struct {
	Client     *mongo.Client
	Database   string
	Collection string
	PageSize   int
	Tracker    *incremental.RowTracker
	Format     stream.Format
	Name       string
}

func (m *MongoExtractor) Extract(ctx context.Context) (*stream.Stream, error) {
	start, err := m.Tracker.Start(ctx)
	if err != nil {
		return nil, err
	}

	filter, sortField := m.filter(start)
	src := m.Tracker.Wrap(ctx, m.documents(ctx, filter, sortField))
	return stream.New(m.Name, m.Format, src), nil
}

// filter selects documents above start and names the field they are sorted by.
func (m *MongoExtractor) filter(start any) (bson.M, string) {
	col := m.Tracker.Column()
	if col == "" {
		return bson.M{}, "_id"
	}
	if start == nil {
		return bson.M{}, col
	}
	return bson.M{col: bson.M{"$gt": start}}, col
}

// documents opens the cursor when iteration starts and closes it when
// iteration ends or is stopped.
func (m *MongoExtractor) documents(ctx context.Context, filter bson.M, sortField string) iter.Seq2[stream.Record, error] {
	return func(yield func(stream.Record, error) bool) {
		coll := m.Client.Database(m.Database).Collection(m.Collection)

		size := m.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		findOpts := options.Find().SetSort(bson.D{{Key: sortField, Value: 1}}).SetBatchSize(int32(size))

		cursor, err := coll.Find(ctx, filter, findOpts)
		if err != nil {
			yield(nil, fmt.Errorf("querying %s.%s: %w", m.Database, m.Collection, err))
			return
		}
		defer cursor.Close(context.Background())

		for cursor.Next(ctx) {
			var doc bson.M
			if err := cursor.Decode(&doc); err != nil {
				logger.Errorf("Error decoding mongo doc: %v", err)
				continue
			}
			if !yield(stream.Record(utils.NormalizeMap(doc)), nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// MongoLoader upserts the decoded records of a stream by IDField, in bulk
// batches of BatchSize.
type MongoLoader struct {
	Client     *mongo.Client
	Database   string
	Collection string
	IDField    string
	BatchSize  int
}

func (m *MongoLoader) Load(ctx context.Context, s *stream.Stream) error {
	coll := m.Client.Database(m.Database).Collection(m.Collection)
	size := m.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	var writes []mongo.WriteModel
	for doc, err := range s.Readlines() {
		if err != nil {
			return err
		}
		idVal := doc[m.IDField]
		if idVal == nil {
			logger.Errorf("Skipping document without %s", m.IDField)
			continue
		}

		filter := bson.M{m.IDField: idVal}
		update := bson.M{"$set": map[string]any(doc)}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))

		if len(writes) >= size {
			if err := m.flush(ctx, coll, writes); err != nil {
				return err
			}
			writes = writes[:0]
		}
	}
	return m.flush(ctx, coll, writes)
}

func (m *MongoLoader) flush(ctx context.Context, coll *mongo.Collection, writes []mongo.WriteModel) error {
	if len(writes) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := coll.BulkWrite(ctx, writes)
	if err != nil {
		return fmt.Errorf("bulk write to %s.%s: %w", m.Database, m.Collection, err)
	}
	logger.Infof("Mongo BulkWrite: Match %d, Mod %d, Upsert %d", res.MatchedCount, res.ModifiedCount, res.UpsertedCount)
	return nil
}
