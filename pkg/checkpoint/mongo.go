package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BartekS5/streamkit/pkg/database"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMongoPort     = 27017
	checkpointCollection = "checkpoints"
)

// mongoBackend stores one document per key in the "checkpoints" collection of
// the database named after the store.
type mongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type checkpointDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func dialMongo(ctx context.Context, cfg Settings) (Backend, error) {
	port := cfg.Port
	if port == 0 {
		port = defaultMongoPort
	}
	uri := fmt.Sprintf("mongodb://%s", net.JoinHostPort(cfg.Host, strconv.Itoa(port)))

	client, err := database.ConnectMongo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &mongoBackend{
		client: client,
		coll:   client.Database(cfg.Name).Collection(checkpointCollection),
	}, nil
}

func (m *mongoBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc checkpointDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(doc.Value), true, nil
}

func (m *mongoBackend) Set(ctx context.Context, key string, value []byte) error {
	update := bson.M{"$set": bson.M{"value": string(value), "updated_at": time.Now().UTC()}}
	_, err := m.coll.UpdateOne(ctx, bson.M{"_id": key}, update, options.Update().SetUpsert(true))
	return err
}

func (m *mongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
