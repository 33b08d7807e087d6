package etl

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/BartekS5/streamkit/internal/config"
	"github.com/BartekS5/streamkit/internal/incremental"
	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/checkpoint"
	"github.com/BartekS5/streamkit/pkg/database"
	"github.com/BartekS5/streamkit/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TestSQLToMongoIncremental needs a SQL Server with a users table and a
// MongoDB, both named by the usual connection string variables.
func TestSQLToMongoIncremental(t *testing.T) {
	if os.Getenv("SQL_CONNECTION_STRING") == "" || os.Getenv("MONGO_CONNECTION_STRING") == "" {
		t.Skip("SQL_CONNECTION_STRING and MONGO_CONNECTION_STRING not set")
	}
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := database.ConnectSQL(ctx, cfg.SQLConnString)
	if err != nil {
		t.Fatalf("Failed to connect to SQL: %v", err)
	}
	defer sqlDB.Close()

	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoConnString)
	if err != nil {
		t.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer database.DisconnectMongo(mongoClient)

	cleanupTestData(t, sqlDB, mongoClient)
	defer cleanupTestData(t, sqlDB, mongoClient)

	store := checkpoint.Open("integration", checkpoint.NewMemoryBackend())
	run := func() {
		tracker := incremental.NewRowTracker(store, "users", "id", nil)
		ext := &SQLExtractor{DB: sqlDB, Table: "users", Tracker: tracker, Format: stream.JSONLines{}, Name: "users"}
		loader := &MongoLoader{Client: mongoClient, Database: "mydb", Collection: "users", IDField: "id"}
		p := NewPipeline(ext, loader, false)
		p.Transformer = NewTransformer(models.TransformConfig{
			Fields: []models.FieldConfig{{Source: "user_name", Target: "username", Type: "string"}},
		})
		if err := p.Run(ctx); err != nil {
			t.Fatalf("Pipeline execution failed: %v", err)
		}
	}

	insertTestUser(t, sqlDB, "test_user")
	run()
	verifyMongoUser(t, mongoClient, "test_user")

	insertTestUser(t, sqlDB, "second_user")
	run()
	verifyMongoUser(t, mongoClient, "second_user")
}

func insertTestUser(t *testing.T, db *sql.DB, name string) {
	query := `
		INSERT INTO users (user_name, password, email, name, points, status, registered_at)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7)
	`
	_, err := db.Exec(query, name, "password123", name+"@example.com", "Test User", 100, "ACTIVE", time.Now())
	if err != nil {
		t.Fatalf("Failed to insert test user: %v", err)
	}
}

func verifyMongoUser(t *testing.T, client *mongo.Client, name string) {
	coll := client.Database("mydb").Collection("users")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result bson.M
	if err := coll.FindOne(ctx, bson.M{"email": name + "@example.com"}).Decode(&result); err != nil {
		t.Fatalf("Failed to find user in MongoDB: %v", err)
	}
	if result["username"] != name {
		t.Errorf("Expected username %s, got %v", name, result["username"])
	}
}

func cleanupTestData(t *testing.T, sqlDB *sql.DB, mongoClient *mongo.Client) {
	sqlDB.Exec("DELETE FROM users WHERE email LIKE @p1", "%@example.com")

	coll := mongoClient.Database("mydb").Collection("users")
	coll.DeleteMany(context.Background(), bson.M{"email": bson.M{"$regex": "@example\\.com$"}})
}
