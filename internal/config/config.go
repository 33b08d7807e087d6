// Package config loads process settings from the environment and job
// definitions from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BartekS5/streamkit/pkg/checkpoint"
	"github.com/BartekS5/streamkit/pkg/models"
)

// Config holds all configuration for the application, loaded from
// environment variables (which may come from the .env file read in main.go).
type Config struct {
	SQLConnString   string
	MongoConnString string
	Checkpoint      checkpoint.Settings
	LogLevel        string
	LogFormat       string
	LogFile         string
}

// LoadConfig reads the environment. Connection strings are optional here;
// Require checks the ones a job actually needs.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		Checkpoint: checkpoint.Settings{
			Name:     os.Getenv("CHECKPOINT_NAME"),
			Host:     os.Getenv("CHECKPOINT_HOST"),
			Password: os.Getenv("CHECKPOINT_PASSWORD"),
			Backend:  os.Getenv("CHECKPOINT_BACKEND"),
		},
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),
		LogFile:   os.Getenv("LOG_FILE"),
	}

	if p := os.Getenv("CHECKPOINT_PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("CHECKPOINT_PORT: %w", err)
		}
		cfg.Checkpoint.Port = port
	}
	return cfg, nil
}

// Require reports the first connection string job needs but the environment
// does not provide.
func (c *Config) Require(job *models.Job) error {
	needSQL := job.Source.Type == models.SourceSQL
	needMongo := job.Source.Type == models.SourceMongo || job.Sink.Type == models.SinkMongo

	if needSQL && c.SQLConnString == "" {
		return errors.New("SQL_CONNECTION_STRING environment variable not set")
	}
	if needMongo && c.MongoConnString == "" {
		return errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}
	return nil
}

// LoadJob reads and parses the YAML job file at path.
func LoadJob(path string) (*models.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file '%s': %w", path, err)
	}
	job, err := models.LoadJob(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse job file '%s': %w", path, err)
	}
	return job, nil
}
