package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	SourceSQL     = "sql"
	SourceMongo   = "mongo"
	SourceObjects = "objects"

	SinkFile  = "file"
	SinkMongo = "mongo"
)

// Job is the root of a YAML job file: one source read incrementally, one
// record format, optional per-field transforms and one sink.
type Job struct {
	Name      string          `yaml:"name"`
	Source    SourceConfig    `yaml:"source"`
	Format    FormatConfig    `yaml:"format"`
	Transform TransformConfig `yaml:"transform"`
	Sink      SinkConfig      `yaml:"sink"`
	// Throttle caps records per second; 0 disables it.
	Throttle float64 `yaml:"throttle,omitempty"`
}

type SourceConfig struct {
	Type string `yaml:"type"`

	// sql
	Table   string `yaml:"table,omitempty"`
	OrderBy string `yaml:"orderBy,omitempty"`

	// mongo
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`

	// objects
	Root     string `yaml:"root,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
	Platform string `yaml:"platform,omitempty"`
	Parse    string `yaml:"parse,omitempty"`
	Path     string `yaml:"path,omitempty"`

	Watermark WatermarkConfig `yaml:"watermark,omitempty"`
	// PageSize is the mongo cursor batch size.
	PageSize int `yaml:"pageSize,omitempty"`
}

type WatermarkConfig struct {
	Column string      `yaml:"column"`
	Init   interface{} `yaml:"init,omitempty"`
}

type FormatConfig struct {
	Kind      string   `yaml:"kind"`
	Columns   []string `yaml:"columns,omitempty"`
	Delimiter string   `yaml:"delimiter,omitempty"`
}

type TransformConfig struct {
	Fields       []FieldConfig `yaml:"fields,omitempty"`
	Required     []string      `yaml:"required,omitempty"`
	DropUnmapped bool          `yaml:"dropUnmapped,omitempty"`
}

// FieldConfig renames Source to Target and converts the value to Type.
type FieldConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target,omitempty"`
	Type   string `yaml:"type,omitempty"`
	Format string `yaml:"format,omitempty"`
}

type SinkConfig struct {
	Type        string `yaml:"type"`
	Dir         string `yaml:"dir,omitempty"`
	Compression string `yaml:"compression,omitempty"`
	Database    string `yaml:"database,omitempty"`
	Collection  string `yaml:"collection,omitempty"`
	IDField     string `yaml:"idField,omitempty"`
	BatchSize   int    `yaml:"batchSize,omitempty"`
}

// LoadJob parses a YAML job, fills defaults and validates it.
func LoadJob(data []byte) (*Job, error) {
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	j.applyDefaults()
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

func (j *Job) applyDefaults() {
	if j.Source.PageSize <= 0 {
		j.Source.PageSize = 1000
	}
	if j.Source.Type == SourceObjects {
		if j.Source.Parse == "" {
			j.Source.Parse = "jsonl"
		}
		if j.Source.Platform == "" {
			j.Source.Platform = "file"
		}
	}
	if j.Format.Kind == "" {
		j.Format.Kind = "jsonl"
	}
	if j.Sink.Type == "" {
		j.Sink.Type = SinkFile
	}
	if j.Sink.BatchSize <= 0 {
		j.Sink.BatchSize = 500
	}
	if j.Sink.IDField == "" {
		j.Sink.IDField = "_id"
	}
	for i, f := range j.Transform.Fields {
		if f.Target == "" {
			j.Transform.Fields[i].Target = f.Source
		}
	}
}

func (j *Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}

	s := j.Source
	switch s.Type {
	case SourceSQL:
		if s.Table == "" {
			return fmt.Errorf("job %s: sql source needs a table", j.Name)
		}
		if s.Watermark.Column == "" && s.OrderBy == "" {
			return fmt.Errorf("job %s: sql source needs a watermark column or orderBy", j.Name)
		}
	case SourceMongo:
		if s.Database == "" || s.Collection == "" {
			return fmt.Errorf("job %s: mongo source needs database and collection", j.Name)
		}
	case SourceObjects:
		if s.Root == "" {
			return fmt.Errorf("job %s: objects source needs a root", j.Name)
		}
		if s.Parse != "jsonl" && s.Parse != "csv" {
			return fmt.Errorf("job %s: objects source cannot parse %q", j.Name, s.Parse)
		}
	default:
		return fmt.Errorf("job %s: unknown source type %q", j.Name, s.Type)
	}

	if len([]rune(j.Format.Delimiter)) > 1 {
		return fmt.Errorf("job %s: delimiter must be a single character", j.Name)
	}

	for _, f := range j.Transform.Fields {
		if f.Source == "" {
			return fmt.Errorf("job %s: transform field without source", j.Name)
		}
	}

	switch j.Sink.Type {
	case SinkFile:
		if j.Sink.Dir == "" {
			return fmt.Errorf("job %s: file sink needs a dir", j.Name)
		}
	case SinkMongo:
		if j.Sink.Database == "" || j.Sink.Collection == "" {
			return fmt.Errorf("job %s: mongo sink needs database and collection", j.Name)
		}
	default:
		return fmt.Errorf("job %s: unknown sink type %q", j.Name, j.Sink.Type)
	}
	return nil
}
