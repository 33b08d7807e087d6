package etl

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/checkpoint"
	"github.com/BartekS5/streamkit/pkg/compress"
	"github.com/BartekS5/streamkit/pkg/models"
)

type sliceExtractor struct {
	name    string
	format  stream.Format
	records []stream.Record
}

func (e *sliceExtractor) Extract(context.Context) (*stream.Stream, error) {
	return stream.New(e.name, e.format, stream.FromSlice(e.records)), nil
}

type captureLoader struct {
	got []stream.Record
}

func (l *captureLoader) Load(_ context.Context, s *stream.Stream) error {
	for rec, err := range s.Readlines() {
		if err != nil {
			return err
		}
		l.got = append(l.got, rec)
	}
	return nil
}

func TestPipelineTransformAndValidate(t *testing.T) {
	ext := &sliceExtractor{
		name:   "users",
		format: stream.JSONLines{},
		records: []stream.Record{
			{"user_name": "ann", "points": "10", "extra": 1},
			{"user_name": "bob", "points": "x"},
			{"points": "3"},
		},
	}
	loader := &captureLoader{}

	p := NewPipeline(ext, loader, false)
	p.Transformer = NewTransformer(models.TransformConfig{
		Fields: []models.FieldConfig{
			{Source: "user_name", Target: "username", Type: "string"},
			{Source: "points", Target: "points", Type: "int"},
		},
	})
	p.Validator = NewValidator([]string{"username"})
	p.Limiter = NewThrottle(1000)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []stream.Record{{"username": "ann", "points": int64(10), "extra": int64(1)}}
	if !reflect.DeepEqual(loader.got, want) {
		t.Errorf("got %v, want %v", loader.got, want)
	}
}

func TestTransformerDropUnmapped(t *testing.T) {
	tr := NewTransformer(models.TransformConfig{
		Fields:       []models.FieldConfig{{Source: "Created", Target: "created_at", Type: "datetime"}},
		DropUnmapped: true,
	})
	out, err := tr.Transform(stream.Record{"Created": "2024-05-01T10:00:00Z", "noise": 1})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	ts, ok := out["created_at"].(time.Time)
	if !ok || !ts.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) || len(out) != 1 {
		t.Errorf("got %#v", out)
	}
}

func TestPipelineToCompressedFile(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeObject(t, in, "a.njson", `{"id":1}`+"\n"+`{"id":2}`+"\n", 100)
	store := checkpoint.Open("test", checkpoint.NewMemoryBackend())

	loader := &FileLoader{Dir: out, Codec: compress.Zstd}
	if err := NewPipeline(newObjectExtractor(in, store), loader, false).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(out, "events_*.njson.zst"))
	if len(matches) != 1 {
		t.Fatalf("expected one artifact, found %v", matches)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := compress.NewDecompressReader(f, compress.FromExtension(matches[0]))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if got := strings.Join(lines, "|"); got != `{"id":1}|{"id":2}` {
		t.Errorf("artifact content %q", got)
	}

	tmp, _ := filepath.Glob(filepath.Join(out, ".tmp-*"))
	if len(tmp) != 0 {
		t.Errorf("temporary files left behind: %v", tmp)
	}
}

func TestPipelineBufferedFormat(t *testing.T) {
	out := t.TempDir()
	ext := &sliceExtractor{name: "docs", format: stream.BSON{}, records: []stream.Record{{"a": 1}, {"b": "x"}}}
	if err := NewPipeline(ext, &FileLoader{Dir: out}, false).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(out, "docs_*.bson"))
	if len(matches) != 1 {
		t.Fatalf("expected one bson artifact, found %v", matches)
	}
}

func TestDryRunKeepsCheckpoints(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeObject(t, in, "a.njson", `{"id":1}`+"\n", 100)
	store := checkpoint.Open("test", checkpoint.NewMemoryBackend())

	dry := NewPipeline(newObjectExtractor(in, checkpoint.DryRun(store)), &FileLoader{Dir: out}, true)
	if err := dry.Run(context.Background()); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Errorf("dry run wrote %d files", len(entries))
	}
	if got := collectIDs(t, newObjectExtractor(in, store)); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("dry run moved the frontier: real run got %v", got)
	}
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context) (*stream.Stream, error) {
	return nil, errors.New("source down")
}

func TestPipelineExtractError(t *testing.T) {
	err := NewPipeline(failingExtractor{}, &captureLoader{}, false).Run(context.Background())
	if err == nil || err.Error() != "source down" {
		t.Fatalf("got %v", err)
	}
}

func TestFileLoaderCancelled(t *testing.T) {
	out := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := stream.New("x", stream.JSONLines{}, stream.FromSlice([]stream.Record{{"a": 1}}))
	if err := (&FileLoader{Dir: out}).Load(ctx, s); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if entries, _ := os.ReadDir(out); len(entries) != 0 {
		t.Errorf("cancelled load left %d files", len(entries))
	}
}

func TestThrottleDisabled(t *testing.T) {
	if NewThrottle(0) != nil {
		t.Fatalf("zero rate should disable throttling")
	}
	seq := stream.FromSlice([]stream.Record{{"a": 1}})
	n := 0
	for range Throttle(context.Background(), seq, nil) {
		n++
	}
	if n != 1 {
		t.Errorf("got %d records", n)
	}
}
