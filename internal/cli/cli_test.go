package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func disableCheckpoints(t *testing.T) {
	t.Setenv("CHECKPOINT_NAME", "")
	t.Setenv("CHECKPOINT_HOST", "")
	t.Setenv("CHECKPOINT_PORT", "")
}

func TestExtractObjectsToFile(t *testing.T) {
	disableCheckpoints(t)
	in, out := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(in, "a.njson"), []byte(`{"Order ID":1}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	job := "name: orders\n" +
		"source: {type: objects, root: " + in + ", pattern: '*.njson'}\n" +
		"format: {kind: normalized-json}\n" +
		"sink: {type: file, dir: " + out + ", compression: snappy}\n"
	jobPath := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(jobPath, []byte(job), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := NewRootCmd()
	cmd.SetArgs([]string{"extract", "--job", jobPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("extract: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(out, "orders_*.njson.sz"))
	if len(matches) != 1 {
		t.Fatalf("expected one artifact, found %v", matches)
	}
}

func TestExtractMissingJob(t *testing.T) {
	disableCheckpoints(t)
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"extract", "--job", filepath.Join(t.TempDir(), "none.yaml")})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "failed to read job file") {
		t.Fatalf("got %v", err)
	}
}

func TestCheckpointSetDisabled(t *testing.T) {
	disableCheckpoints(t)
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"checkpoint", "set", "orders", "9"})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("got %v", err)
	}
}

func TestCheckpointSetRejectsInvalidJSON(t *testing.T) {
	disableCheckpoints(t)
	cmd := NewRootCmd()
	cmd.SetArgs([]string{"checkpoint", "set", "orders", "{oops"})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "not JSON") {
		t.Fatalf("got %v", err)
	}
}
