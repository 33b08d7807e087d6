package incremental

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/checkpoint"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRowTrackerScenario(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.Open("test", checkpoint.NewMemoryBackend())

	tr := NewRowTracker(store, "orders", "updated_at", nil)
	start, err := tr.Start(ctx)
	if err != nil || start != nil {
		t.Fatalf("Start on empty store = %v, %v", start, err)
	}

	var rows []stream.Record
	for _, v := range []int{5, 7, 7, 9} {
		rows = append(rows, stream.Record{"updated_at": v})
	}
	n := 0
	for _, err := range tr.Wrap(ctx, stream.FromSlice(rows)) {
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		n++
	}
	if n != 4 {
		t.Fatalf("got %d rows, want 4", n)
	}

	next := NewRowTracker(store, "orders", "updated_at", nil)
	start, err = next.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start != int64(9) {
		t.Errorf("next run starts at %#v, want int64(9)", start)
	}
}

func TestRowTrackerTracksAfterHandOff(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.Open("test", checkpoint.NewMemoryBackend())
	tr := NewRowTracker(store, "orders", "id", nil)

	rows := stream.FromSlice([]stream.Record{{"id": 1}, {"id": 2}, {"id": 3}})
	for rec, err := range tr.Wrap(ctx, rows) {
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		if rec["id"] == 2 {
			break
		}
	}

	var env envelope
	if _, err := store.Get(ctx, "orders", &env); err != nil {
		t.Fatalf("get: %v", err)
	}
	v, _ := env.decode()
	if v != int64(1) {
		t.Errorf("watermark = %#v, want 1 (row 2 was never released by the consumer)", v)
	}
}

func TestRowTrackerInitValue(t *testing.T) {
	tr := NewRowTracker(checkpoint.Disabled(), "orders", "id", int64(100))
	start, err := tr.Start(context.Background())
	if err != nil || start != int64(100) {
		t.Fatalf("Start = %v, %v; want 100", start, err)
	}
}

func TestRowTrackerMissingColumn(t *testing.T) {
	tr := NewRowTracker(checkpoint.Disabled(), "orders", "updated_at", nil)
	err := tr.Track(context.Background(), stream.Record{"id": 1})
	if err == nil || !strings.Contains(err.Error(), "updated_at") {
		t.Fatalf("got %v, want missing column error", err)
	}
}

func TestRowTrackerWithoutColumn(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.Open("test", checkpoint.NewMemoryBackend())
	tr := NewRowTracker(store, "orders", "", nil)

	if err := tr.Track(ctx, stream.Record{"id": 1}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, found, _ := store.GetRaw(ctx, "orders"); found {
		t.Errorf("inert tracker persisted a watermark")
	}
}

func TestEnvelopeKinds(t *testing.T) {
	oid := primitive.NewObjectID()
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123000000, time.UTC)

	tests := []struct {
		in   any
		want any
	}{
		{int32(5), int64(5)},
		{uint16(6), int64(6)},
		{2.5, 2.5},
		{"2024-05-01", "2024-05-01"},
		{true, true},
		{ts, ts},
		{primitive.NewDateTimeFromTime(ts), ts},
		{oid, oid},
	}
	for _, tt := range tests {
		env, err := newEnvelope(tt.in)
		if err != nil {
			t.Fatalf("newEnvelope(%#v): %v", tt.in, err)
		}
		got, err := env.decode()
		if err != nil {
			t.Fatalf("decode %s: %v", env.Type, err)
		}
		if gt, ok := got.(time.Time); ok {
			if !gt.Equal(tt.want.(time.Time)) {
				t.Errorf("%#v: got %v, want %v", tt.in, gt, tt.want)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("%#v: got %#v, want %#v", tt.in, got, tt.want)
		}
	}

	if _, err := newEnvelope([]int{1}); err == nil {
		t.Errorf("expected error for slice watermark")
	}
}
