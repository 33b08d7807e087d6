// Package incremental decides, across repeated runs, which rows and objects
// were already ingested. Row sources keep a watermark: the last value seen in
// a monotonic column. Object sources keep a frontier: the newest timestamp
// seen and every key carrying it.
package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/BartekS5/streamkit/internal/stream"
	"github.com/BartekS5/streamkit/pkg/logger"
	"github.com/BartekS5/streamkit/pkg/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Checkpointer is the part of checkpoint.Store the trackers use.
type Checkpointer interface {
	Get(ctx context.Context, key string, into any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// RowTracker persists the watermark of one row source. Rows must arrive in
// non-decreasing order of the tracked column; the tracker records whatever it
// sees last and does not check the order.
type RowTracker struct {
	store  Checkpointer
	source string
	column string
	init   any

	last any
}

// NewRowTracker returns a tracker for source. An empty column makes the
// tracker inert: Start returns nil and Track does nothing.
func NewRowTracker(store Checkpointer, source, column string, init any) *RowTracker {
	return &RowTracker{store: store, source: source, column: column, init: init}
}

func (t *RowTracker) Source() string { return t.source }
func (t *RowTracker) Column() string { return t.column }

// Last returns the most recently tracked value.
func (t *RowTracker) Last() any { return t.last }

// Start returns the persisted watermark, or the initial value when nothing was
// persisted. Callers read only rows strictly above it; a nil result means
// read everything.
func (t *RowTracker) Start(ctx context.Context) (any, error) {
	if t.column == "" {
		return nil, nil
	}

	var env envelope
	found, err := t.store.Get(ctx, t.source, &env)
	if err != nil {
		return nil, err
	}
	if !found {
		t.last = t.init
		if t.init != nil {
			logger.Infof("No watermark for %s, starting from %s > %v", t.source, t.column, t.init)
		}
		return t.init, nil
	}

	v, err := env.decode()
	if err != nil {
		return nil, fmt.Errorf("watermark for %s: %w", t.source, err)
	}
	t.last = v
	logger.Infof("Resuming %s from %s > %v", t.source, t.column, v)
	return v, nil
}

// Track persists row's column value as the new watermark.
func (t *RowTracker) Track(ctx context.Context, row stream.Record) error {
	if t.column == "" {
		return nil
	}
	v, ok := row[t.column]
	if !ok {
		return fmt.Errorf("watermark column %q missing from %s row", t.column, t.source)
	}
	env, err := newEnvelope(v)
	if err != nil {
		return fmt.Errorf("watermark for %s: %w", t.source, err)
	}
	if err := t.store.Set(ctx, t.source, env); err != nil {
		return err
	}
	t.last = v
	return nil
}

// Wrap yields every row of seq and tracks it once the consumer asks for the
// next one, so the watermark never moves past a row that was not handed off.
func (t *RowTracker) Wrap(ctx context.Context, seq iter.Seq2[stream.Record, error]) iter.Seq2[stream.Record, error] {
	if t.column == "" {
		return seq
	}
	return func(yield func(stream.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
			if err := t.Track(ctx, rec); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// envelope keeps the Go kind of a watermark across a JSON round trip.
type envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func newEnvelope(v any) (envelope, error) {
	var (
		typ string
		out any
	)
	switch x := utils.NormalizeValue(v).(type) {
	case int64:
		typ, out = "int", x
	case int8, int16, uint, uint8, uint16, uint32, uint64:
		n, err := strconv.ParseInt(fmt.Sprint(x), 10, 64)
		if err != nil {
			return envelope{}, err
		}
		typ, out = "int", n
	case float64:
		typ, out = "float", x
	case string:
		typ, out = "string", x
	case bool:
		typ, out = "bool", x
	case time.Time:
		typ, out = "time", x.Format(time.RFC3339Nano)
	case primitive.ObjectID:
		typ, out = "objectid", x.Hex()
	default:
		return envelope{}, fmt.Errorf("unsupported watermark type %T", v)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Type: typ, Value: data}, nil
}

func (e envelope) decode() (any, error) {
	switch e.Type {
	case "int":
		var n int64
		err := json.Unmarshal(e.Value, &n)
		return n, err
	case "float":
		var f float64
		err := json.Unmarshal(e.Value, &f)
		return f, err
	case "string":
		var s string
		err := json.Unmarshal(e.Value, &s)
		return s, err
	case "bool":
		var b bool
		err := json.Unmarshal(e.Value, &b)
		return b, err
	case "time":
		var s string
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case "objectid":
		var s string
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, err
		}
		return primitive.ObjectIDFromHex(s)
	default:
		return nil, fmt.Errorf("unknown watermark type %q", e.Type)
	}
}
