package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInvariantViolation is returned when an object older than the frontier is
// marked as ingested, which means the caller visited objects out of order.
var ErrInvariantViolation = errors.New("incremental invariant violated")

// Frontier is the newest object timestamp ingested from a source together
// with every key seen at exactly that timestamp. The zero value is the empty
// frontier, which admits everything.
type Frontier struct {
	Max  *time.Time
	Keys map[string]struct{}
}

// Admits reports whether the object (ts, key) still needs ingesting.
func (f Frontier) Admits(ts time.Time, key string) bool {
	switch {
	case f.Max == nil:
		return true
	case ts.Before(*f.Max):
		return false
	case ts.After(*f.Max):
		return true
	default:
		_, seen := f.Keys[key]
		return !seen
	}
}

// Advance returns the frontier after ingesting (ts, key). f is not modified.
func (f Frontier) Advance(ts time.Time, key string) (Frontier, error) {
	if f.Max == nil || ts.After(*f.Max) {
		t := ts
		return Frontier{Max: &t, Keys: map[string]struct{}{key: {}}}, nil
	}
	if ts.Before(*f.Max) {
		return f, fmt.Errorf("%w: object %q at %s is older than frontier %s",
			ErrInvariantViolation, key, ts.Format(time.RFC3339Nano), f.Max.Format(time.RFC3339Nano))
	}

	keys := make(map[string]struct{}, len(f.Keys)+1)
	for k := range f.Keys {
		keys[k] = struct{}{}
	}
	keys[key] = struct{}{}
	return Frontier{Max: f.Max, Keys: keys}, nil
}

// SortedKeys returns the keys at the frontier timestamp in ascending order.
func (f Frontier) SortedKeys() []string {
	keys := make([]string, 0, len(f.Keys))
	for k := range f.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type frontierJSON struct {
	MaxTimestamp *time.Time `json:"max_timestamp"`
	Keys         []string   `json:"keys"`
}

func (f Frontier) MarshalJSON() ([]byte, error) {
	return json.Marshal(frontierJSON{MaxTimestamp: f.Max, Keys: f.SortedKeys()})
}

func (f *Frontier) UnmarshalJSON(data []byte) error {
	var raw frontierJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Max = raw.MaxTimestamp
	f.Keys = make(map[string]struct{}, len(raw.Keys))
	for _, k := range raw.Keys {
		f.Keys[k] = struct{}{}
	}
	return nil
}

// ObjectTracker keeps one frontier per object source. A frontier is loaded
// from the store the first time its source is used and written through on
// every MarkIngested.
type ObjectTracker struct {
	store Checkpointer

	mu        sync.Mutex
	frontiers map[string]Frontier
}

func NewObjectTracker(store Checkpointer) *ObjectTracker {
	return &ObjectTracker{store: store, frontiers: make(map[string]Frontier)}
}

// Frontier returns the current frontier of source.
func (o *ObjectTracker) Frontier(ctx context.Context, source string) (Frontier, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx, source)
}

func (o *ObjectTracker) load(ctx context.Context, source string) (Frontier, error) {
	if f, ok := o.frontiers[source]; ok {
		return f, nil
	}
	var f Frontier
	found, err := o.store.Get(ctx, source, &f)
	if err != nil {
		return Frontier{}, err
	}
	if !found {
		f = Frontier{}
	}
	o.frontiers[source] = f
	return f, nil
}

// ShouldIngest reports whether the object (ts, key) of source is not yet
// covered by its frontier.
func (o *ObjectTracker) ShouldIngest(ctx context.Context, source string, ts time.Time, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, err := o.load(ctx, source)
	if err != nil {
		return false, err
	}
	return f.Admits(ts, key), nil
}

// MarkIngested advances the frontier of source past (ts, key) and persists it.
// The in-memory frontier only changes once the store accepted the new value.
func (o *ObjectTracker) MarkIngested(ctx context.Context, source string, ts time.Time, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, err := o.load(ctx, source)
	if err != nil {
		return err
	}
	next, err := f.Advance(ts, key)
	if err != nil {
		return err
	}
	if err := o.store.Set(ctx, source, next); err != nil {
		return err
	}
	o.frontiers[source] = next
	return nil
}

// Object is one entry of an object store listing.
type Object struct {
	Key      string
	Modified time.Time
	Size     int64
}

// SortObjects orders a listing by modification time, then key, which is the
// order the frontier expects objects to be marked in.
func SortObjects(objs []Object) {
	sort.SliceStable(objs, func(i, j int) bool {
		if !objs[i].Modified.Equal(objs[j].Modified) {
			return objs[i].Modified.Before(objs[j].Modified)
		}
		return objs[i].Key < objs[j].Key
	})
}
