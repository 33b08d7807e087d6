// Package checkpoint persists incremental extraction state (watermarks and
// frontiers) in an external key/value backend.
//
// A Store is created once per process with New, configured once with
// Configure, and handed to every component that needs it. Configuring it
// without a host puts it in disabled mode: every Get reports "not found" and
// every Set is a no-op, so extractions run in full each time.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/BartekS5/streamkit/pkg/logger"
)

var (
	// ErrConfiguration is returned for invalid or repeated configuration.
	ErrConfiguration = errors.New("checkpoint configuration error")

	// ErrNotConfigured is returned when the store is used before Configure.
	ErrNotConfigured = fmt.Errorf("%w: store used before Configure", ErrConfiguration)

	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("checkpoint store closed")
)

// Backend is a raw key/value store holding serialized checkpoint values.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Settings identifies the checkpoint backend. Name is the namespace every key
// lives in (a Redis hash or a Mongo database).
type Settings struct {
	Name     string
	Host     string
	Port     int
	Password string
	Backend  string
}

const (
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Store struct {
	mu         sync.Mutex
	configured bool
	closed     bool
	backend    Backend
	name       string
}

// New returns an unconfigured store.
func New() *Store {
	return &Store{}
}

// Disabled returns a store already configured in disabled mode.
func Disabled() *Store {
	return &Store{configured: true}
}

// Open returns a store configured on top of an existing backend.
func Open(name string, b Backend) *Store {
	return &Store{configured: true, backend: b, name: name}
}

// Configure validates cfg and connects the backend. It may only be called
// once per Store.
func (s *Store) Configure(ctx context.Context, cfg Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.configured {
		return fmt.Errorf("%w: store already configured", ErrConfiguration)
	}
	if cfg.Name == "" && cfg.Host == "" {
		s.configured = true
		logger.Warn("Checkpoint store disabled: every run re-extracts from scratch")
		return nil
	}
	if cfg.Name == "" || cfg.Host == "" {
		return fmt.Errorf("%w: name and host must be set together (name=%q host=%q)", ErrConfiguration, cfg.Name, cfg.Host)
	}

	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "", BackendRedis:
		b, err = dialRedis(ctx, cfg)
	case BackendMongo:
		b, err = dialMongo(ctx, cfg)
	case BackendMemory:
		b = NewMemoryBackend()
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrConfiguration, cfg.Backend)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	s.configured = true
	s.backend = b
	s.name = cfg.Name
	logger.Infof("Checkpoint store enabled: backend=%s name=%s host=%s", backendName(cfg.Backend), cfg.Name, cfg.Host)
	return nil
}

// Enabled reports whether values are actually persisted.
func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil && !s.closed
}

// Get decodes the value stored under key into into. It reports false when the
// store is disabled, the key is absent or the stored value is null.
func (s *Store) Get(ctx context.Context, key string, into any) (bool, error) {
	b, err := s.current()
	if err != nil || b == nil {
		return false, err
	}
	data, ok, err := b.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reading checkpoint %q: %w", key, err)
	}
	if !ok || string(data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decoding checkpoint %q: %w", key, err)
	}
	return true, nil
}

// GetRaw returns the serialized value stored under key.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.current()
	if err != nil || b == nil {
		return nil, false, err
	}
	return b.Get(ctx, key)
}

// Set persists value under key. Map keys are serialized in sorted order so
// equal values always produce equal bytes.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	b, err := s.current()
	if err != nil || b == nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding checkpoint %q: %w", key, err)
	}
	if err := b.Set(ctx, key, data); err != nil {
		return fmt.Errorf("writing checkpoint %q: %w", key, err)
	}
	return nil
}

// Close releases the backend. Any later Get or Set returns ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

func (s *Store) current() (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.backend, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendRedis
	}
	return b
}

// MemoryBackend keeps values in process memory. It is used for dry runs and
// tests; nothing survives the process.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// DryRun returns a store that reads through to s but keeps every write in
// memory, so a trial run sees the real checkpoints without moving them.
func DryRun(s *Store) *Store {
	b, err := s.current()
	if err != nil || b == nil {
		return Disabled()
	}
	return Open(s.name, &overlayBackend{base: b, writes: NewMemoryBackend()})
}

type overlayBackend struct {
	base   Backend
	writes *MemoryBackend
}

func (o *overlayBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, _ := o.writes.Get(ctx, key); ok {
		return v, true, nil
	}
	return o.base.Get(ctx, key)
}

func (o *overlayBackend) Set(ctx context.Context, key string, value []byte) error {
	return o.writes.Set(ctx, key, value)
}

// Close leaves the underlying backend open; it belongs to the wrapped store.
func (o *overlayBackend) Close() error { return nil }
