package index

import (
	"context"
	"fmt"
	"sync"
)

// Store is durable key-value storage holding string values.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key, value string) error

	// Close releases resources held by the store.
	Close() error
}

// Store backend names accepted by Open.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreValkey = "valkey"
)

// StoreConfig selects and configures a Store backend.
type StoreConfig struct {
	// Type is one of "memory", "file", "sqlite" or "valkey" (default: "file")
	Type string `toml:"type"`

	// Dir is the directory used by the file backend
	Dir string `toml:"dir"`

	// Path is the database file used by the sqlite backend
	Path string `toml:"path"`

	// Valkey holds the valkey backend settings
	Valkey ValkeyConfig `toml:"valkey"`
}

// Open builds the Store described by cfg.
func Open(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Type {
	case StoreMemory:
		return NewMemoryStore(), nil
	case StoreFile, "":
		return NewFileStore(cfg.Dir)
	case StoreSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	case StoreValkey:
		return NewValkeyStore(cfg.Valkey)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
}

// MemoryStore keeps values in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
