package index

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds configuration for the valkey backend.
type ValkeyConfig struct {
	// URL is the valkey server address (e.g., "localhost:6379")
	URL string `toml:"url"`

	// Password is the optional password for valkey authentication
	Password string `toml:"password"`

	// TLSEnabled enables TLS for valkey connections
	TLSEnabled bool `toml:"tls"`

	// KeyPrefix is prepended to every key (default: "calpane:")
	KeyPrefix string `toml:"key_prefix"`

	// DB is the valkey database number
	DB int `toml:"db"`
}

// ValkeyStore keeps values in a valkey (or redis) server.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore connects to the valkey server described by cfg.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey URL cannot be empty")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "calpane:"
	}
	return &ValkeyStore{client: client, prefix: prefix}, nil
}

// Get implements Store.
func (s *ValkeyStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements Store.
func (s *ValkeyStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Do(ctx, s.client.B().Set().Key(s.prefix+key).Value(value).Build()).Error(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
