package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/teemow/calpane/internal/index"
	"github.com/teemow/calpane/internal/logging"
)

// FileName is the config file looked up in the working directory and the user config dir.
const FileName = "calpane.toml"

const (
	// DefaultAddr is the default listen address of the web UI.
	DefaultAddr = "localhost:8080"

	// DefaultBaseURL is the default public URL the OAuth redirect is built from.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultMetricsAddr is the default address of the metrics server.
	DefaultMetricsAddr = "localhost:9090"
)

// Config is the calpane configuration.
type Config struct {
	// Addr is the listen address of the web UI
	Addr string `toml:"addr"`

	// BaseURL is the URL the browser uses to reach the web UI
	BaseURL string `toml:"base_url"`

	// TimeZone is an IANA zone name used for form input and display (default: Local)
	TimeZone string `toml:"time_zone"`

	// CalendarEndpoint overrides the Calendar API base URL
	CalendarEndpoint string `toml:"calendar_endpoint"`

	Google  GoogleConfig      `toml:"google"`
	Store   index.StoreConfig `toml:"store"`
	Metrics MetricsConfig     `toml:"metrics"`
	Log     LogConfig         `toml:"log"`
}

// GoogleConfig holds the OAuth client credentials.
type GoogleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// MetricsConfig holds configuration for the metrics server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Format is "text" or "json"
	Format string `toml:"format"`
	Debug  bool   `toml:"debug"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	dir := defaultDataDir()
	return Config{
		Addr:    DefaultAddr,
		BaseURL: DefaultBaseURL,
		Store: index.StoreConfig{
			Type: index.StoreFile,
			Dir:  dir,
			Path: filepath.Join(dir, "index.db"),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogConfig{Format: logging.FormatText},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "calpane")
	}
	return ".calpane"
}

// SearchPaths returns the locations checked when no explicit file is given.
func SearchPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "calpane", FileName))
	}
	return paths
}

// Load reads the configuration file on top of the defaults.
// An explicit path must exist. Otherwise SearchPaths are tried in order and
// a missing file means defaults. It returns the file that was used, if any.
func Load(path string) (Config, string, error) {
	cfg := Default()

	candidates := SearchPaths()
	if path != "" {
		candidates = []string{path}
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return cfg, "", fmt.Errorf("failed to read config file: %w", err)
		}

		md, err := toml.DecodeFile(p, &cfg)
		if err != nil {
			return cfg, "", fmt.Errorf("failed to parse config file %s: %w", p, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return cfg, "", fmt.Errorf("unknown keys in config file %s: %s", p, strings.Join(keys, ", "))
		}
		return cfg, p, nil
	}
	return cfg, "", nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	str("CALPANE_ADDR", &c.Addr)
	str("CALPANE_BASE_URL", &c.BaseURL)
	str("CALPANE_TIME_ZONE", &c.TimeZone)
	str("CALPANE_CALENDAR_ENDPOINT", &c.CalendarEndpoint)
	str("CALPANE_STORE", &c.Store.Type)
	str("CALPANE_STORE_DIR", &c.Store.Dir)
	str("CALPANE_STORE_PATH", &c.Store.Path)
	str("VALKEY_URL", &c.Store.Valkey.URL)
	str("VALKEY_PASSWORD", &c.Store.Valkey.Password)
	str("VALKEY_KEY_PREFIX", &c.Store.Valkey.KeyPrefix)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("CALPANE_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("VALKEY_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VALKEY_DB: %w", err)
		}
		c.Store.Valkey.DB = db
	}

	return errors.Join(
		boolean("VALKEY_TLS_ENABLED", &c.Store.Valkey.TLSEnabled),
		boolean("METRICS_ENABLED", &c.Metrics.Enabled),
		boolean("CALPANE_DEBUG", &c.Log.Debug),
	)
}

// Validate checks the configuration. OAuth credentials are not required here;
// without them the UI starts in an error state.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.CalendarEndpoint != "" {
		if _, err := url.ParseRequestURI(c.CalendarEndpoint); err != nil {
			return fmt.Errorf("invalid calendar_endpoint: %w", err)
		}
	}

	switch c.Store.Type {
	case index.StoreMemory:
	case index.StoreFile:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the file store")
		}
	case index.StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
	case index.StoreValkey:
		if c.Store.Valkey.URL == "" {
			return fmt.Errorf("store.valkey.url is required for the valkey store")
		}
	default:
		return fmt.Errorf("unsupported store type %q (must be one of %s, %s, %s, %s)",
			c.Store.Type, index.StoreMemory, index.StoreFile, index.StoreSQLite, index.StoreValkey)
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("invalid metrics addr %q: %w", c.Metrics.Addr, err)
		}
	}

	if !slices.Contains([]string{logging.FormatText, logging.FormatJSON}, c.Log.Format) {
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time_zone: %w", err)
	}
	return loc, nil
}

// OAuthConfigured reports whether a Google client id is set.
func (c *Config) OAuthConfigured() bool {
	return c.Google.ClientID != ""
}
