package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription; card calendars refer to
// it by ID.
type ICSConfig struct {
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// CalDAVConfig describes one CalDAV-backed calendar.
type CalDAVConfig struct {
	ID       string `yaml:"id" json:"id"`
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	// Collection is the display name of the collection; empty reads all.
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

// BackendConfig points at the HTTP JSON event fetch service that serves
// every calendar not listed under ics or caldav.
type BackendConfig struct {
	URL   string `yaml:"url" json:"url"`
	Token string `yaml:"token,omitempty" json:"-"`
}

// RedisConfig enables the Redis pub/sub transport for push
// subscriptions such as weather forecasts.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db,omitempty" json:"db,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone all calendar math runs in (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds the ICS conditional-request cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Backend BackendConfig  `yaml:"backend" json:"backend"`
	ICS     []ICSConfig    `yaml:"ics" json:"ics"`
	CalDAV  []CalDAVConfig `yaml:"caldav" json:"caldav"`
	Redis   *RedisConfig   `yaml:"redis,omitempty" json:"redis,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Card is the calendar card configuration, legacy shapes included.
	Card Card `yaml:"card" json:"card"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
		LogLevel: "info",
		CacheDir: "./var/ics-cache",
		ICS:      []ICSConfig{},
		CalDAV:   []CalDAVConfig{},
		Card: Card{
			ViewType:             "month",
			EventRefreshInterval: 15,
		},
	}
}

// Normalize fills in missing values so partially filled or older configs
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CalDAV == nil {
		c.CalDAV = []CalDAVConfig{}
	}
}

// Validate reports settings that cannot work: duplicate backend ids and
// bad card values.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for _, s := range c.ICS {
		if s.ID == "" || s.URL == "" {
			errs = append(errs, fmt.Errorf("ics source %q: id and url are required", s.ID))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate calendar id %q", s.ID))
		}
		seen[s.ID] = true
	}
	for _, s := range c.CalDAV {
		if s.ID == "" || s.URL == "" {
			errs = append(errs, fmt.Errorf("caldav source %q: id and url are required", s.ID))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate calendar id %q", s.ID))
		}
		seen[s.ID] = true
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if err := c.Card.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads the YAML config at path. On first run a default config is
// written there (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename, leaving
// the file at 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".dashcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is shorthand for Save(path, c).
func (c *Config) Save(path string) error {
	return Save(path, c)
}
