package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pomodoro/store"
)

// Config is the top-level YAML configuration for the pomodorod daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config. The file is the primary configuration surface; flags
// exist for small overrides.
type Config struct {
	// Durable state backend
	Store StoreConfig `yaml:"store"`

	// IPC configuration (used by pomoctl)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP API, state websocket and metrics
	HTTP HTTPConfig `yaml:"http"`

	// Notification sinks
	Notify NotifyConfig `yaml:"notify"`

	// Wake scheduler
	Wake WakeConfig `yaml:"wake"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory|file|badger|sqlite|redis|diskv
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`

	// Requests per minute per client IP on the command endpoint. 0 disables.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

type NotifyConfig struct {
	Log     bool          `yaml:"log"`
	Desktop bool          `yaml:"desktop"`
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
}

type WebhookConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type WakeConfig struct {
	// Upper bound on how late a wake fires after the machine resumes.
	CheckIntervalMS int `yaml:"check_interval_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend: store.BackendFile,
			Path:    "~/.local/state/pomodoro",
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "pomodoro:",
			},
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/pomodorod.sock",
		},
		HTTP: HTTPConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:3011",
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Log:     true,
			Desktop: false,
			Webhook: WebhookConfig{
				TimeoutMS: 5000,
			},
		},
		Wake: WakeConfig{
			CheckIntervalMS: 15000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds pointers for flags the user actually set. Each non-nil
// pointer is applied on top of the loaded config, even if it is a zero value.
type FlagOverrides struct {
	StoreBackend *string
	StorePath    *string
	RedisAddr    *string

	IPCSocketPath *string

	HTTPEnabled *bool
	HTTPListen  *string

	NotifyDesktop *bool
	WebhookURL    *string

	WakeCheckIntervalMS *int

	LogLevel *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.StoreBackend != nil {
		cfg.Store.Backend = *o.StoreBackend
	}
	if o.StorePath != nil {
		cfg.Store.Path = *o.StorePath
	}
	if o.RedisAddr != nil {
		cfg.Store.Redis.Addr = *o.RedisAddr
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}

	if o.NotifyDesktop != nil {
		cfg.Notify.Desktop = *o.NotifyDesktop
	}
	if o.WebhookURL != nil {
		cfg.Notify.Webhook.URL = *o.WebhookURL
	}

	if o.WakeCheckIntervalMS != nil {
		cfg.Wake.CheckIntervalMS = *o.WakeCheckIntervalMS
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Store
	switch c.Store.Backend {
	case store.BackendMemory:
	case store.BackendFile, store.BackendBadger, store.BackendSQLite, store.BackendDiskv:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must not be empty for backend %q", c.Store.Backend)
		}
	case store.BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr must not be empty for backend \"redis\"")
		}
		if c.Store.Redis.DB < 0 {
			return errors.New("store.redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, file, badger, sqlite, redis, diskv (got %q)", c.Store.Backend)
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// HTTP
	if c.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
			return fmt.Errorf("http.listen must be host:port: %w", err)
		}
		if c.HTTP.RateLimitPerMin < 0 {
			return errors.New("http.rate_limit_per_min must be >= 0")
		}
	}

	// Notify
	if c.Notify.Webhook.URL != "" {
		u, err := url.Parse(c.Notify.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("notify.webhook.url must be an http(s) URL (got %q)", c.Notify.Webhook.URL)
		}
		if c.Notify.Webhook.TimeoutMS <= 0 {
			return errors.New("notify.webhook.timeout_ms must be > 0")
		}
	}

	// Wake
	if c.Wake.CheckIntervalMS < 100 {
		return errors.New("wake.check_interval_ms must be >= 100")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToStoreConfig converts the file config into the store factory config.
func (c *Config) ToStoreConfig() store.Config {
	return store.Config{
		Backend: c.Store.Backend,
		Path:    ExpandPath(c.Store.Path),
		Redis: store.RedisConfig{
			Addr:     c.Store.Redis.Addr,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
			Prefix:   c.Store.Redis.Prefix,
		},
	}
}

func (c *Config) WakeCheckInterval() time.Duration {
	return time.Duration(c.Wake.CheckIntervalMS) * time.Millisecond
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Notify.Webhook.TimeoutMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
