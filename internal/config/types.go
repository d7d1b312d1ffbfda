package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Zulip     ZulipConfig     `json:"zulip"`
	Logging   LoggingConfig   `json:"logging"`
	Transport TransportConfig `json:"transport"`
	Storage   StorageConfig   `json:"storage"`
	HTTP      HTTPConfig      `json:"http"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// ZulipConfig holds the global settings shared by every user and project.
//
// WebhookURL is only a fallback: per-user/per-project metadata wins when set.
// ApplicationURL is the public base URL of the task application; when empty,
// messages carry no task link.
type ZulipConfig struct {
	WebhookURL     string `json:"webhook_url"`
	ApplicationURL string `json:"application_url"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TransportConfig controls the async webhook poster.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - rate_per_sec: 5
//   - timeout: "10s"
type TransportConfig struct {
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// StorageConfig selects the metadata store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./zulipnotify.db" }
type StorageConfig struct {
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"` // sqlite only
	DSN         string      `json:"dsn,omitempty"`          // postgres only (do not log)
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"` // never logged
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// HTTPConfig controls the event ingress server.
//
// Prefer binding to localhost; when the task application lives on another
// host, set a token.
type HTTPConfig struct {
	Addr  string `json:"addr,omitempty"`  // default: "127.0.0.1:8089"
	Token string `json:"token,omitempty"` // optional bearer token (do not log)

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // default: "/metrics"
}

const (
	DefaultHTTPAddr    = "127.0.0.1:8089"
	DefaultMetricsPath = "/metrics"
)

// Validate checks cross-field constraints the JSON decoder cannot.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	for path, raw := range map[string]string{
		"zulip.webhook_url":     c.Zulip.WebhookURL,
		"zulip.application_url": c.Zulip.ApplicationURL,
	} {
		if err := validateURL(path, raw); err != nil {
			return err
		}
	}
	for path, raw := range map[string]string{
		"transport.timeout":    c.Transport.Timeout,
		"storage.busy_timeout": c.Storage.BusyTimeout,
		"http.read_timeout":    c.HTTP.ReadTimeout,
		"http.write_timeout":   c.HTTP.WriteTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "file", "sqlite", "sqlite3", "redis", "postgres", "postgresql":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Transport.Workers < 0 || c.Transport.QueueSize < 0 || c.Transport.RatePerSec < 0 {
		return fmt.Errorf("transport: workers, queue_size and rate_per_sec must be >= 0")
	}
	return nil
}

func validateURL(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", path, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: url must use http or https, got %q", path, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: url must include a host", path)
	}
	return nil
}

// TransportTimeout returns the parsed per-request timeout (default 10s).
func (c *Config) TransportTimeout() time.Duration {
	d, err := ParseDurationOrDefault("transport.timeout", c.Transport.Timeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
