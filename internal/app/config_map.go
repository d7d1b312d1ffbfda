package app

import (
	"strings"
	"time"

	"zulipnotify/internal/config"
	"zulipnotify/internal/ingress"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/transport"
	"zulipnotify/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		DSN:         strings.TrimSpace(sc.DSN),
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(sc.Redis.Addr),
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   strings.TrimSpace(sc.Redis.Prefix),
		},
	}, nil
}

func mapTransportConfig(cfg *config.Config) transport.Config {
	return transport.Config{
		Workers:    cfg.Transport.Workers,
		QueueSize:  cfg.Transport.QueueSize,
		RatePerSec: cfg.Transport.RatePerSec,
		Timeout:    cfg.TransportTimeout(),
		UserAgent:  strings.TrimSpace(cfg.Transport.UserAgent),
	}
}

func mapIngressConfig(cfg *config.Config) (ingress.Config, error) {
	rt, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 15*time.Second)
	if err != nil {
		return ingress.Config{}, err
	}
	wt, err := config.ParseDurationOrDefault("http.write_timeout", cfg.HTTP.WriteTimeout, 15*time.Second)
	if err != nil {
		return ingress.Config{}, err
	}
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return ingress.Config{
		Addr:         addr,
		ReadTimeout:  rt,
		WriteTimeout: wt,
		IdleTimeout:  60 * time.Second,
	}, nil
}

func metricsPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Metrics.Path); p != "" {
		return p
	}
	return config.DefaultMetricsPath
}

// settings serves the global zulip settings from the live config.
type settings struct {
	cfgm *config.ConfigManager
}

func (s settings) WebhookURL() string {
	if c := s.cfgm.Get(); c != nil {
		return strings.TrimSpace(c.Zulip.WebhookURL)
	}
	return ""
}

func (s settings) ApplicationURL() string {
	if c := s.cfgm.Get(); c != nil {
		return strings.TrimSpace(c.Zulip.ApplicationURL)
	}
	return ""
}

func (s settings) token() string {
	if c := s.cfgm.Get(); c != nil {
		return c.HTTP.Token
	}
	return ""
}
