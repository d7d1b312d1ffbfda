package config

import (
	"strings"

	logx "zulipnotify/pkg/logx"
)

// SummarizeConfigChange returns (1) the changed sections, (2) safe structured
// fields for logging (never secrets), and (3) the changed sections that only
// take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)
	restart := make([]string, 0, 3)

	if strings.TrimSpace(oldCfg.Zulip.WebhookURL) != strings.TrimSpace(newCfg.Zulip.WebhookURL) ||
		strings.TrimSpace(oldCfg.Zulip.ApplicationURL) != strings.TrimSpace(newCfg.Zulip.ApplicationURL) {
		changed = append(changed, "zulip")
		attrs = append(attrs,
			logx.Bool("zulip.webhook_url_set", strings.TrimSpace(newCfg.Zulip.WebhookURL) != ""),
			logx.String("zulip.application_url", strings.TrimSpace(newCfg.Zulip.ApplicationURL)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Transport != newCfg.Transport {
		changed = append(changed, "transport")
		attrs = append(attrs, logx.Int("transport.rate_per_sec", newCfg.Transport.RatePerSec))
		if oldCfg.Transport.Workers != newCfg.Transport.Workers ||
			oldCfg.Transport.QueueSize != newCfg.Transport.QueueSize {
			restart = append(restart, "transport")
		}
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	// The token is read per request, so rotating it needs no restart.
	if oldCfg.HTTP.Token != newCfg.HTTP.Token {
		changed = append(changed, "http.token")
		attrs = append(attrs, logx.Bool("http.token_set", strings.TrimSpace(newCfg.HTTP.Token) != ""))
	}
	if oldCfg.HTTP.Addr != newCfg.HTTP.Addr ||
		oldCfg.HTTP.ReadTimeout != newCfg.HTTP.ReadTimeout ||
		oldCfg.HTTP.WriteTimeout != newCfg.HTTP.WriteTimeout ||
		oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "http")
		restart = append(restart, "http")
		attrs = append(attrs,
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
		)
	}

	return changed, attrs, restart
}
