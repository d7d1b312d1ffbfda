package zulip

import (
	"strings"

	"zulipnotify/internal/storage"
)

// Metadata keys.
const (
	KeyWebhookURL  = "zulip_webhook_url"
	KeyBotAPIKey   = "zulip_webhook_botapi"
	KeyMessageType = "zulip_message_type"
	KeyChannel     = "zulip_webhook_channel"
	KeySubject     = "zulip_webhook_subject"
	KeyEmail       = "zulip_webhook_email"
	KeyEventFilter = "zulip_webhook_eventfilter" // project only
)

// Keys lists every metadata key, in display order.
var Keys = []string{
	KeyWebhookURL,
	KeyBotAPIKey,
	KeyMessageType,
	KeyChannel,
	KeySubject,
	KeyEmail,
	KeyEventFilter,
}

// RecipientConfig is the resolved per-user or per-project setting set.
type RecipientConfig struct {
	WebhookURL  string
	APIKey      string
	MessageType string
	Channel     string
	Subject     string
	Emails      []string
	// EventFilter is the raw comma-separated allow-list; always empty for users.
	EventFilter string
}

// recipientFromMetadata reads one batch of metadata. Only the webhook URL
// falls back to the global default.
func recipientFromMetadata(scope storage.Scope, meta map[string]string, defaultWebhook string) RecipientConfig {
	rc := RecipientConfig{
		WebhookURL:  strings.TrimSpace(meta[KeyWebhookURL]),
		APIKey:      meta[KeyBotAPIKey],
		MessageType: meta[KeyMessageType],
		Channel:     meta[KeyChannel],
		Subject:     meta[KeySubject],
		Emails:      splitEmails(meta[KeyEmail]),
	}
	if rc.WebhookURL == "" {
		rc.WebhookURL = strings.TrimSpace(defaultWebhook)
	}
	if scope == storage.ScopeProject {
		rc.EventFilter = meta[KeyEventFilter]
	}
	return rc
}

func splitEmails(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// eventFilter is a lower-cased allow-list of event names. A nil filter lets
// everything through.
type eventFilter map[string]struct{}

// parseEventFilter returns nil only for an unset value. Anything else, even
// blanks, is an allow-list, so "   " lets no event through.
func parseEventFilter(raw string) eventFilter {
	if raw == "" {
		return nil
	}
	f := eventFilter{}
	for _, name := range strings.Split(raw, ",") {
		f[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return f
}

func (f eventFilter) allows(eventName string) bool {
	if f == nil {
		return true
	}
	_, ok := f[strings.ToLower(eventName)]
	return ok
}
