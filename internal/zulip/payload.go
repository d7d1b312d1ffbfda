package zulip

import (
	"encoding/json"
	"net/url"
	"strings"
)

type MessageType string

const (
	TypeDirect  MessageType = "direct"
	TypeChannel MessageType = "channel"
)

// NormalizeType maps a configured message type onto the two Zulip types.
// Legacy names are accepted; anything unrecognized becomes a channel message.
func NormalizeType(raw string) MessageType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "direct", "private":
		return TypeDirect
	default:
		return TypeChannel
	}
}

// Payload is one Zulip send-message request.
type Payload struct {
	Type    MessageType
	To      []string // direct recipients
	Channel string
	Topic   string
	Content string
}

type directJSON struct {
	Type    MessageType `json:"type"`
	To      []string    `json:"to"`
	Content string      `json:"content"`
}

type channelJSON struct {
	Type    MessageType `json:"type"`
	To      string      `json:"to"`
	Topic   string      `json:"topic"`
	Content string      `json:"content"`
}

// MarshalJSON renders the payload the way Zulip documents it: "to" is a list
// for direct messages and the channel name otherwise.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Type == TypeDirect {
		to := p.To
		if to == nil {
			to = []string{}
		}
		return json.Marshal(directJSON{Type: p.Type, To: to, Content: p.Content})
	}
	return json.Marshal(channelJSON{Type: TypeChannel, To: p.Channel, Topic: p.Topic, Content: p.Content})
}

// Form encodes the payload as the form body the Zulip API accepts.
func (p Payload) Form() url.Values {
	v := url.Values{}
	if p.Type == TypeDirect {
		to := p.To
		if to == nil {
			to = []string{}
		}
		b, _ := json.Marshal(to)
		v.Set("type", string(TypeDirect))
		v.Set("to", string(b))
		v.Set("content", p.Content)
		return v
	}
	v.Set("type", string(TypeChannel))
	v.Set("to", p.Channel)
	v.Set("topic", p.Topic)
	v.Set("content", p.Content)
	return v
}
