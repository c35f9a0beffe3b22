// Package channel provides a unified abstraction for messaging channels.
// It defines the canonical inbound message shape, the adapter contract for
// translating provider wire formats, and a registry of adapters such as
// Telegram and Discord.
package channel

import (
	"context"
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "discord").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	Username    string
	DisplayName string
}

// IsEmpty reports whether no identity field is set.
func (i Identity) IsEmpty() bool {
	return strings.TrimSpace(i.SubjectID) == "" &&
		strings.TrimSpace(i.Username) == "" &&
		strings.TrimSpace(i.DisplayName) == ""
}

// ContentType classifies the richest content extracted from a provider payload.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentPhoto    ContentType = "photo"
	ContentDocument ContentType = "document"
	ContentAudio    ContentType = "audio"
	ContentVoice    ContentType = "voice"
	ContentVideo    ContentType = "video"
	ContentSticker  ContentType = "sticker"
	ContentLocation ContentType = "location"
	ContentContact  ContentType = "contact"
)

// InboundMessage is the canonical shape of a message received from a channel.
type InboundMessage struct {
	Channel ChannelType
	// MessageID is the provider-assigned message id. May be empty; some
	// providers omit it.
	MessageID string
	Sender    Identity
	// ThreadID is the destination/thread identity used to reply (chat id,
	// channel id, ...).
	ThreadID string
	Text     string
	Content  ContentType
	// MediaURL is a retrievable URL for non-text content, when the provider's
	// file-reference scheme and the stored credential allow building one.
	MediaURL   string
	ReceivedAt time.Time
}

// Credential carries the per-tenant secret material an adapter needs to talk
// to its provider.
type Credential struct {
	Token string
}

// SendError is a typed failure surfaced by Send for provider-level
// rejections (bad credential, invalid destination).
type SendError struct {
	Channel ChannelType
	Reason  string
	Err     error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return string(e.Channel) + " send failed: " + e.Reason + ": " + e.Err.Error()
	}
	return string(e.Channel) + " send failed: " + e.Reason
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Adapter translates between a provider's wire format and the canonical
// message shape, and delivers outbound text through the provider.
type Adapter interface {
	Type() ChannelType
	// ParseInbound decodes a raw provider payload. ok=false means the payload
	// is structurally valid but not a user message (e.g. a service update)
	// and should be acknowledged and ignored, not treated as an error.
	ParseInbound(raw []byte, cred Credential) (msg InboundMessage, ok bool, err error)
	// Send delivers text to a destination and returns the provider-assigned
	// message id. Provider-level rejections are returned as *SendError.
	Send(ctx context.Context, cred Credential, target, text string) (string, error)
}

// WebhookRegistrar is implemented by adapters whose provider supports
// registering a push webhook URL for inbound updates.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, cred Credential, url, secret string) error
	WebhookStatus(ctx context.Context, cred Credential) (WebhookInfo, error)
}

// WebhookInfo describes the provider-side webhook registration state.
type WebhookInfo struct {
	URL              string
	PendingUpdates   int
	LastErrorMessage string
	LastErrorAt      time.Time
}
