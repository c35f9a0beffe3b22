// Package pipeline implements the inbound message pipeline: webhook payload
// to stored message to automation dispatch, and the callback path that sends
// automation responses back out through the channel.
package pipeline

import (
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// InboundRequest is one raw webhook delivery handed to the processor.
type InboundRequest struct {
	Channel channel.ChannelType
	// TenantID is set when the webhook URL carried an explicit tenant segment.
	TenantID string
	Raw      []byte
	// SecretHint is the provider-echoed webhook secret, when present.
	SecretHint string
	// TokenHint is a bot-token credential hint, when the provider sends one.
	TokenHint string
}

// InboundResult reports what the pipeline did with a delivery.
type InboundResult struct {
	// Ignored is true for structurally valid payloads that are not user
	// messages. They are acknowledged and dropped.
	Ignored bool
	// Duplicate is true when the provider redelivered an already stored
	// message. No dispatch happens.
	Duplicate      bool
	TenantID       string
	ContactID      string
	ConversationID string
	MessageID      string
}

// CallbackRequest is an automation endpoint's response to be relayed back to
// the contact. Correlation comes from the signed token when present,
// otherwise from the explicit fields.
type CallbackRequest struct {
	Token          string
	TenantID       string
	ConversationID string
	// Channel and ThreadID identify the destination when no conversation id
	// is known (raw identity fallback).
	Channel  channel.ChannelType
	ThreadID string
	Text     string
}

// CallbackResult reports the outbound delivery.
type CallbackResult struct {
	MessageID         string
	ConversationID    string
	ExternalMessageID string
}

// EventPayload is the JSON body POSTed to automation endpoints.
type EventPayload struct {
	Event         string              `json:"event"`
	TenantID      string              `json:"tenant_id"`
	Channel       channel.ChannelType `json:"channel"`
	Timestamp     time.Time           `json:"timestamp"`
	Message       EventMessage        `json:"message"`
	Contact       EventContact        `json:"contact"`
	Conversation  EventConversation   `json:"conversation"`
	CallbackURL   string              `json:"callback_url,omitempty"`
	CallbackToken string              `json:"callback_token,omitempty"`
}

// EventMessage is the message block of an event payload.
type EventMessage struct {
	ID                string              `json:"id"`
	Content           string              `json:"content"`
	ContentType       channel.ContentType `json:"content_type"`
	MediaURL          string              `json:"media_url,omitempty"`
	ExternalMessageID string              `json:"external_message_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// EventContact is the contact block of an event payload.
type EventContact struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	Status      string            `json:"status"`
	Identities  map[string]string `json:"identities,omitempty"`
	IsNew       bool              `json:"is_new"`
}

// EventConversation is the conversation block of an event payload.
type EventConversation struct {
	ID               string `json:"id"`
	ExternalThreadID string `json:"external_thread_id"`
	Status           string `json:"status"`
	IsNew            bool   `json:"is_new"`
}
