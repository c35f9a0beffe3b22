package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/relaydesk/relaydesk/internal/channel"
)

func TestParseInboundRelayPayload(t *testing.T) {
	raw := []byte(`{
		"message_id": "111222333",
		"channel_id": "444555666",
		"guild_id": "777",
		"content": "hey support",
		"timestamp": "2026-08-28T10:00:00Z",
		"author": {"id": "888", "username": "grace", "global_name": "Grace H"}
	}`)
	adapter := NewAdapter(nil)
	msg, ok, err := adapter.ParseInbound(raw, channel.Credential{})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if !ok {
		t.Fatal("expected a user message")
	}
	if msg.MessageID != "111222333" {
		t.Errorf("message id = %q", msg.MessageID)
	}
	if msg.ThreadID != "444555666" {
		t.Errorf("thread id = %q", msg.ThreadID)
	}
	if msg.Text != "hey support" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Sender.SubjectID != "888" || msg.Sender.Username != "grace" {
		t.Errorf("sender = %+v", msg.Sender)
	}
	if msg.Sender.DisplayName != "Grace H" {
		t.Errorf("display name = %q", msg.Sender.DisplayName)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("expected parsed timestamp")
	}
}

func TestParseInboundIgnoresBotAuthors(t *testing.T) {
	raw := []byte(`{
		"message_id": "1",
		"channel_id": "2",
		"content": "beep",
		"author": {"id": "3", "username": "helper", "bot": true}
	}`)
	adapter := NewAdapter(nil)
	_, ok, err := adapter.ParseInbound(raw, channel.Credential{})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if ok {
		t.Error("bot messages must be ignored")
	}
}

func TestParseInboundAttachmentClassification(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		want        channel.ContentType
		placeholder string
	}{
		{"image", "image/png", channel.ContentPhoto, "[Photo]"},
		{"audio", "audio/ogg", channel.ContentAudio, "[Audio]"},
		{"video", "video/mp4", channel.ContentVideo, "[Video]"},
		{"other", "application/pdf", channel.ContentDocument, "[Document]"},
	}
	adapter := NewAdapter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{
				"message_id": "1",
				"channel_id": "2",
				"author": {"id": "3", "username": "grace"},
				"attachments": [{"url": "https://cdn.example.com/f", "content_type": "` + tt.contentType + `"}]
			}`)
			msg, ok, err := adapter.ParseInbound(raw, channel.Credential{})
			if err != nil || !ok {
				t.Fatalf("ParseInbound: ok=%v err=%v", ok, err)
			}
			if msg.Content != tt.want {
				t.Errorf("content = %q, want %q", msg.Content, tt.want)
			}
			if msg.Text != tt.placeholder {
				t.Errorf("text = %q, want %q", msg.Text, tt.placeholder)
			}
			if msg.MediaURL != "https://cdn.example.com/f" {
				t.Errorf("media url = %q", msg.MediaURL)
			}
		})
	}
}

func TestParseInboundEmptyPayloadIgnored(t *testing.T) {
	raw := []byte(`{"message_id": "1", "channel_id": "2", "author": {"id": "3", "username": "grace"}}`)
	adapter := NewAdapter(nil)
	_, ok, err := adapter.ParseInbound(raw, channel.Credential{})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if ok {
		t.Error("payload without content must be ignored")
	}
}

func TestParseInboundMissingChannelID(t *testing.T) {
	raw := []byte(`{"message_id": "1", "content": "hi", "author": {"id": "3"}}`)
	adapter := NewAdapter(nil)
	if _, _, err := adapter.ParseInbound(raw, channel.Credential{}); err == nil {
		t.Fatal("expected error for missing channel_id")
	}
}

func TestParseInboundMalformedPayload(t *testing.T) {
	adapter := NewAdapter(nil)
	if _, _, err := adapter.ParseInbound([]byte(`[`), channel.Credential{}); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestSendValidatesInput(t *testing.T) {
	getOrCreateSessionForTest = func(a *Adapter, token string) (*discordgo.Session, error) {
		return nil, errors.New("no session in tests")
	}
	t.Cleanup(func() { getOrCreateSessionForTest = nil })

	adapter := NewAdapter(nil)
	ctx := context.Background()
	if _, err := adapter.Send(ctx, channel.Credential{Token: "x"}, "", "hi"); err == nil {
		t.Error("expected error for empty target")
	}
	if _, err := adapter.Send(ctx, channel.Credential{Token: "x"}, "123", ""); err == nil {
		t.Error("expected error for empty text")
	}
	_, err := adapter.Send(ctx, channel.Credential{Token: "x"}, "123", "hi")
	var sendErr *channel.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error %T is not a SendError", err)
	}
}
