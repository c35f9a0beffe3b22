package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/relaydesk/relaydesk/internal/channel"
)

func TestParseInboundTextMessage(t *testing.T) {
	raw := []byte(`{
		"update_id": 1,
		"message": {
			"message_id": 42,
			"date": 1724800000,
			"from": {"id": 777, "first_name": "Ada", "last_name": "Lovelace", "username": "ada"},
			"chat": {"id": 777, "type": "private"},
			"text": "hello there"
		}
	}`)
	adapter := NewAdapter(nil)
	msg, ok, err := adapter.ParseInbound(raw, channel.Credential{})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if !ok {
		t.Fatal("expected a user message")
	}
	if msg.MessageID != "42" {
		t.Errorf("message id = %q, want 42", msg.MessageID)
	}
	if msg.ThreadID != "777" {
		t.Errorf("thread id = %q, want 777", msg.ThreadID)
	}
	if msg.Text != "hello there" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Content != channel.ContentText {
		t.Errorf("content = %q, want text", msg.Content)
	}
	if msg.Sender.SubjectID != "777" || msg.Sender.Username != "ada" {
		t.Errorf("sender = %+v", msg.Sender)
	}
	if msg.Sender.DisplayName != "Ada Lovelace" {
		t.Errorf("display name = %q", msg.Sender.DisplayName)
	}
}

func TestParseInboundPhotoWithCaption(t *testing.T) {
	raw := []byte(`{
		"message": {
			"message_id": 7,
			"date": 1724800000,
			"from": {"id": 5, "first_name": "Bo"},
			"chat": {"id": 5, "type": "private"},
			"caption": "look at this",
			"photo": [
				{"file_id": "small", "width": 90, "height": 90, "file_size": 100},
				{"file_id": "large", "width": 800, "height": 800, "file_size": 9000}
			]
		}
	}`)
	adapter := NewAdapter(nil)
	msg, ok, err := adapter.ParseInbound(raw, channel.Credential{})
	if err != nil || !ok {
		t.Fatalf("ParseInbound: ok=%v err=%v", ok, err)
	}
	if msg.Content != channel.ContentPhoto {
		t.Errorf("content = %q, want photo", msg.Content)
	}
	if msg.Text != "look at this" {
		t.Errorf("text = %q, want caption", msg.Text)
	}
}

func TestParseInboundMediaPlaceholders(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		content channel.ContentType
		text    string
	}{
		{"voice", `"voice": {"file_id": "v1", "duration": 3}`, channel.ContentVoice, "[Voice]"},
		{"document", `"document": {"file_id": "d1", "file_name": "a.pdf"}`, channel.ContentDocument, "[Document]"},
		{"sticker", `"sticker": {"file_id": "s1", "width": 1, "height": 1}`, channel.ContentSticker, "[Sticker]"},
		{"location", `"location": {"longitude": 1.5, "latitude": 2.5}`, channel.ContentLocation, "[Location]"},
	}
	adapter := NewAdapter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"message": {"message_id": 1, "date": 1, "from": {"id": 5, "first_name": "Bo"}, "chat": {"id": 5, "type": "private"}, ` + tt.body + `}}`)
			msg, ok, err := adapter.ParseInbound(raw, channel.Credential{})
			if err != nil || !ok {
				t.Fatalf("ParseInbound: ok=%v err=%v", ok, err)
			}
			if msg.Content != tt.content {
				t.Errorf("content = %q, want %q", msg.Content, tt.content)
			}
			if msg.Text != tt.text {
				t.Errorf("text = %q, want %q", msg.Text, tt.text)
			}
		})
	}
}

func TestParseInboundIgnoresNonMessageUpdates(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"edited message", `{"edited_message": {"message_id": 1, "date": 1}}`},
		{"callback query", `{"callback_query": {"id": "1"}}`},
		{"channel post", `{"channel_post": {"message_id": 1, "date": 1}}`},
		{"service message", `{"message": {"message_id": 1, "date": 1, "from": {"id": 5}, "chat": {"id": 5, "type": "group"}, "new_chat_members": [{"id": 9}]}}`},
	}
	adapter := NewAdapter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok, err := adapter.ParseInbound([]byte(tt.raw), channel.Credential{})
			if err != nil {
				t.Fatalf("ParseInbound: %v", err)
			}
			if ok {
				t.Error("expected update to be ignored")
			}
		})
	}
}

func TestParseInboundMalformedPayload(t *testing.T) {
	adapter := NewAdapter(nil)
	if _, _, err := adapter.ParseInbound([]byte(`{not json`), channel.Credential{}); err == nil {
		t.Fatal("expected an error for malformed json")
	}
}

func TestSendValidatesInput(t *testing.T) {
	getOrCreateBotForTest = func(a *Adapter, token string) (*tgbotapi.BotAPI, error) {
		return nil, errors.New("no bot in tests")
	}
	t.Cleanup(func() { getOrCreateBotForTest = nil })

	adapter := NewAdapter(nil)
	ctx := context.Background()
	if _, err := adapter.Send(ctx, channel.Credential{Token: "x"}, "", "hi"); err == nil {
		t.Error("expected error for empty target")
	}
	if _, err := adapter.Send(ctx, channel.Credential{Token: "x"}, "123", "  "); err == nil {
		t.Error("expected error for empty text")
	}
	_, err := adapter.Send(ctx, channel.Credential{Token: "x"}, "123", "hi")
	var sendErr *channel.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error %T is not a SendError", err)
	}
}

func TestTruncateText(t *testing.T) {
	long := strings.Repeat("a", maxMessageLength+100)
	got := truncateText(long)
	if len(got) > maxMessageLength {
		t.Errorf("len = %d, want <= %d", len(got), maxMessageLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis suffix")
	}
	short := "short"
	if truncateText(short) != short {
		t.Error("short text must pass through unchanged")
	}
}

func TestSanitizeText(t *testing.T) {
	if sanitizeText("plain") != "plain" {
		t.Error("valid utf-8 must pass through")
	}
	invalid := string([]byte{0xff, 0xfe, 'h', 'i'})
	if got := sanitizeText(invalid); strings.Contains(got, "\xff") {
		t.Errorf("sanitized text still contains invalid bytes: %q", got)
	}
}
