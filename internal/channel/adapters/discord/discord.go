// Package discord implements the channel.Adapter contract for Discord.
// Inbound traffic arrives as normalized relay payloads (Discord has no
// native push webhook for guild messages); outbound replies go through the
// Discord REST API.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// Type is the Discord channel type.
const Type = channel.ChannelType("discord")

const maxMessageLength = 2000

// relayPayload is the normalized inbound shape a gateway relay POSTs to the
// webhook endpoint for each guild or DM message.
type relayPayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Bot        bool   `json:"bot"`
	} `json:"author"`
	Attachments []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Filename    string `json:"filename"`
	} `json:"attachments"`
}

// Adapter implements channel.Adapter for Discord.
type Adapter struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	sessions map[string]*discordgo.Session // keyed by bot token
}

// NewAdapter creates a Discord adapter with the given logger.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:   log.With(slog.String("adapter", "discord")),
		sessions: make(map[string]*discordgo.Session),
	}
}

var getOrCreateSessionForTest func(a *Adapter, token string) (*discordgo.Session, error)

func (a *Adapter) getOrCreateSession(token string) (*discordgo.Session, error) {
	if getOrCreateSessionForTest != nil {
		return getOrCreateSessionForTest(a, token)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	a.mu.RLock()
	session, ok := a.sessions[token]
	a.mu.RUnlock()
	if ok {
		return session, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if session, ok := a.sessions[token]; ok {
		return session, nil
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		a.logger.Error("create session failed", slog.Any("error", err))
		return nil, err
	}
	a.sessions[token] = session
	return session, nil
}

// Type returns the Discord channel type.
func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// ParseInbound decodes a normalized relay payload. Bot-authored messages and
// payloads without content yield ok=false.
func (a *Adapter) ParseInbound(raw []byte, cred channel.Credential) (channel.InboundMessage, bool, error) {
	var payload relayPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return channel.InboundMessage{}, false, fmt.Errorf("decode discord payload: %w", err)
	}
	if payload.Author.Bot {
		return channel.InboundMessage{}, false, nil
	}
	if payload.ChannelID == "" {
		return channel.InboundMessage{}, false, fmt.Errorf("discord payload has no channel_id")
	}

	msg := channel.InboundMessage{
		Channel:   Type,
		MessageID: payload.MessageID,
		ThreadID:  payload.ChannelID,
		Sender: channel.Identity{
			SubjectID:   payload.Author.ID,
			Username:    payload.Author.Username,
			DisplayName: payload.Author.GlobalName,
		},
		Text:       payload.Content,
		Content:    channel.ContentText,
		ReceivedAt: parseTimestamp(payload.Timestamp),
	}
	if msg.Sender.DisplayName == "" {
		msg.Sender.DisplayName = payload.Author.Username
	}

	if len(payload.Attachments) > 0 {
		attachment := payload.Attachments[0]
		msg.MediaURL = attachment.URL
		msg.Content = classifyAttachment(attachment.ContentType)
		if strings.TrimSpace(msg.Text) == "" {
			msg.Text = placeholderFor(msg.Content)
		}
	}
	if strings.TrimSpace(msg.Text) == "" && msg.MediaURL == "" {
		return channel.InboundMessage{}, false, nil
	}
	return msg, true, nil
}

func classifyAttachment(contentType string) channel.ContentType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return channel.ContentPhoto
	case strings.HasPrefix(contentType, "audio/"):
		return channel.ContentAudio
	case strings.HasPrefix(contentType, "video/"):
		return channel.ContentVideo
	default:
		return channel.ContentDocument
	}
}

func placeholderFor(content channel.ContentType) string {
	switch content {
	case channel.ContentPhoto:
		return "[Photo]"
	case channel.ContentAudio:
		return "[Audio]"
	case channel.ContentVideo:
		return "[Video]"
	default:
		return "[Document]"
	}
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return ts.UTC()
}

// Send delivers text to a Discord channel id and returns the message id.
func (a *Adapter) Send(ctx context.Context, cred channel.Credential, target, text string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", &channel.SendError{Channel: Type, Reason: "target is required"}
	}
	if strings.TrimSpace(text) == "" {
		return "", &channel.SendError{Channel: Type, Reason: "text is required"}
	}
	session, err := a.getOrCreateSession(cred.Token)
	if err != nil {
		return "", &channel.SendError{Channel: Type, Reason: "invalid credential", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sent, err := session.ChannelMessageSend(target, truncateText(text), discordgo.WithContext(ctx))
	if err != nil {
		return "", &channel.SendError{Channel: Type, Reason: "api rejected message", Err: err}
	}
	return sent.ID, nil
}

// truncateText truncates text to the Discord message limit on a rune
// boundary.
func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	limit := maxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}
