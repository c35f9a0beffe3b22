// Package telegram implements the channel.Adapter contract for Telegram bot
// webhooks: it parses Bot API update payloads into the canonical inbound
// shape and sends replies through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// Type is the Telegram channel type.
const Type = channel.ChannelType("telegram")

const maxMessageLength = 4096

// Adapter implements channel.Adapter and channel.WebhookRegistrar for Telegram.
type Adapter struct {
	logger     *slog.Logger
	apiTimeout time.Duration
	mu         sync.RWMutex
	bots       map[string]*tgbotapi.BotAPI // keyed by bot token
}

// NewAdapter creates a Telegram adapter with the given logger.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:     log.With(slog.String("adapter", "telegram")),
		apiTimeout: 30 * time.Second,
		bots:       make(map[string]*tgbotapi.BotAPI),
	}
}

var getOrCreateBotForTest func(a *Adapter, token string) (*tgbotapi.BotAPI, error)

func (a *Adapter) getOrCreateBot(token string) (*tgbotapi.BotAPI, error) {
	if getOrCreateBotForTest != nil {
		return getOrCreateBotForTest(a, token)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	a.mu.RLock()
	bot, ok := a.bots[token]
	a.mu.RUnlock()
	if ok {
		return bot, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if bot, ok := a.bots[token]; ok {
		return bot, nil
	}
	client := &http.Client{Timeout: a.apiTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bots[token] = bot
	return bot, nil
}

// Type returns the Telegram channel type.
func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// ParseInbound decodes a Telegram webhook update. Updates that are not user
// messages (edits, channel posts, callback queries, member events) yield
// ok=false so the caller acknowledges and ignores them.
func (a *Adapter) ParseInbound(raw []byte, cred channel.Credential) (channel.InboundMessage, bool, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return channel.InboundMessage{}, false, fmt.Errorf("decode telegram update: %w", err)
	}
	message := update.Message
	if message == nil {
		return channel.InboundMessage{}, false, nil
	}

	msg := channel.InboundMessage{
		Channel:    Type,
		Sender:     resolveSender(message),
		ReceivedAt: time.Unix(int64(message.Date), 0).UTC(),
	}
	if message.MessageID != 0 {
		msg.MessageID = strconv.Itoa(message.MessageID)
	}
	if message.Chat != nil {
		msg.ThreadID = strconv.FormatInt(message.Chat.ID, 10)
	}

	content, text, fileID := extractContent(message)
	if text == "" && fileID == "" {
		// Service messages (joins, pins, ...) carry no forwardable content.
		return channel.InboundMessage{}, false, nil
	}
	msg.Content = content
	msg.Text = text
	if fileID != "" {
		msg.MediaURL = a.resolveFileURL(cred.Token, fileID)
	}
	return msg, true, nil
}

// extractContent picks the richest available content: text, else caption,
// else a typed placeholder label. The returned file id, when present, points
// at the strongest media reference for URL resolution.
func extractContent(message *tgbotapi.Message) (channel.ContentType, string, string) {
	if text := message.Text; strings.TrimSpace(text) != "" {
		return channel.ContentText, text, ""
	}
	content, label, fileID := classifyMedia(message)
	if content == "" {
		return channel.ContentText, "", ""
	}
	text := message.Caption
	if strings.TrimSpace(text) == "" {
		text = label
	}
	return content, text, fileID
}

func classifyMedia(message *tgbotapi.Message) (channel.ContentType, string, string) {
	switch {
	case len(message.Photo) > 0:
		return channel.ContentPhoto, "[Photo]", pickLargestPhoto(message.Photo).FileID
	case message.Document != nil:
		return channel.ContentDocument, "[Document]", message.Document.FileID
	case message.Voice != nil:
		return channel.ContentVoice, "[Voice]", message.Voice.FileID
	case message.Audio != nil:
		return channel.ContentAudio, "[Audio]", message.Audio.FileID
	case message.Video != nil:
		return channel.ContentVideo, "[Video]", message.Video.FileID
	case message.Sticker != nil:
		return channel.ContentSticker, "[Sticker]", message.Sticker.FileID
	case message.Location != nil:
		return channel.ContentLocation, "[Location]", ""
	case message.Contact != nil:
		return channel.ContentContact, "[Contact]", ""
	default:
		return "", "", ""
	}
}

func resolveSender(message *tgbotapi.Message) channel.Identity {
	from := message.From
	if from == nil {
		return channel.Identity{}
	}
	identity := channel.Identity{
		SubjectID: strconv.FormatInt(from.ID, 10),
		Username:  strings.TrimSpace(from.UserName),
	}
	identity.DisplayName = strings.TrimSpace(from.FirstName + " " + from.LastName)
	if identity.DisplayName == "" {
		identity.DisplayName = identity.Username
	}
	return identity
}

func pickLargestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// resolveFileURL builds a retrievable download URL for a file id. Best
// effort: failures are logged and yield an empty URL, never an error.
func (a *Adapter) resolveFileURL(token, fileID string) string {
	bot, err := a.getOrCreateBot(token)
	if err != nil {
		return ""
	}
	url, err := bot.GetFileDirectURL(fileID)
	if err != nil {
		a.logger.Warn("resolve file url failed", slog.Any("error", err))
		return ""
	}
	return url
}

// Send delivers text to a chat id or @username target and returns the
// provider message id.
func (a *Adapter) Send(ctx context.Context, cred channel.Credential, target, text string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", &channel.SendError{Channel: Type, Reason: "target is required"}
	}
	if strings.TrimSpace(text) == "" {
		return "", &channel.SendError{Channel: Type, Reason: "text is required"}
	}
	bot, err := a.getOrCreateBot(cred.Token)
	if err != nil {
		return "", &channel.SendError{Channel: Type, Reason: "invalid credential", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text = truncateText(sanitizeText(text))
	var sent tgbotapi.Message
	if strings.HasPrefix(target, "@") {
		sent, err = bot.Send(tgbotapi.NewMessageToChannel(target, text))
	} else {
		chatID, parseErr := strconv.ParseInt(target, 10, 64)
		if parseErr != nil {
			return "", &channel.SendError{Channel: Type, Reason: "target must be @username or chat_id", Err: parseErr}
		}
		sent, err = bot.Send(tgbotapi.NewMessage(chatID, text))
	}
	if err != nil {
		return "", &channel.SendError{Channel: Type, Reason: "api rejected message", Err: err}
	}
	return strconv.Itoa(sent.MessageID), nil
}

// RegisterWebhook points the bot's webhook at url, attaching the secret
// token Telegram echoes back on every delivery.
func (a *Adapter) RegisterWebhook(ctx context.Context, cred channel.Credential, url, secret string) error {
	bot, err := a.getOrCreateBot(cred.Token)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	if _, err := bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// WebhookStatus reports the provider-side webhook registration state.
func (a *Adapter) WebhookStatus(ctx context.Context, cred channel.Credential) (channel.WebhookInfo, error) {
	bot, err := a.getOrCreateBot(cred.Token)
	if err != nil {
		return channel.WebhookInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return channel.WebhookInfo{}, err
	}
	info, err := bot.GetWebhookInfo()
	if err != nil {
		return channel.WebhookInfo{}, fmt.Errorf("get webhook info: %w", err)
	}
	result := channel.WebhookInfo{
		URL:              info.URL,
		PendingUpdates:   info.PendingUpdateCount,
		LastErrorMessage: info.LastErrorMessage,
	}
	if info.LastErrorDate != 0 {
		result.LastErrorAt = time.Unix(int64(info.LastErrorDate), 0).UTC()
	}
	return result, nil
}

// sanitizeText ensures text is valid UTF-8 for the Telegram API.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText truncates text to maxMessageLength on a valid UTF-8 rune
// boundary, appending "..." when truncation occurs.
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
