package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/pipeline"
)

// Response text keys accepted from automation endpoints, in priority order.
// Workflow engines disagree on naming, so all common variants work.
var responseTextKeys = []string{"response", "output", "text", "message", "reply"}

// Thread id keys accepted for the raw-identity fallback. Workflows often
// echo the original provider payload, which calls the thread chat_id
// (Telegram) or channel_id (Discord).
var threadIDKeys = []string{"thread_id", "chat_id", "channel_id"}

// CallbackHandler receives automation endpoint responses and relays them
// back to the contact.
type CallbackHandler struct {
	processor InboundProcessor
	logger    *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(log *slog.Logger, processor InboundProcessor) *CallbackHandler {
	return &CallbackHandler{
		processor: processor,
		logger:    log.With(slog.String("handler", "callback")),
	}
}

// Register registers the callback route. The static path wins over the
// parameterized inbound webhook routes.
func (h *CallbackHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/callback", h.Receive)
}

// Receive relays one automation response.
func (h *CallbackHandler) Receive(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read payload: "+err.Error())
	}
	var body map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "decode payload: "+err.Error())
		}
	}

	req := pipeline.CallbackRequest{
		Token:          callbackToken(c, body),
		TenantID:       stringField(body, "tenant_id"),
		ConversationID: stringField(body, "conversation_id"),
		Channel:        channel.ChannelType(stringField(body, "channel")),
		ThreadID:       firstStringField(body, threadIDKeys),
		Text:           responseText(body),
	}

	result, err := h.processor.ProcessCallback(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("callback rejected", slog.Any("error", err))
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":         true,
		"message_id":      result.MessageID,
		"conversation_id": result.ConversationID,
	})
}

// callbackToken reads the correlation token from the body, the bearer
// header, or the query string.
func callbackToken(c echo.Context, body map[string]any) string {
	if token := stringField(body, "callback_token"); token != "" {
		return token
	}
	if token := stringField(body, "token"); token != "" {
		return token
	}
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.QueryParam("token"))
}

// responseText extracts the reply text from whichever key the endpoint used.
func responseText(body map[string]any) string {
	return firstStringField(body, responseTextKeys)
}

func firstStringField(body map[string]any, keys []string) string {
	for _, key := range keys {
		if value := stringField(body, key); value != "" {
			return value
		}
	}
	return ""
}

func stringField(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	value, ok := body[key].(string)
	if !ok {
		return ""
	}
	return value
}
