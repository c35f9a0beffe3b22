package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/pipeline"
)

// Providers retry aggressively; cap payloads well above any real update.
const maxWebhookBody = 1 << 20

// InboundProcessor is the pipeline surface the webhook handlers need.
type InboundProcessor interface {
	ProcessInbound(ctx context.Context, req pipeline.InboundRequest) (pipeline.InboundResult, error)
	ProcessCallback(ctx context.Context, req pipeline.CallbackRequest) (pipeline.CallbackResult, error)
}

// WebhookHandler receives provider webhook deliveries.
type WebhookHandler struct {
	processor InboundProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(log *slog.Logger, processor InboundProcessor) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    log.With(slog.String("handler", "webhook")),
	}
}

// Register registers the inbound webhook routes. The tenant-scoped form is
// preferred; the bare form relies on credential hints or the single-tenant
// fallback.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/:channel", h.Receive)
	e.POST("/webhooks/:channel/:tenant_id", h.Receive)
}

// Receive ingests one provider delivery.
func (h *WebhookHandler) Receive(c echo.Context) error {
	channelType := channel.ChannelType(strings.TrimSpace(c.Param("channel")))
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read payload: "+err.Error())
	}

	req := pipeline.InboundRequest{
		Channel:    channelType,
		TenantID:   strings.TrimSpace(c.Param("tenant_id")),
		Raw:        raw,
		SecretHint: secretHint(c),
		TokenHint:  strings.TrimSpace(c.QueryParam("token")),
	}

	result, err := h.processor.ProcessInbound(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("inbound delivery rejected",
			slog.String("channel", channelType.String()),
			slog.Any("error", err))
		return mapError(err)
	}

	resp := map[string]any{"success": true}
	if result.Ignored {
		resp["ignored"] = true
	}
	if result.Duplicate {
		resp["duplicate"] = true
	}
	if result.MessageID != "" {
		resp["message_id"] = result.MessageID
	}
	if result.ConversationID != "" {
		resp["conversation_id"] = result.ConversationID
	}
	return c.JSON(http.StatusOK, resp)
}

// secretHint extracts the provider-echoed webhook secret. Telegram uses its
// own header; relays use X-Webhook-Secret or a query parameter.
func secretHint(c echo.Context) string {
	if v := c.Request().Header.Get("X-Telegram-Bot-Api-Secret-Token"); v != "" {
		return v
	}
	if v := c.Request().Header.Get("X-Webhook-Secret"); v != "" {
		return v
	}
	return strings.TrimSpace(c.QueryParam("secret"))
}
