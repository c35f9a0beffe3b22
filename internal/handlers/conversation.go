package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/contact"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
)

// ConversationHandler exposes operator read views over conversations,
// messages, and contacts.
type ConversationHandler struct {
	conversations *conversation.Service
	messages      *message.Service
	contacts      *contact.Service
	logger        *slog.Logger
}

// NewConversationHandler creates a ConversationHandler.
func NewConversationHandler(log *slog.Logger, conversations *conversation.Service, messages *message.Service, contacts *contact.Service) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		contacts:      contacts,
		logger:        log.With(slog.String("handler", "conversation")),
	}
}

// Register registers conversation and contact routes.
func (h *ConversationHandler) Register(e *echo.Echo) {
	group := e.Group("/tenants/:tenant_id")
	group.GET("/conversations", h.List)
	group.GET("/conversations/:conversation_id", h.Get)
	group.GET("/conversations/:conversation_id/messages", h.Messages)
	group.POST("/conversations/:conversation_id/read", h.MarkRead)
	group.POST("/conversations/:conversation_id/status", h.UpdateStatus)
	group.GET("/contacts", h.Contacts)
}

func (h *ConversationHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.conversations.List(c.Request().Context(), c.Param("tenant_id"), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationHandler) Get(c echo.Context) error {
	conv, err := h.conversations.GetByID(c.Request().Context(),
		c.Param("tenant_id"), c.Param("conversation_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Messages(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.messages.ListByConversation(c.Request().Context(),
		c.Param("tenant_id"), c.Param("conversation_id"), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	count, err := h.messages.MarkRead(c.Request().Context(),
		c.Param("tenant_id"), c.Param("conversation_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "marked": count})
}

func (h *ConversationHandler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case conversation.StatusOpen, conversation.StatusClosed, conversation.StatusArchived:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+req.Status)
	}
	conv, err := h.conversations.UpdateStatus(c.Request().Context(),
		c.Param("tenant_id"), c.Param("conversation_id"), req.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) Contacts(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.contacts.List(c.Request().Context(), c.Param("tenant_id"), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}
