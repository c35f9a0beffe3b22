package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// TenantHandler manages tenants and their channel settings.
type TenantHandler struct {
	tenants  *tenant.Service
	registry *channel.Registry
	cfg      config.PipelineConfig
	logger   *slog.Logger
}

// NewTenantHandler creates a TenantHandler.
func NewTenantHandler(log *slog.Logger, tenants *tenant.Service, registry *channel.Registry, cfg config.PipelineConfig) *TenantHandler {
	return &TenantHandler{
		tenants:  tenants,
		registry: registry,
		cfg:      cfg,
		logger:   log.With(slog.String("handler", "tenant")),
	}
}

// Register registers tenant and settings routes.
func (h *TenantHandler) Register(e *echo.Echo) {
	e.POST("/tenants", h.Create)
	e.GET("/tenants", h.List)
	e.GET("/tenants/:tenant_id", h.Get)

	group := e.Group("/tenants/:tenant_id/channels/:channel")
	group.GET("/settings", h.GetSettings)
	group.PUT("/settings", h.UpsertSettings)
	group.POST("/webhook", h.RegisterWebhook)
	group.GET("/webhook", h.WebhookStatus)
}

func (h *TenantHandler) Create(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	created, err := h.tenants.Create(c.Request().Context(), strings.TrimSpace(req.Name))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *TenantHandler) List(c echo.Context) error {
	items, err := h.tenants.List(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *TenantHandler) Get(c echo.Context) error {
	t, err := h.tenants.GetByID(c.Request().Context(), c.Param("tenant_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TenantHandler) GetSettings(c echo.Context) error {
	settings, err := h.tenants.GetSettings(c.Request().Context(),
		c.Param("tenant_id"), channel.ChannelType(c.Param("channel")))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, redactSettings(settings))
}

func (h *TenantHandler) UpsertSettings(c echo.Context) error {
	var params tenant.UpsertSettingsParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	params.Channel = channel.ChannelType(c.Param("channel"))
	if _, ok := h.registry.Get(params.Channel); !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown channel: "+params.Channel.String())
	}
	settings, err := h.tenants.UpsertSettings(c.Request().Context(), c.Param("tenant_id"), params)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, redactSettings(settings))
}

// RegisterWebhook registers this instance's inbound URL with the provider
// and records the outcome.
func (h *TenantHandler) RegisterWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := c.Param("tenant_id")
	channelType := channel.ChannelType(c.Param("channel"))

	registrar, ok := h.registry.WebhookRegistrar(channelType)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest,
			"channel does not support webhook registration: "+channelType.String())
	}
	settings, err := h.tenants.GetSettings(ctx, tenantID, channelType)
	if err != nil {
		return mapError(err)
	}
	url := settings.WebhookURL
	if url == "" {
		url = h.cfg.InboundWebhookURL(channelType.String(), tenantID)
	}

	status := "registered"
	if err := registrar.RegisterWebhook(ctx, settings.Credential(), url, settings.WebhookSecret); err != nil {
		status = "error: " + err.Error()
	}
	if updateErr := h.tenants.UpdateWebhookStatus(ctx, tenantID, channelType, status, time.Now()); updateErr != nil {
		h.logger.Error("record webhook status failed", slog.Any("error", updateErr))
	}
	if status != "registered" {
		return echo.NewHTTPError(http.StatusBadGateway, status)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status, "url": url})
}

// WebhookStatus reports the provider-side registration state.
func (h *TenantHandler) WebhookStatus(c echo.Context) error {
	ctx := c.Request().Context()
	channelType := channel.ChannelType(c.Param("channel"))

	registrar, ok := h.registry.WebhookRegistrar(channelType)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest,
			"channel does not support webhook registration: "+channelType.String())
	}
	settings, err := h.tenants.GetSettings(ctx, c.Param("tenant_id"), channelType)
	if err != nil {
		return mapError(err)
	}
	info, err := registrar.WebhookStatus(ctx, settings.Credential())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

// redactSettings masks credential material in API responses.
func redactSettings(settings tenant.ChannelSettings) tenant.ChannelSettings {
	settings.BotToken = maskSecret(settings.BotToken)
	settings.WebhookSecret = maskSecret(settings.WebhookSecret)
	settings.DispatchSecret = maskSecret(settings.DispatchSecret)
	return settings
}

func maskSecret(value string) string {
	if len(value) <= 4 {
		if value == "" {
			return ""
		}
		return "****"
	}
	return value[:4] + strings.Repeat("*", 4)
}
