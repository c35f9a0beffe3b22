package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/automation"
)

// AutomationHandler manages automation rules and their dispatch logs.
type AutomationHandler struct {
	automations *automation.Service
	logger      *slog.Logger
}

// NewAutomationHandler creates an AutomationHandler.
func NewAutomationHandler(log *slog.Logger, automations *automation.Service) *AutomationHandler {
	return &AutomationHandler{
		automations: automations,
		logger:      log.With(slog.String("handler", "automation")),
	}
}

// Register registers automation routes.
func (h *AutomationHandler) Register(e *echo.Echo) {
	group := e.Group("/tenants/:tenant_id/automations")
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:automation_id", h.Get)
	group.POST("/:automation_id/pause", h.Pause)
	group.POST("/:automation_id/resume", h.Resume)
	group.GET("/:automation_id/logs", h.Logs)
}

func (h *AutomationHandler) Create(c echo.Context) error {
	var params automation.CreateParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.automations.Create(c.Request().Context(), c.Param("tenant_id"), params)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *AutomationHandler) List(c echo.Context) error {
	items, err := h.automations.List(c.Request().Context(), c.Param("tenant_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *AutomationHandler) Get(c echo.Context) error {
	auto, err := h.automations.GetByID(c.Request().Context(), c.Param("tenant_id"), c.Param("automation_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, auto)
}

func (h *AutomationHandler) Pause(c echo.Context) error {
	return h.setPaused(c, true)
}

func (h *AutomationHandler) Resume(c echo.Context) error {
	return h.setPaused(c, false)
}

func (h *AutomationHandler) setPaused(c echo.Context, paused bool) error {
	auto, err := h.automations.SetPaused(c.Request().Context(),
		c.Param("tenant_id"), c.Param("automation_id"), paused)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, auto)
}

func (h *AutomationHandler) Logs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	logs, err := h.automations.ListLogs(c.Request().Context(),
		c.Param("tenant_id"), c.Param("automation_id"), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, logs)
}
