package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/automation"
	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/contact"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/pipeline"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// mapError translates pipeline and store errors to HTTP errors.
func mapError(err error) error {
	var (
		validationErr  *pipeline.ValidationError
		resolutionErr  *pipeline.ResolutionError
		persistenceErr *pipeline.PersistenceError
		sendErr        *channel.SendError
	)
	switch {
	case errors.As(err, &validationErr):
		return echo.NewHTTPError(http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, pipeline.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.As(err, &resolutionErr):
		return echo.NewHTTPError(http.StatusNotFound, resolutionErr.Error())
	case isNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &sendErr):
		return echo.NewHTTPError(http.StatusBadGateway, sendErr.Error())
	case errors.As(err, &persistenceErr):
		return echo.NewHTTPError(http.StatusInternalServerError, persistenceErr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, tenant.ErrNotFound) ||
		errors.Is(err, contact.ErrNotFound) ||
		errors.Is(err, conversation.ErrNotFound) ||
		errors.Is(err, message.ErrNotFound) ||
		errors.Is(err, automation.ErrNotFound)
}
