package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type routeHandler struct {
	registered bool
}

func (h *routeHandler) Register(e *echo.Echo) {
	h.registered = true
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func TestNewServerRegistersHandlers(t *testing.T) {
	t.Parallel()

	h := &routeHandler{}
	s := NewServer(":0", nil, h, nil)
	if !h.registered {
		t.Fatal("handler was not registered")
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want=200", rec.Code)
	}
}

func TestNewServerDefaultsAddr(t *testing.T) {
	t.Parallel()

	s := NewServer("", nil)
	if s.addr != ":8080" {
		t.Fatalf("addr=%q want=:8080", s.addr)
	}
}
