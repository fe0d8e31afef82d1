package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func routeContext(route string) echo.Context {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, route, nil), httptest.NewRecorder())
	c.SetPath(route)
	return c
}

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		route string
		skip  bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/auth/login", true},
		{"/auth/forgot-password", true},
		{"/health/", false},
		{"/auth/me", false},
		{"/auth/logout", false},
		{"/api/v1/patients", false},
		{"/api/v1/appointments", false},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			if got := AuthSkipper(routeContext(tt.route)); got != tt.skip {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.route, got, tt.skip)
			}
		})
	}
}

func TestSkipRoutes_Empty(t *testing.T) {
	if SkipRoutes()(routeContext("/health")) {
		t.Error("an empty skipper should authenticate everything")
	}
}
