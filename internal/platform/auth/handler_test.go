package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newAuthServer(t *testing.T) (*echo.Echo, *Identity) {
	t.Helper()
	id, _ := newTestIdentity(t)
	e := echo.New()
	cfg := id.JWTConfig()
	cfg.Skipper = AuthSkipper
	g := e.Group("/auth", JWTMiddleware(cfg))
	NewHandler(id).RegisterRoutes(g)
	return e, id
}

func postJSON(e *echo.Echo, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, e *echo.Echo) LoginResult {
	t.Helper()
	rec := postJSON(e, "/auth/login", `{"email":"provider@healthfirst.com","password":"Password1!"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestHandler_Login(t *testing.T) {
	e, _ := newAuthServer(t)
	res := login(t, e)
	if res.User.Role != RoleProvider || res.Token == "" {
		t.Errorf("unexpected login result: %+v", res)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"email":"provider@healthfirst.com","password":"nope"}`, http.StatusUnauthorized},
		{"missing password", `{"email":"provider@healthfirst.com"}`, http.StatusBadRequest},
		{"bad json", `{"email":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := postJSON(e, "/auth/login", tt.body, ""); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestHandler_ForgotPassword(t *testing.T) {
	e, _ := newAuthServer(t)
	if rec := postJSON(e, "/auth/forgot-password", `{"email":"someone@example.com"}`, ""); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if rec := postJSON(e, "/auth/forgot-password", `{}`, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_MeAndLogout(t *testing.T) {
	e, _ := newAuthServer(t)
	res := login(t, e)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	var me User
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatal(err)
	}
	if me.Email != "provider@healthfirst.com" || me.Role != RoleProvider || me.Name != "John Doe" {
		t.Errorf("unexpected profile: %+v", me)
	}

	if rec := postJSON(e, "/auth/logout", "", res.Token); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}
	if rec := postJSON(e, "/auth/logout", "", res.Token); rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestHandler_MeRequiresToken(t *testing.T) {
	e, _ := newAuthServer(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}
