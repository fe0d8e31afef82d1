package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	identity *Identity
}

func NewHandler(identity *Identity) *Handler {
	return &Handler{identity: identity}
}

// RegisterRoutes mounts the sign-in endpoints on g. /auth/me and
// /auth/logout expect JWTMiddleware to run in front of them.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/forgot-password", h.ForgotPassword)
	g.GET("/me", h.Me)
	g.POST("/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}
	res, err := h.identity.Login(c.Request().Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email is required")
	}
	if err := h.identity.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "If an account exists for that address, a reset link is on its way.",
	})
}

func (h *Handler) Me(c echo.Context) error {
	claims, ok := claimsFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	role := ""
	if len(claims.Roles) > 0 {
		role = claims.Roles[0]
	}
	return c.JSON(http.StatusOK, User{ID: claims.Subject, Email: claims.Email, Name: claims.Name, Role: role})
}

func (h *Handler) Logout(c echo.Context) error {
	claims, ok := claimsFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	h.identity.Logout(claims)
	return c.NoContent(http.StatusNoContent)
}
