package notification

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes notices and the mail outbox over HTTP.
type Handler struct {
	center *Center
	mailer *Mailer
}

// NewHandler creates a Handler. mailer may be nil, in which case the outbox
// routes are not registered.
func NewHandler(center *Center, mailer *Mailer) *Handler {
	return &Handler{center: center, mailer: mailer}
}

// RegisterRoutes registers the notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	if h.mailer != nil {
		g.GET("/notifications/outbox", h.HandleOutbox)
		g.GET("/notifications/outbox/stats", h.HandleStats)
	}
}

// HandleList handles GET /notifications?topic=...&limit=...
func (h *Handler) HandleList(c echo.Context) error {
	topic := c.QueryParam("topic")
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic query parameter is required")
	}
	limit := DefaultTopicLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, h.center.List(topic, limit))
}

// HandleOutbox handles GET /notifications/outbox?recipient=...
func (h *Handler) HandleOutbox(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "recipient query parameter is required")
	}
	return c.JSON(http.StatusOK, h.mailer.ListByRecipient(recipient, 100))
}

// HandleStats handles GET /notifications/outbox/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.mailer.Stats())
}
