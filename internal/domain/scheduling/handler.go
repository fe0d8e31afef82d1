package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthfirst/portal/internal/platform/auth"
	"github.com/healthfirst/portal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleProvider))
	g.GET("/availability", h.ListAvailability)
	g.GET("/availability/current", h.CurrentAvailability)
	g.GET("/availability/slots", h.OpenSlots)
	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/:id", h.GetAppointment)
}

// -- Availability Handlers --

func (h *Handler) ListAvailability(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAvailability(c.Request().Context(), c.QueryParam("provider"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) CurrentAvailability(c echo.Context) error {
	provider := c.QueryParam("provider")
	if provider == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider is required")
	}
	a, err := h.svc.CurrentAvailability(c.Request().Context(), provider)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no availability for provider")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type slotsResponse struct {
	Provider string      `json:"provider"`
	Date     string      `json:"date"`
	Slots    []time.Time `json:"slots"`
}

func (h *Handler) OpenSlots(c echo.Context) error {
	provider, date := c.QueryParam("provider"), c.QueryParam("date")
	if provider == "" || date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provider and date are required")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	slots, err := h.svc.OpenSlots(c.Request().Context(), provider, date)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no availability for provider")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if slots == nil {
		slots = []time.Time{}
	}
	return c.JSON(http.StatusOK, slotsResponse{Provider: provider, Date: date, Slots: slots})
}

// -- Appointment Handlers --

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), c.QueryParam("provider"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}
