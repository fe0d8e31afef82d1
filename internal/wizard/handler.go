package wizard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/healthfirst/portal/internal/form"
	"github.com/healthfirst/portal/internal/platform/auth"
)

// ClientIDHeader identifies anonymous browsers that have not signed in.
const ClientIDHeader = "X-Client-ID"

// ErrRejected marks submission failures caused by the submitted data, such
// as a duplicate registration. Submitters wrap it.
var ErrRejected = errors.New("submission rejected")

type Handler struct {
	flows    *Registry
	sessions *Manager
}

func NewHandler(flows *Registry, sessions *Manager) *Handler {
	return &Handler{flows: flows, sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/flows", h.ListFlows)
	api.GET("/flows/:flow", h.GetFlow)

	w := api.Group("/wizards")
	w.POST("/:flow/sessions", h.OpenSession)
	w.GET("/sessions/:id", h.GetSession)
	w.DELETE("/sessions/:id", h.CloseSession)
	w.PATCH("/sessions/:id/fields", h.SetField)
	w.POST("/sessions/:id/entries", h.AddEntry)
	w.DELETE("/sessions/:id/entries/:group/:index", h.RemoveEntry)
	w.POST("/sessions/:id/next", h.Next)
	w.POST("/sessions/:id/previous", h.Previous)
	w.POST("/sessions/:id/jump", h.Jump)
	w.POST("/sessions/:id/save", h.Save)
	w.POST("/sessions/:id/submit", h.Submit)
}

func (h *Handler) ListFlows(c echo.Context) error {
	flows := h.flows.List()
	out := make([]FlowInfo, len(flows))
	for i, f := range flows {
		out[i] = Describe(f)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetFlow(c echo.Context) error {
	f, _, ok := h.flows.Get(c.Param("flow"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "flow not found")
	}
	return c.JSON(http.StatusOK, Describe(f))
}

// owner is the signed-in subject, or the anonymous client id.
func owner(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return uid
	}
	return c.Request().Header.Get(ClientIDHeader)
}

func allowed(f *Flow, roles []string) bool {
	return len(f.Roles) == 0 || auth.HasAnyRole(roles, f.Roles...)
}

func (h *Handler) OpenSession(c echo.Context) error {
	f, _, ok := h.flows.Get(c.Param("flow"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "flow not found")
	}
	if !allowed(f, auth.RolesFromContext(c.Request().Context())) {
		return echo.NewHTTPError(http.StatusForbidden, "flow not available for this account")
	}
	who := owner(c)
	if who == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sign in or send "+ClientIDHeader)
	}

	sess, created, err := h.sessions.Open(c.Request().Context(), f.Name, who)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return c.JSON(code, sess.View())
}

// session resolves :id and hides sessions that belong to someone else.
func (h *Handler) session(c echo.Context) (*Session, error) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil || sess.Owner() != owner(c) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess.View())
}

func (h *Handler) CloseSession(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Close(c.Request().Context(), sess.ID()); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type fieldRequest struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func (h *Handler) SetField(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req fieldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	return h.dispatch(c, sess, SetField{Name: req.Name, Value: req.Value})
}

type entryRequest struct {
	Group string `json:"group"`
}

func (h *Handler) AddEntry(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req entryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.dispatch(c, sess, AddEntry{Group: req.Group})
}

// RemoveEntry accepts either a position or an entry key as :index.
func (h *Handler) RemoveEntry(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	a := RemoveEntry{Group: c.Param("group")}
	if idx, err := strconv.Atoi(c.Param("index")); err == nil {
		a.Index = idx
	} else {
		a.Key = c.Param("index")
	}
	return h.dispatch(c, sess, a)
}

func (h *Handler) Next(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return h.dispatch(c, sess, Next{})
}

func (h *Handler) Previous(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	return h.dispatch(c, sess, Previous{})
}

type jumpRequest struct {
	Step *int `json:"step"`
}

func (h *Handler) Jump(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	var req jumpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Step == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "step is required")
	}
	return h.dispatch(c, sess, Jump{Step: *req.Step})
}

func (h *Handler) Save(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if err := sess.Save(c.Request().Context()); err != nil {
		return h.fail(c, sess, err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

func (h *Handler) Submit(c echo.Context) error {
	sess, err := h.session(c)
	if err != nil {
		return err
	}
	if _, err := sess.Submit(c.Request().Context()); err != nil {
		return h.fail(c, sess, err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

func (h *Handler) dispatch(c echo.Context, sess *Session, a Action) error {
	if _, err := sess.Dispatch(a); err != nil {
		return h.fail(c, sess, err)
	}
	return c.JSON(http.StatusOK, sess.View())
}

// fail reports err together with the state the session settled in.
func (h *Handler) fail(c echo.Context, sess *Session, err error) error {
	body := map[string]any{
		"error": err.Error(),
		"state": sess.View(),
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		body["errors"] = verr.Fields
	}
	return c.JSON(StatusFor(err), body)
}

// StatusFor maps wizard errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrStepInvalid), errors.Is(err, ErrSubmitInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRejected):
		return http.StatusConflict
	case errors.Is(err, ErrSubmission):
		return http.StatusBadGateway
	case errors.Is(err, ErrFinalStep), errors.Is(err, ErrForwardJump),
		errors.Is(err, ErrNotFinalStep), errors.Is(err, ErrBusy),
		errors.Is(err, ErrClosed), errors.Is(err, ErrNotMounted),
		errors.Is(err, form.ErrMinEntries), errors.Is(err, form.ErrMaxEntries):
		return http.StatusConflict
	case errors.Is(err, ErrStepOutOfRange), errors.Is(err, form.ErrUnknownField),
		errors.Is(err, form.ErrKind), errors.Is(err, form.ErrEntryIndex):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUnknownFlow):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
