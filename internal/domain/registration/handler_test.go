package registration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/healthfirst/portal/internal/platform/auth"
	"github.com/healthfirst/portal/pkg/pagination"
)

// asUser stands in for the JWT middleware.
func asUser(id, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id != "" {
				claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}, Roles: []string{role}}
				c.SetRequest(c.Request().WithContext(auth.WithClaims(c.Request().Context(), claims)))
			}
			return next(c)
		}
	}
}

func newHandlerServer(t *testing.T, id, role string) (*echo.Echo, *serviceFixture) {
	t.Helper()
	fx := newServiceFixture(t, Config{})
	e := echo.New()
	NewHandler(fx.svc).RegisterRoutes(e.Group("/api/v1", asUser(id, role)))
	return e, fx
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_GetPatient(t *testing.T) {
	e, fx := newHandlerServer(t, "2", auth.RoleProvider)
	id, err := fx.svc.Submit(context.Background(), FlowPatient, patientValues())
	if err != nil {
		t.Fatal(err)
	}

	rec := get(e, "/api/v1/patients/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.ID != id || p.SSNLast4 != "6789" {
		t.Errorf("unexpected patient: %+v", p)
	}

	if rec := get(e, "/api/v1/patients/P000000"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown patient: expected 404, got %d", rec.Code)
	}
}

func TestHandler_PatientReadsOwnRecordOnly(t *testing.T) {
	fx := newServiceFixture(t, Config{})
	id, err := fx.svc.Submit(context.Background(), FlowPatient, patientValues())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		user   string
		role   string
		path   string
		status int
	}{
		{"own record", id, auth.RolePatient, "/api/v1/patients/" + id, http.StatusOK},
		{"someone else", "P999999", auth.RolePatient, "/api/v1/patients/" + id, http.StatusForbidden},
		{"listing", id, auth.RolePatient, "/api/v1/patients", http.StatusForbidden},
		{"anonymous", "", "", "/api/v1/patients/" + id, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			NewHandler(fx.svc).RegisterRoutes(e.Group("/api/v1", asUser(tt.user, tt.role)))
			if rec := get(e, tt.path); rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestHandler_ListPatients(t *testing.T) {
	e, fx := newHandlerServer(t, "2", auth.RoleProvider)
	ctx := context.Background()
	phones := []string{"(555) 100-0001", "(555) 100-0002", "(555) 100-0003"}
	for i, phone := range phones {
		v := patientValues()
		v["email"] = ""
		v["primaryPhone"] = phone
		v["firstName"] = []string{"Ann", "Bob", "Cat"}[i]
		if _, err := fx.svc.Submit(ctx, FlowPatient, v); err != nil {
			t.Fatal(err)
		}
	}

	rec := get(e, "/api/v1/patients?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Data    []Patient         `json:"data"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
		Links   []pagination.Link `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore {
		t.Fatalf("unexpected page: total=%d len=%d more=%v", page.Total, len(page.Data), page.HasMore)
	}
	if page.Data[0].FirstName != "Cat" {
		t.Errorf("expected newest first, got %s", page.Data[0].FirstName)
	}
	if len(page.Links) != 2 || page.Links[1].URL != "/api/v1/patients?limit=2&offset=2" {
		t.Errorf("unexpected links: %+v", page.Links)
	}
}

func TestHandler_Providers(t *testing.T) {
	e, fx := newHandlerServer(t, "2", auth.RoleProvider)
	id, err := fx.svc.Submit(context.Background(), FlowProvider, providerValues())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/providers/" + id, http.StatusOK},
		{"/api/v1/providers/not-a-uuid", http.StatusBadRequest},
		{"/api/v1/providers/00000000-0000-0000-0000-000000000000", http.StatusNotFound},
		{"/api/v1/providers", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(e, tt.path); rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}
