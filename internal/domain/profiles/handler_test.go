package profiles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthadvocate/advocate/internal/platform/auth"
	"github.com/healthadvocate/advocate/pkg/pagination"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func seed(t *testing.T, h *Handler, email, role string) *Profile {
	t.Helper()
	p := &Profile{UserID: uuid.New(), Email: email, Role: role}
	if err := h.svc.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	seed(t, h, "a@example.com", RolePatient)
	seed(t, h, "b@example.com", RoleAdvocate)
	seed(t, h, "c@example.com", RolePatient)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles?role=patient&limit=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data    []Profile         `json:"data"`
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
		Links   *pagination.Links `json:"links"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Data) != 1 || !resp.HasMore {
		t.Errorf("unexpected page %+v", resp)
	}
	if resp.Links == nil || resp.Links.Next == "" {
		t.Error("expected a next link")
	}
}

func TestHandler_Get(t *testing.T) {
	h, e := newTestHandler()
	p := seed(t, h, "a@example.com", RolePatient)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_Get_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.Get(c); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestHandler_Me(t *testing.T) {
	h, e := newTestHandler()
	p := seed(t, h, "me@example.com", RolePatient)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), p.UserID.String(), p.Email, []string{RolePatient}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Profile
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.ID != p.ID {
		t.Errorf("expected %s, got %s", p.ID, got.ID)
	}
}

func TestHandler_Me_Anonymous(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/profiles/me", nil), httptest.NewRecorder())

	err := h.Me(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}
