package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/healthadvocate/advocate/internal/platform/notification"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFixture struct {
	h       *Handler
	e       *echo.Echo
	store   *SessionStore
	harness *harness
}

func newHandlerFixture() *handlerFixture {
	st, _ := newTestStore()
	hs := newHarness()
	return &handlerFixture{h: NewHandler(st, hs.submitter), e: echo.New(), store: st, harness: hs}
}

func (f *handlerFixture) call(t *testing.T, fn echo.HandlerFunc, req *http.Request, names []string, values []string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return rec, fn(c)
}

func jsonReq(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_CreateAndGetSession(t *testing.T) {
	f := newHandlerFixture()
	rec, err := f.call(t, f.h.CreateSession, httptest.NewRequest(http.MethodPost, "/", nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec, err = f.call(t, f.h.GetSession, httptest.NewRequest(http.MethodGet, "/", nil), []string{"id"}, []string{id})
	require.NoError(t, err)
	body := decode(t, rec)
	form := body["form"].(map[string]interface{})
	assert.Equal(t, false, form["is_denial_claim"])
	assert.Empty(t, body["documents"])
}

func TestHandler_GetSession_NotFound(t *testing.T) {
	f := newHandlerFixture()
	_, err := f.call(t, f.h.GetSession, httptest.NewRequest(http.MethodGet, "/", nil), []string{"id"}, []string{"nope"})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestHandler_UpdateSection(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()

	_, err := f.call(t, f.h.UpdateSection, jsonReq(http.MethodPatch, `{"field":"fullName","value":"Jane Doe"}`),
		[]string{"id", "section"}, []string{s.ID, SectionPatient})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", s.Form().Patient.FullName)

	_, err = f.call(t, f.h.UpdateSection, jsonReq(http.MethodPatch, `{"insurance_company":"Acme","policy_number":"P-1"}`),
		[]string{"id", "section"}, []string{s.ID, SectionInsurance})
	require.NoError(t, err)
	assert.Equal(t, "Acme", s.Form().Insurance.InsuranceCompany)
	assert.Equal(t, "P-1", s.Form().Insurance.PolicyNumber)

	_, err = f.call(t, f.h.UpdateSection, jsonReq(http.MethodPatch, `{"field":"shoeSize","value":"9"}`),
		[]string{"id", "section"}, []string{s.ID, SectionPatient})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)

	_, err = f.call(t, f.h.UpdateSection, jsonReq(http.MethodPatch, `{"field":"x","value":"y"}`),
		[]string{"id", "section"}, []string{s.ID, "billing"})
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestHandler_UpdateSection_FieldKeyWithoutValue(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()
	s.Update(SectionPatient, map[string]string{"fullName": "Jane Doe"})

	_, err := f.call(t, f.h.UpdateSection, jsonReq(http.MethodPatch, `{"field":"fullName","emailAddress":"jane@example.com"}`),
		[]string{"id", "section"}, []string{s.ID, SectionPatient})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "body is a partial object with an unknown \"field\" key")
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, "Jane Doe", s.Form().Patient.FullName)
	assert.Empty(t, s.Form().Patient.EmailAddress)

	_, err = f.call(t, f.h.UpdateSection, jsonReq(http.MethodPatch, `{"fullName":"Jane Q Doe","emailAddress":"jane@example.com"}`),
		[]string{"id", "section"}, []string{s.ID, SectionPatient})
	require.NoError(t, err)
	assert.Equal(t, "Jane Q Doe", s.Form().Patient.FullName)
	assert.Equal(t, "jane@example.com", s.Form().Patient.EmailAddress)
}

func TestHandler_SetClaimType(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()

	_, err := f.call(t, f.h.SetClaimType, jsonReq(http.MethodPut, `{"is_denial_claim":true}`), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.True(t, s.Form().IsDenialClaim())

	_, err = f.call(t, f.h.SetClaimType, jsonReq(http.MethodPut, `{}`), []string{"id"}, []string{s.ID})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func multipartReq(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		part.Write([]byte(content))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestHandler_UploadAndRemoveDocuments(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()

	rec, err := f.call(t, f.h.UploadDocuments, multipartReq(t, map[string]string{"scan.pdf": "%PDF-1.4"}), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	added := body["added"].([]interface{})
	require.Len(t, added, 1)
	docID := added[0].(map[string]interface{})["id"].(string)
	assert.Contains(t, rec.Body.String(), "Files uploaded")

	rec, err = f.call(t, f.h.RemoveDocument, httptest.NewRequest(http.MethodDelete, "/", nil), []string{"id", "docId"}, []string{s.ID, docID})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "Document has been removed")
	assert.Zero(t, s.Attachments().Len())

	_, err = f.call(t, f.h.RemoveDocument, httptest.NewRequest(http.MethodDelete, "/", nil), []string{"id", "docId"}, []string{s.ID, docID})
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Code)
}

func TestHandler_GetSession_LeavesNoticesQueued(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()

	_, err := f.call(t, f.h.UploadDocuments, multipartReq(t, map[string]string{"scan.pdf": "%PDF-1.4"}), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	// the upload response already drained its own notice
	s.notices.Notify(context.Background(), notification.Info("Reminder", "Attach your EOB"))

	rec, err := f.call(t, f.h.GetSession, httptest.NewRequest(http.MethodGet, "/", nil), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "Attach your EOB")

	rec, err = f.call(t, f.h.Notices, httptest.NewRequest(http.MethodGet, "/", nil), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), "Attach your EOB")

	rec, err = f.call(t, f.h.Notices, httptest.NewRequest(http.MethodGet, "/", nil), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.NotContains(t, rec.Body.String(), "Attach your EOB")
}

func TestHandler_UploadTooMany(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		files[n+".pdf"] = "x"
	}

	rec, err := f.call(t, f.h.UploadDocuments, multipartReq(t, files), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Maximum 5 files allowed")
	assert.Zero(t, s.Attachments().Len())
}

func TestHandler_Validate(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()

	rec, err := f.call(t, f.h.Validate, httptest.NewRequest(http.MethodPost, "/", nil), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	body := decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Full Name", body["missing_field"])
	assert.Contains(t, rec.Body.String(), "Required Field Missing")
}

func TestHandler_Submit(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()
	fillSession(t, s, completeForm(t))

	rec, err := f.call(t, f.h.Submit, httptest.NewRequest(http.MethodPost, "/", nil), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["claim_id"])
	assert.Equal(t, true, body["profile_created"])
	assert.Len(t, body["stages"], 6)
	assert.Contains(t, rec.Body.String(), "Claim Submitted Successfully")
	assert.Empty(t, s.Form().Patient.FullName, "form reset after success")
}

func TestHandler_SubmitStatusCodes(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		f := newHandlerFixture()
		s := f.store.Create()
		rec, err := f.call(t, f.h.Submit, httptest.NewRequest(http.MethodPost, "/", nil), []string{"id"}, []string{s.ID})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Please fill in: Full Name")
	})

	t.Run("claim write", func(t *testing.T) {
		f := newHandlerFixture()
		f.harness.claims.err = errors.New("db down")
		s := f.store.Create()
		fillSession(t, s, completeForm(t))
		rec, err := f.call(t, f.h.Submit, httptest.NewRequest(http.MethodPost, "/", nil), []string{"id"}, []string{s.ID})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to create claim: db down")
		assert.Equal(t, "Jane Doe", s.Form().Patient.FullName, "form kept after failure")
	})
}

func TestHandler_DeleteSession(t *testing.T) {
	f := newHandlerFixture()
	s := f.store.Create()

	rec, err := f.call(t, f.h.DeleteSession, httptest.NewRequest(http.MethodDelete, "/", nil), []string{"id"}, []string{s.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.store.Len())
}

func TestHandler_RegisterRoutes(t *testing.T) {
	f := newHandlerFixture()
	f.h.RegisterRoutes(f.e.Group("/api/v1"))

	found := map[string]bool{}
	for _, r := range f.e.Routes() {
		found[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/intake/sessions",
		"PATCH /api/v1/intake/sessions/:id/sections/:section",
		"PUT /api/v1/intake/sessions/:id/claim-type",
		"POST /api/v1/intake/sessions/:id/submit",
		"GET /api/v1/intake/sessions/:id/notices",
	} {
		assert.True(t, found[want], want)
	}
}
