package intake

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthadvocate/advocate/internal/platform/notification"
)

type Handler struct {
	sessions  *SessionStore
	submitter *Submitter
}

func NewHandler(sessions *SessionStore, submitter *Submitter) *Handler {
	return &Handler{sessions: sessions, submitter: submitter}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/intake")
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id", h.GetSession)
	g.DELETE("/sessions/:id", h.DeleteSession)
	g.PATCH("/sessions/:id/sections/:section", h.UpdateSection)
	g.PUT("/sessions/:id/claim-type", h.SetClaimType)
	g.POST("/sessions/:id/documents", h.UploadDocuments)
	g.DELETE("/sessions/:id/documents/:docId", h.RemoveDocument)
	g.POST("/sessions/:id/validate", h.Validate)
	g.POST("/sessions/:id/submit", h.Submit)
	g.GET("/sessions/:id/notices", h.Notices)
}

type sessionView struct {
	ID         string                `json:"id"`
	Form       Form                  `json:"form"`
	Documents  []DocumentReference   `json:"documents"`
	Submitting bool                  `json:"submitting"`
	Notices    []notification.Notice `json:"notices"`
}

func viewOf(s *Session, notices []notification.Notice) sessionView {
	return sessionView{
		ID:         s.ID,
		Form:       s.Form(),
		Documents:  s.Attachments().List(),
		Submitting: s.Submitting(),
		Notices:    notices,
	}
}

func (h *Handler) session(c echo.Context) (*Session, error) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "intake session not found")
	}
	return s, nil
}

func (h *Handler) CreateSession(c echo.Context) error {
	s := h.sessions.Create()
	return c.JSON(http.StatusCreated, viewOf(s, s.Notices()))
}

// GetSession shows queued notices without draining them; only the notices
// endpoint and mutating requests consume the queue.
func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	view := viewOf(s, s.PendingNotices())
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.sessions.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "intake session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateSection accepts exactly {"field": "...", "value": "..."} or an
// object of field/value pairs. Any other key alongside "field" makes the
// body a partial object.
func (h *Handler) UpdateSection(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	// BindBody keeps path params out of the map.
	var body map[string]string
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be an object of string values")
	}
	fields := body
	field, hasField := body["field"]
	value, hasValue := body["value"]
	if hasField && hasValue && len(body) == 2 {
		fields = map[string]string{field: value}
	}
	if len(fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	if _, err := s.Update(c.Param("section"), fields); err != nil {
		var serr *UnknownSectionError
		if errors.As(err, &serr) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, viewOf(s, s.Notices()))
}

type claimTypeRequest struct {
	IsDenialClaim *bool `json:"is_denial_claim"`
}

func (h *Handler) SetClaimType(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req claimTypeRequest
	if err := c.Bind(&req); err != nil || req.IsDenialClaim == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_denial_claim is required")
	}
	s.SetDenialClaim(*req.IsDenialClaim)
	return c.JSON(http.StatusOK, viewOf(s, s.Notices()))
}

func (h *Handler) UploadDocuments(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form with files")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}

	uploads := make([]Upload, len(headers))
	for i, fh := range headers {
		uploads[i] = uploadFromHeader(fh)
	}

	added, err := s.Attachments().Add(c.Request().Context(), uploads)
	var tooMany *TooManyFilesError
	if errors.As(err, &tooMany) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":   err.Error(),
			"notices": s.Notices(),
		})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	if added == nil {
		added = []DocumentReference{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"added":     added,
		"documents": s.Attachments().List(),
		"notices":   s.Notices(),
	})
}

func uploadFromHeader(fh *multipart.FileHeader) Upload {
	return Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (h *Handler) RemoveDocument(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if !s.Attachments().Remove(c.Request().Context(), c.Param("docId")) {
		return echo.NewHTTPError(http.StatusNotFound, ErrDocumentNotFound.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"documents": s.Attachments().List(),
		"notices":   s.Notices(),
	})
}

func (h *Handler) Validate(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	res := s.Validate(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":         res.Valid,
		"missing_field": res.MissingField,
		"notices":       s.Notices(),
	})
}

type submitResponse struct {
	*Result
	Error   string                `json:"error,omitempty"`
	Notices []notification.Notice `json:"notices"`
}

func (h *Handler) Submit(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	res, err := s.Submit(c.Request().Context(), h.submitter)
	if errors.Is(err, ErrSubmissionInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if errors.Is(err, ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	resp := submitResponse{Result: res}
	status := http.StatusCreated
	if err != nil {
		resp.Error = err.Error()
		status = submitStatus(err)
	}
	resp.Notices = s.Notices()
	return c.JSON(status, resp)
}

func submitStatus(err error) int {
	var (
		verr *ValidationError
		lerr *LookupError
		aerr *AuthError
		cerr *ClaimWriteError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &lerr), errors.As(err, &aerr), errors.As(err, &cerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) Notices(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notices": s.Notices()})
}
