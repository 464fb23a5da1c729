package report

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/platform/auth"
	"github.com/healthadvocate/advocate/internal/platform/notification"
)

type Handler struct {
	svc     *Service
	senders claims.ReviewerLookup
}

// NewHandler creates a report handler. senders resolves the signed-in user
// for history attribution and may be nil.
func NewHandler(svc *Service, senders claims.ReviewerLookup) *Handler {
	return &Handler{svc: svc, senders: senders}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/claims/:id/report", h.Preview)
	api.GET("/claims/:id/report.pdf", h.Download)
	api.POST("/claims/:id/report/send", h.Send)
}

func claimID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	return id, nil
}

func reportError(err error) error {
	if errors.Is(err, claims.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func (h *Handler) Preview(c echo.Context) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Generate(c.Request().Context(), id)
	if err != nil {
		return reportError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	r, err := h.svc.Render(c.Request().Context(), id, &buf)
	if err != nil {
		return reportError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+r.FileName()+`"`)
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

type sendRequest struct {
	Recipient string `json:"recipient"`
}

type sendResponse struct {
	Delivery *notification.Delivery `json:"delivery,omitempty"`
	Notice   notification.Notice    `json:"notice"`
}

func (h *Handler) Send(c echo.Context) error {
	id, err := claimID(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	ctx := c.Request().Context()
	d, err := h.svc.SendToHR(ctx, id, req.Recipient, h.sender(c))
	switch {
	case errors.Is(err, claims.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	case err != nil && d != nil:
		return c.JSON(http.StatusBadGateway, sendResponse{
			Delivery: d,
			Notice:   notification.Failure("Error", "Failed to send claim report."),
		})
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sendResponse{Delivery: d, Notice: SentNotice()})
}

func (h *Handler) sender(c echo.Context) *uuid.UUID {
	if h.senders == nil {
		return nil
	}
	ctx := c.Request().Context()
	uid, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil
	}
	p, err := h.senders.ForUser(ctx, uid)
	if err != nil {
		return nil
	}
	return &p.ID
}
