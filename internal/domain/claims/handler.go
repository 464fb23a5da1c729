package claims

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthadvocate/advocate/internal/domain/profiles"
	"github.com/healthadvocate/advocate/internal/platform/auth"
	"github.com/healthadvocate/advocate/internal/platform/notification"
	"github.com/healthadvocate/advocate/pkg/pagination"
)

// ReviewerLookup resolves a signed-in user to their profile.
type ReviewerLookup interface {
	ForUser(ctx context.Context, userID uuid.UUID) (*profiles.Profile, error)
}

type Handler struct {
	svc       *Service
	reviewers ReviewerLookup
}

// NewHandler creates a claims handler. reviewers may be nil, in which case
// reviews are attributed only when the request names a reviewer_id.
func NewHandler(svc *Service, reviewers ReviewerLookup) *Handler {
	return &Handler{svc: svc, reviewers: reviewers}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/claims", h.List)
	api.GET("/claims/stats", h.Stats)
	api.GET("/claims/latest", h.Latest)
	api.GET("/claims/recent/:count", h.Recent)
	api.GET("/claims/:id", h.Get)
	api.GET("/claims/:id/documents", h.Documents)
	api.GET("/claims/:id/history", h.History)
	api.POST("/claims/:id/review", h.Review)
	api.POST("/claims/:id/flag", h.Flag)
	api.POST("/claims/:id/assign", h.Assign)

	api.GET("/contexts", h.ListContexts)
	api.GET("/contexts/:claimId", h.GetContext)
	api.POST("/contexts/push", h.PushContext)
	api.GET("/workflows", h.ListWorkflows)
	api.GET("/workflows/:claimId", h.GetWorkflow)
	api.POST("/workflows/push", h.PushWorkflow)
}

// claimView is a claim with its review assessment.
type claimView struct {
	*Claim
	Assessment []Criterion `json:"assessment"`
}

// transitionResponse carries the updated claim and the notice to display.
type transitionResponse struct {
	Claim  *Claim              `json:"claim"`
	Notice notification.Notice `json:"notice"`
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Status:   c.QueryParam("status"),
		Priority: c.QueryParam("priority"),
		Search:   c.QueryParam("search"),
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) Latest(c echo.Context) error {
	claim, err := h.svc.Latest(c.Request().Context())
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "No claims found in database")
	}
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Recent(c echo.Context) error {
	n, err := strconv.Atoi(c.Param("count"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "count must be an integer")
	}
	items, err := h.svc.Recent(c.Request().Context(), n)
	if err != nil {
		return claimError(err)
	}
	if items == nil {
		items = []*Claim{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	claim, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, claimView{Claim: claim, Assessment: Assess(claim)})
}

func (h *Handler) Documents(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	docs, err := h.svc.Documents(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, docs)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	if entries == nil {
		entries = []*HistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

type reviewRequest struct {
	Status     string `json:"status"`
	Notes      string `json:"notes"`
	ReviewerID string `json:"reviewer_id"`
}

func (h *Handler) Review(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	reviewer, err := h.reviewer(ctx, req.ReviewerID)
	if err != nil {
		return err
	}

	claim, err := h.svc.Review(ctx, id, req.Status, req.Notes, reviewer)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, transitionResponse{
		Claim:  claim,
		Notice: notification.Info("Review Submitted", "Claim status updated to "+StatusLabel(claim.Status)),
	})
}

type flagRequest struct {
	Reason     string `json:"reason"`
	ReviewerID string `json:"reviewer_id"`
}

func (h *Handler) Flag(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req flagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	reviewer, err := h.reviewer(ctx, req.ReviewerID)
	if err != nil {
		return err
	}

	claim, err := h.svc.Flag(ctx, id, req.Reason, reviewer)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, transitionResponse{
		Claim:  claim,
		Notice: notification.Info("Status Updated", "Claim has been marked as "+StatusLabel(claim.Status)),
	})
}

type assignRequest struct {
	AdvocateID string `json:"advocate_id"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	advocateID, err := uuid.Parse(req.AdvocateID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid advocate_id")
	}
	ctx := c.Request().Context()
	by, err := h.reviewer(ctx, "")
	if err != nil {
		return err
	}

	claim, err := h.svc.Assign(ctx, id, advocateID, by)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

// reviewer returns the explicit reviewer id when given, otherwise the
// profile of the signed-in user. Anonymous callers and users without a
// profile give nil; a failed lookup is an error.
func (h *Handler) reviewer(ctx context.Context, explicit string) (*uuid.UUID, error) {
	if explicit != "" {
		id, err := uuid.Parse(explicit)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid reviewer_id")
		}
		return &id, nil
	}
	if h.reviewers == nil {
		return nil, nil
	}
	uid, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, nil
	}
	p, err := h.reviewers.ForUser(ctx, uid)
	if errors.Is(err, profiles.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "could not resolve reviewer").SetInternal(err)
	}
	return &p.ID, nil
}

// -- Contexts and workflows --

type pushContextRequest struct {
	ClaimID string `json:"claim_id"`
	Context string `json:"context"`
}

type pushWorkflowRequest struct {
	ClaimID  string `json:"claim_id"`
	Context  string `json:"context"`
	Analysis string `json:"analysis"`
	Markdown string `json:"markdown"`
}

type pushResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func (h *Handler) ListContexts(c echo.Context) error {
	items, err := h.svc.ListContexts(c.Request().Context())
	if err != nil {
		return claimError(err)
	}
	if items == nil {
		items = []*Context{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetContext(c echo.Context) error {
	id, err := uuid.Parse(c.Param("claimId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	item, err := h.svc.GetContext(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) PushContext(c echo.Context) error {
	var req pushContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := uuid.Parse(req.ClaimID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim_id")
	}
	item, err := h.svc.PushContext(c.Request().Context(), id, req.Context)
	if errors.Is(err, ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "Context already exists for this claim")
	}
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusCreated, pushResponse{Message: "Context added", Data: item})
}

func (h *Handler) ListWorkflows(c echo.Context) error {
	items, err := h.svc.ListWorkflows(c.Request().Context())
	if err != nil {
		return claimError(err)
	}
	if items == nil {
		items = []*Workflow{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("claimId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	item, err := h.svc.GetWorkflow(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) PushWorkflow(c echo.Context) error {
	var req pushWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := uuid.Parse(req.ClaimID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim_id")
	}
	item, err := h.svc.PushWorkflow(c.Request().Context(), id, req.Context, req.Analysis, req.Markdown)
	if errors.Is(err, ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "Workflow already exists for this claim")
	}
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusCreated, pushResponse{Message: "Workflow added", Data: item})
}

// claimError maps service errors to HTTP errors. Storage failures become a
// generic 500; the cause stays on the error for the request logger.
func claimError(err error) error {
	var input *InputError
	switch {
	case err == ErrNotFound:
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &input):
		return echo.NewHTTPError(http.StatusBadRequest, input.Message)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
