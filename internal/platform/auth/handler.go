package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/healthadvocate/advocate/internal/platform/notification"
)

// Handler exposes sign-up, confirmation and sign-in.
type Handler struct {
	provider    *Provider
	redirectURL string
}

func NewHandler(p *Provider, redirectURL string) *Handler {
	return &Handler{provider: p, redirectURL: redirectURL}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/signup", h.SignUp)
	g.POST("/signin", h.SignIn)
	g.GET("/confirm", h.Confirm)
}

type signUpRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	RedirectTo string   `json:"redirect_to"`
	Data       Metadata `json:"data"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Notice  notification.Notice `json:"notice"`
	User    *Account            `json:"user,omitempty"`
	Session *Session            `json:"session,omitempty"`
}

func (h *Handler) SignUp(c echo.Context) error {
	var req signUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	redirect := req.RedirectTo
	if redirect == "" {
		redirect = h.redirectURL
	}

	acct, err := h.provider.SignUp(c.Request().Context(), req.Email, req.Password, redirect, req.Data)
	if err != nil {
		return h.fail(c, err, SignUpNotice)
	}
	return c.JSON(http.StatusCreated, authResponse{
		Notice: notification.Info("Registration Successful", "Please check your email to confirm your account."),
		User:   acct,
	})
}

func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := h.provider.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, err, SignInNotice)
	}
	return c.JSON(http.StatusOK, authResponse{
		Notice:  notification.Info("Welcome back!", "You have successfully signed in."),
		Session: sess,
		User:    sess.User,
	})
}

func (h *Handler) Confirm(c echo.Context) error {
	acct, err := h.provider.Confirm(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		return h.fail(c, err, func(msg string) notification.Notice {
			return notification.Failure("Confirmation Error", msg)
		})
	}
	return c.JSON(http.StatusOK, authResponse{
		Notice: notification.Info("Email Confirmed", "Your email has been confirmed. You can now sign in."),
		User:   acct,
	})
}

func (h *Handler) fail(c echo.Context, err error, notice func(string) notification.Notice) error {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return err
	}
	status := http.StatusBadRequest
	switch pe.Message {
	case MsgUserAlreadyRegistered:
		status = http.StatusConflict
	case MsgInvalidLoginCredentials:
		status = http.StatusUnauthorized
	case MsgEmailNotConfirmed:
		status = http.StatusForbidden
	}
	return c.JSON(status, authResponse{Notice: notice(pe.Message)})
}

// SignUpNotice maps a sign-up error message to the notice shown to the user.
func SignUpNotice(msg string) notification.Notice {
	if strings.Contains(msg, MsgUserAlreadyRegistered) {
		return notification.Failure("Account Already Exists", "This email is already registered. Please try signing in instead.")
	}
	return notification.Failure("Registration Error", msg)
}

// SignInNotice maps a sign-in error message to the notice shown to the user.
func SignInNotice(msg string) notification.Notice {
	switch {
	case strings.Contains(msg, MsgInvalidLoginCredentials):
		return notification.Failure("Sign In Failed", "Invalid email or password. Please check your credentials and try again.")
	case strings.Contains(msg, MsgEmailNotConfirmed):
		return notification.Failure("Email Not Confirmed", "Please check your email and click the confirmation link before signing in.")
	default:
		return notification.Failure("Sign In Error", msg)
	}
}
