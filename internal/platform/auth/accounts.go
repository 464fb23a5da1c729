package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthadvocate/advocate/internal/platform/notification"
)

// Provider error messages. Clients match on these substrings to choose the
// message shown to the user.
const (
	MsgUserAlreadyRegistered   = "User already registered"
	MsgInvalidLoginCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed       = "Email not confirmed"
)

// Account roles. They are recorded on the session token and never enforced.
const (
	RolePatient  = "patient"
	RoleAdvocate = "advocate"
	RoleAdmin    = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RolePatient, RoleAdvocate, RoleAdmin:
		return true
	}
	return false
}

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrTokenNotFound   = errors.New("confirmation token not found")
)

// ProviderError is a user-presentable authentication failure.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// Metadata is the free-form profile data supplied at sign-up.
type Metadata struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Account is a stored login.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Metadata          Metadata   `json:"user_metadata"`
	ConfirmationToken *string    `json:"-"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	LastSignInAt      *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Session is returned by a successful sign-in.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *Account  `json:"user"`
}

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Confirm(ctx context.Context, token string, at time.Time) (*Account, error)
	TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ProfileCreator creates the application profile bound to a new account.
type ProfileCreator interface {
	CreateForAccount(ctx context.Context, accountID uuid.UUID, email string, meta Metadata) error
}

// TemplateMailer sends templated email; satisfied by *notification.Mailer.
type TemplateMailer interface {
	SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string, attachments ...notification.Attachment) (*notification.Delivery, error)
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	Issuer     string
	SigningKey []byte
	SessionTTL time.Duration
	Hasher     Hasher
}

// Provider implements email/password sign-up with email confirmation and
// sign-in issuing HS256 session tokens.
type Provider struct {
	cfg      ProviderConfig
	store    AccountStore
	profiles ProfileCreator
	mailer   TemplateMailer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewProvider creates a Provider. profiles and mailer may be nil.
func NewProvider(cfg ProviderConfig, store AccountStore, profiles ProfileCreator, mailer TemplateMailer, logger zerolog.Logger) *Provider {
	if cfg.Hasher.Iterations == 0 {
		cfg.Hasher = DefaultHasher
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Provider{
		cfg:      cfg,
		store:    store,
		profiles: profiles,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

// SignUp registers an account and sends a confirmation link built from
// redirectTo. The profile is created immediately with the metadata supplied.
func (p *Provider) SignUp(ctx context.Context, email, password, redirectTo string, meta Metadata) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ProviderError{Message: "Unable to validate email address: invalid format"}
	}
	if len(password) < 6 {
		return nil, &ProviderError{Message: "Password should be at least 6 characters"}
	}
	meta.Role = strings.ToLower(strings.TrimSpace(meta.Role))
	if meta.Role == "" {
		meta.Role = RolePatient
	}
	if !ValidRole(meta.Role) {
		return nil, &ProviderError{Message: "Invalid role: " + meta.Role}
	}

	hash, err := p.cfg.Hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := newConfirmationToken()
	if err != nil {
		return nil, fmt.Errorf("generate confirmation token: %w", err)
	}

	acct := &Account{
		ID:                uuid.New(),
		Email:             email,
		PasswordHash:      hash,
		Metadata:          meta,
		ConfirmationToken: &token,
		CreatedAt:         p.now().UTC(),
	}
	if err := p.store.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, &ProviderError{Message: MsgUserAlreadyRegistered}
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if p.profiles != nil {
		if err := p.profiles.CreateForAccount(ctx, acct.ID, email, meta); err != nil {
			p.logger.Error().Err(err).Str("account_id", acct.ID.String()).Msg("failed to create profile for account")
		}
	}

	if p.mailer != nil {
		link := confirmLink(redirectTo, token)
		_, err := p.mailer.SendTemplate(ctx, notification.TemplateEmailConfirmation, map[string]string{
			"first_name":   meta.FirstName,
			"confirm_link": link,
		}, email)
		if err != nil {
			p.logger.Warn().Err(err).Str("email", email).Msg("failed to send confirmation email")
		}
	}

	return acct, nil
}

// Confirm marks the account holding token as confirmed.
func (p *Provider) Confirm(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, &ProviderError{Message: "Token is required"}
	}
	acct, err := p.store.Confirm(ctx, token, p.now().UTC())
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, &ProviderError{Message: "Email link is invalid or has expired"}
		}
		return nil, fmt.Errorf("confirm account: %w", err)
	}
	return acct, nil
}

// SignIn checks credentials and issues a session token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	acct, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, &ProviderError{Message: MsgInvalidLoginCredentials}
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !p.cfg.Hasher.IsHashOf(acct.PasswordHash, password) {
		return nil, &ProviderError{Message: MsgInvalidLoginCredentials}
	}
	if acct.ConfirmedAt == nil {
		return nil, &ProviderError{Message: MsgEmailNotConfirmed}
	}

	now := p.now().UTC()
	expires := now.Add(p.cfg.SessionTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID.String(),
			Issuer:    p.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: acct.Email,
		Roles: []string{acct.Metadata.Role},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	if err := p.store.TouchSignIn(ctx, acct.ID, now); err != nil {
		p.logger.Warn().Err(err).Str("account_id", acct.ID.String()).Msg("failed to record sign-in")
	}
	acct.LastSignInAt = &now

	return &Session{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        acct,
	}, nil
}

func newConfirmationToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func confirmLink(redirectTo, token string) string {
	u, err := url.Parse(redirectTo)
	if err != nil || redirectTo == "" {
		return "/api/v1/auth/confirm?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
