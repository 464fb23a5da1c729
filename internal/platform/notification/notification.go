// Package notification delivers user-facing notices and outbound email. Notices
// are transient messages returned to the client after an action; email carries
// account confirmations and claim reports.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Email
// ---------------------------------------------------------------------------

// Attachment is a file carried by an email.
type Attachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// Email is a single outbound message.
type Email struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, msg Email) error
}

// LogEmailSender logs messages instead of delivering them. It is the sender
// used until an SMTP relay is configured.
type LogEmailSender struct {
	logger zerolog.Logger
}

// NewLogEmailSender creates a LogEmailSender.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendEmail(_ context.Context, msg Email) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.FileName)
	}
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("email sent")
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template IDs registered by default.
const (
	TemplateEmailConfirmation = "email-confirmation"
	TemplateClaimReport       = "claim-report-hr"
)

// Template defines a reusable email template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages email templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateEmailConfirmation,
			Name:    "Email Confirmation",
			Subject: "Confirm your HealthAdvocate account",
			Body:    "Hello {{first_name}}, please confirm your email address by visiting {{confirm_link}}",
		},
		{
			ID:      TemplateClaimReport,
			Name:    "Claim Report for HR",
			Subject: "Healthcare Claim Advocacy Report - Claim {{claim_ref}}",
			Body:    "Please find attached the advocacy report for claim {{claim_ref}} (status: {{status}}).\n\n{{recommendation}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []Email
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, msg Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded messages.
func (m *MockEmailSender) Calls() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Delivery records one outbound email and its result.
type Delivery struct {
	ID         string     `json:"id"`
	TemplateID string     `json:"template_id,omitempty"`
	Email      Email      `json:"email"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Mailer renders templates, sends through an EmailSender and keeps an
// in-memory outbox of deliveries.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
	mu        sync.RWMutex
	outbox    []*Delivery
}

// NewMailer constructs a Mailer.
func NewMailer(sender EmailSender, tpl *TemplateEngine) *Mailer {
	return &Mailer{sender: sender, templates: tpl}
}

// Send delivers msg and records the outcome.
func (m *Mailer) Send(ctx context.Context, msg Email) (*Delivery, error) {
	return m.deliver(ctx, "", msg)
}

// SendTemplate renders templateID with data and delivers it to recipient with
// the given attachments.
func (m *Mailer) SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string, attachments ...Attachment) (*Delivery, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return m.deliver(ctx, templateID, Email{
		To:          recipient,
		Subject:     subject,
		Body:        body,
		Attachments: attachments,
	})
}

func (m *Mailer) deliver(ctx context.Context, templateID string, msg Email) (*Delivery, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("recipient is required")
	}
	d := &Delivery{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		Email:      msg,
		Status:     "pending",
		CreatedAt:  time.Now().UTC(),
	}

	sendErr := m.sender.SendEmail(ctx, msg)
	if sendErr != nil {
		d.Status = "failed"
		d.Error = sendErr.Error()
	} else {
		d.Status = "sent"
		sentAt := time.Now().UTC()
		d.SentAt = &sentAt
	}

	m.mu.Lock()
	m.outbox = append(m.outbox, d)
	m.mu.Unlock()

	return d, sendErr
}

// Outbox returns the most recent deliveries, newest first, up to limit.
func (m *Mailer) Outbox(limit int) []*Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Delivery, 0, limit)
	for i := len(m.outbox) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.outbox[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// OutboxHandler exposes recent deliveries for operators.
type OutboxHandler struct {
	mailer *Mailer
}

// NewOutboxHandler creates an OutboxHandler.
func NewOutboxHandler(m *Mailer) *OutboxHandler {
	return &OutboxHandler{mailer: m}
}

// RegisterRoutes registers GET /notifications/outbox.
func (h *OutboxHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/outbox", h.HandleOutbox)
}

func (h *OutboxHandler) HandleOutbox(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": h.mailer.Outbox(50),
	})
}
