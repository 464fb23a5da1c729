package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/domain/profiles"
	"github.com/healthadvocate/advocate/internal/platform/notification"
)

// ClaimSource is the part of the claims service the report needs.
type ClaimSource interface {
	Get(ctx context.Context, id uuid.UUID) (*claims.Claim, error)
	RecordHistory(ctx context.Context, claimID uuid.UUID, action, details string, by *uuid.UUID) error
}

type PatientSource interface {
	Get(ctx context.Context, id uuid.UUID) (*profiles.Profile, error)
}

type Service struct {
	claims   ClaimSource
	patients PatientSource
	mailer   *notification.Mailer
	hrEmail  string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(claims ClaimSource, patients PatientSource, mailer *notification.Mailer, hrEmail string, logger zerolog.Logger) *Service {
	return &Service{
		claims:   claims,
		patients: patients,
		mailer:   mailer,
		hrEmail:  hrEmail,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate builds the report for a stored claim. A missing patient profile
// falls back to the contact details on the claim.
func (s *Service) Generate(ctx context.Context, claimID uuid.UUID) (Report, error) {
	c, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return Report{}, err
	}

	var patient *profiles.Profile
	if s.patients != nil && c.PatientID != uuid.Nil {
		patient, err = s.patients.Get(ctx, c.PatientID)
		if err != nil {
			s.logger.Warn().Err(err).Str("claim_id", claimID.String()).Msg("report: patient lookup failed")
			patient = nil
		}
	}
	return Build(c, patient, s.now().UTC()), nil
}

// Render generates the report for claimID and writes the PDF to w.
func (s *Service) Render(ctx context.Context, claimID uuid.UUID, w io.Writer) (Report, error) {
	r, err := s.Generate(ctx, claimID)
	if err != nil {
		return Report{}, err
	}
	if err := RenderPDF(r, w); err != nil {
		return Report{}, err
	}
	return r, nil
}

// SentNotice is shown after a report reaches HR.
func SentNotice() notification.Notice {
	return notification.Info("Report Sent", "Claim report has been sent to HR department")
}

// SendToHR emails the rendered report to recipient, or to the configured HR
// address when recipient is empty, and records report_sent on the claim.
// History is best-effort once the email has gone out.
func (s *Service) SendToHR(ctx context.Context, claimID uuid.UUID, recipient string, by *uuid.UUID) (*notification.Delivery, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		recipient = s.hrEmail
	}
	if recipient == "" {
		return nil, fmt.Errorf("recipient is required")
	}

	var buf bytes.Buffer
	r, err := s.Render(ctx, claimID, &buf)
	if err != nil {
		return nil, err
	}

	d, err := s.mailer.SendTemplate(ctx, notification.TemplateClaimReport, map[string]string{
		"claim_ref":      r.ClaimRef,
		"status":         claims.StatusLabel(r.Status),
		"recommendation": r.Recommendation,
	}, recipient, notification.Attachment{
		FileName:    r.FileName(),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	})
	if err != nil {
		return d, fmt.Errorf("send claim report: %w", err)
	}

	if err := s.claims.RecordHistory(ctx, claimID, claims.ActionReportSent, "Report sent to "+recipient, by); err != nil {
		s.logger.Warn().Err(err).Str("claim_id", claimID.String()).Msg("report: history write failed")
	}
	s.logger.Info().Str("claim_id", claimID.String()).Str("delivery_id", d.ID).Msg("claim report sent")
	return d, nil
}
