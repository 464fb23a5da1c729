package report

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/domain/profiles"
	"github.com/healthadvocate/advocate/internal/platform/notification"
)

type historyCall struct {
	claimID uuid.UUID
	action  string
	details string
	by      *uuid.UUID
}

type fakeClaims struct {
	mu         sync.Mutex
	items      map[uuid.UUID]*claims.Claim
	history    []historyCall
	historyErr error
}

func (f *fakeClaims) Get(_ context.Context, id uuid.UUID) (*claims.Claim, error) {
	c, ok := f.items[id]
	if !ok {
		return nil, claims.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClaims) RecordHistory(_ context.Context, claimID uuid.UUID, action, details string, by *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return f.historyErr
	}
	f.history = append(f.history, historyCall{claimID, action, details, by})
	return nil
}

type fakePatients struct {
	items map[uuid.UUID]*profiles.Profile
	err   error
}

func (f *fakePatients) Get(_ context.Context, id uuid.UUID) (*profiles.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.items[id]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	return p, nil
}

type reportDeps struct {
	claims   *fakeClaims
	patients *fakePatients
	sender   *notification.MockEmailSender
	mailer   *notification.Mailer
	claim    *claims.Claim
}

func newTestService() (*Service, *reportDeps) {
	c := sampleClaim()
	d := &reportDeps{
		claims:   &fakeClaims{items: map[uuid.UUID]*claims.Claim{c.ID: c}},
		patients: &fakePatients{items: map[uuid.UUID]*profiles.Profile{}},
		sender:   &notification.MockEmailSender{},
		claim:    c,
	}
	d.mailer = notification.NewMailer(d.sender, notification.NewTemplateEngine())
	svc := NewService(d.claims, d.patients, d.mailer, "hr@claim.example", zerolog.Nop())
	svc.now = func() time.Time { return reportNow }
	return svc, d
}

func TestService_Generate(t *testing.T) {
	svc, d := newTestService()
	d.patients.items[d.claim.PatientID] = &profiles.Profile{Email: "p@claim.example", FirstName: ptr("Pat")}

	r, err := svc.Generate(context.Background(), d.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pat", r.PatientName)
	assert.Equal(t, reportNow, r.GeneratedAt)

	_, err = svc.Generate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, claims.ErrNotFound)
}

func TestService_Generate_PatientLookupFailureFallsBack(t *testing.T) {
	svc, d := newTestService()
	d.patients.err = errors.New("db down")

	r, err := svc.Generate(context.Background(), d.claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", r.PatientName)
}

func TestService_Render(t *testing.T) {
	svc, d := newTestService()
	var buf bytes.Buffer
	r, err := svc.Render(context.Background(), d.claim.ID, &buf)
	require.NoError(t, err)
	assert.Equal(t, d.claim.ShortID(), r.ClaimRef)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestService_SendToHR(t *testing.T) {
	svc, d := newTestService()
	by := uuid.New()

	delivery, err := svc.SendToHR(context.Background(), d.claim.ID, "", &by)
	require.NoError(t, err)
	assert.Equal(t, "sent", delivery.Status)

	calls := d.sender.Calls()
	require.Len(t, calls, 1)
	msg := calls[0]
	assert.Equal(t, "hr@claim.example", msg.To)
	assert.Equal(t, "Healthcare Claim Advocacy Report - Claim 2c58a0b8", msg.Subject)
	assert.Contains(t, msg.Body, "status: denied")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "claim-report-2c58a0b8.pdf", msg.Attachments[0].FileName)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.True(t, bytes.HasPrefix(msg.Attachments[0].Data, []byte("%PDF-")))

	require.Len(t, d.claims.history, 1)
	h := d.claims.history[0]
	assert.Equal(t, claims.ActionReportSent, h.action)
	assert.Equal(t, "Report sent to hr@claim.example", h.details)
	assert.Equal(t, &by, h.by)
}

func TestService_SendToHR_ExplicitRecipient(t *testing.T) {
	svc, d := newTestService()
	_, err := svc.SendToHR(context.Background(), d.claim.ID, "  benefits@claim.example ", nil)
	require.NoError(t, err)
	assert.Equal(t, "benefits@claim.example", d.sender.Calls()[0].To)
}

func TestService_SendToHR_MailFailure(t *testing.T) {
	svc, d := newTestService()
	d.sender.ShouldFail = true
	d.sender.FailError = "relay refused"

	delivery, err := svc.SendToHR(context.Background(), d.claim.ID, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay refused")
	require.NotNil(t, delivery)
	assert.Equal(t, "failed", delivery.Status)
	assert.Empty(t, d.claims.history, "no history for an undelivered report")
}

func TestService_SendToHR_HistoryFailureIsSwallowed(t *testing.T) {
	svc, d := newTestService()
	d.claims.historyErr = errors.New("insert failed")

	delivery, err := svc.SendToHR(context.Background(), d.claim.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "sent", delivery.Status)
}

func TestService_SendToHR_Errors(t *testing.T) {
	svc, d := newTestService()
	_, err := svc.SendToHR(context.Background(), uuid.New(), "", nil)
	assert.ErrorIs(t, err, claims.ErrNotFound)

	svc.hrEmail = ""
	_, err = svc.SendToHR(context.Background(), d.claim.ID, " ", nil)
	assert.EqualError(t, err, "recipient is required")
	assert.Empty(t, d.sender.Calls())
}

func TestSentNotice(t *testing.T) {
	n := SentNotice()
	assert.Equal(t, "Report Sent", n.Title)
	assert.Equal(t, "Claim report has been sent to HR department", n.Description)
	assert.Equal(t, notification.VariantDefault, n.Variant)
}
