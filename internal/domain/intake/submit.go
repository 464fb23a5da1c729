package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/domain/profiles"
	"github.com/healthadvocate/advocate/internal/platform/notification"
)

// Pipeline stages in execution order.
const (
	StageValidate = "validate"
	StageResolve  = "resolve"
	StageProfile  = "profile"
	StageClaim    = "claim"
	StageAttach   = "attach"
	StageLog      = "log"
)

// Stage statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const historySubmitted = "Initial claim submission by patient"

// ProfileStore looks up and creates patient profiles. FindByUserID returns
// nil, nil when no profile exists.
type ProfileStore interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*profiles.Profile, error)
	Create(ctx context.Context, p *profiles.Profile) error
}

type ClaimStore interface {
	Create(ctx context.Context, c *claims.Claim) error
}

type DocumentStore interface {
	Create(ctx context.Context, d *claims.Document) error
}

type HistoryStore interface {
	Create(ctx context.Context, h *claims.HistoryEntry) error
}

// Observer receives submission metrics.
type Observer interface {
	ObserveSubmission(outcome string)
	ObserveStage(stage, status string, elapsed time.Duration)
	ObserveDocumentWrite(ok bool)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmission(string) {}
func (nopObserver) ObserveStage(string, string, time.Duration) {}
func (nopObserver) ObserveDocumentWrite(bool) {}
func (nopObserver) ObserveUpload(string) {}

// StageOutcome records how one pipeline stage ended.
type StageOutcome struct {
	Stage   string        `json:"stage"`
	Status  string        `json:"status"`
	Err     error         `json:"-"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Result describes a submission. Stages is filled on failure too.
type Result struct {
	ClaimID        uuid.UUID      `json:"claim_id"`
	ProfileID      uuid.UUID      `json:"profile_id"`
	ProfileCreated bool           `json:"profile_created"`
	Stages         []StageOutcome `json:"stages"`
	DocumentErrors []error        `json:"-"`
	HistoryErr     error          `json:"-"`
}

// ShortID is the claim id prefix shown to the patient.
func (r *Result) ShortID() string {
	return r.ClaimID.String()[:8]
}

type SubmitterConfig struct {
	Identity  IdentityResolver
	Profiles  ProfileStore
	Claims    ClaimStore
	Documents DocumentStore
	History   HistoryStore
	Notifier  notification.Notifier
	Observer  Observer
	Logger    zerolog.Logger
}

// Submitter turns a validated form into stored records: profile, claim,
// document records and a history entry. The writes are independent; a
// failure part way leaves the earlier records in place.
type Submitter struct {
	identity  IdentityResolver
	profiles  ProfileStore
	claims    ClaimStore
	documents DocumentStore
	history   HistoryStore
	notifier  notification.Notifier
	observer  Observer
	logger    zerolog.Logger
	now       func() time.Time
}

func NewSubmitter(cfg SubmitterConfig) *Submitter {
	s := &Submitter{
		identity:  cfg.Identity,
		profiles:  cfg.Profiles,
		claims:    cfg.Claims,
		documents: cfg.Documents,
		history:   cfg.History,
		notifier:  cfg.Notifier,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if s.identity == nil {
		s.identity = NameHashResolver{}
	}
	if s.notifier == nil {
		s.notifier = notification.Discard
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s
}

// WithNotifier returns a copy of s that sends notices to n.
func (s *Submitter) WithNotifier(n notification.Notifier) *Submitter {
	cp := *s
	if n == nil {
		n = notification.Discard
	}
	cp.notifier = n
	return &cp
}

// submission is the state carried between stages.
type submission struct {
	form    Form
	docs    []DocumentReference
	userID  uuid.UUID
	profile *profiles.Profile
	claim   *claims.Claim
	result  *Result
}

type stage struct {
	name string
	run  func(ctx context.Context, sub *submission) error
	// bestEffort stages are recorded as failed but do not stop the pipeline.
	bestEffort bool
}

func (s *Submitter) stages() []stage {
	return []stage{
		{name: StageValidate, run: s.validate},
		{name: StageResolve, run: s.resolve},
		{name: StageProfile, run: s.resolveProfile},
		{name: StageClaim, run: s.writeClaim},
		{name: StageAttach, run: s.attach, bestEffort: true},
		{name: StageLog, run: s.log, bestEffort: true},
	}
}

// Submit runs the pipeline. Storage calls are not cancelled with ctx; once
// started a submission runs to completion. On failure the partial Result is
// returned with the error.
func (s *Submitter) Submit(ctx context.Context, form Form, docs []DocumentReference) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	sub := &submission{form: form, docs: docs, result: &Result{}}

	stages := s.stages()
	for i, st := range stages {
		start := s.now()
		err := st.run(ctx, sub)
		elapsed := s.now().Sub(start)

		outcome := StageOutcome{Stage: st.name, Status: StatusOK, Elapsed: elapsed}
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Err = err
			outcome.Error = err.Error()
		}
		s.observer.ObserveStage(st.name, outcome.Status, elapsed)
		sub.result.Stages = append(sub.result.Stages, outcome)

		if err != nil && !st.bestEffort {
			for _, rest := range stages[i+1:] {
				sub.result.Stages = append(sub.result.Stages, StageOutcome{Stage: rest.name, Status: StatusSkipped})
				s.observer.ObserveStage(rest.name, StatusSkipped, 0)
			}
			s.observer.ObserveSubmission(failureOutcome(err))
			s.notifier.Notify(ctx, FailureNotice(err))
			s.logger.Warn().Err(err).Str("stage", st.name).Msg("claim submission failed")
			return sub.result, err
		}
	}

	s.observer.ObserveSubmission("success")
	s.notifier.Notify(ctx, SuccessNotice(sub.result.ShortID()))
	s.logger.Info().
		Str("claim_id", sub.result.ClaimID.String()).
		Str("profile_id", sub.result.ProfileID.String()).
		Bool("profile_created", sub.result.ProfileCreated).
		Int("documents", len(docs)).
		Int("document_errors", len(sub.result.DocumentErrors)).
		Msg("claim submitted")
	return sub.result, nil
}

func failureOutcome(err error) string {
	var (
		verr *ValidationError
		lerr *LookupError
		aerr *AuthError
		cerr *ClaimWriteError
	)
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &lerr):
		return "lookup_error"
	case errors.As(err, &aerr):
		return "auth_error"
	case errors.As(err, &cerr):
		return "claim_error"
	}
	return "error"
}

func (s *Submitter) validate(_ context.Context, sub *submission) error {
	return Validate(sub.form).Err()
}

func (s *Submitter) resolve(ctx context.Context, sub *submission) error {
	id, err := s.identity.Resolve(ctx, sub.form.Patient)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	sub.userID = id
	return nil
}

func (s *Submitter) resolveProfile(ctx context.Context, sub *submission) error {
	p, err := s.profiles.FindByUserID(ctx, sub.userID)
	if err != nil {
		return &LookupError{Err: err}
	}
	if p == nil {
		p = newPatientProfile(sub.userID, sub.form.Patient)
		if err := s.profiles.Create(ctx, p); err != nil {
			return &AuthError{Err: err}
		}
		sub.result.ProfileCreated = true
	}
	sub.profile = p
	sub.result.ProfileID = p.ID
	return nil
}

func newPatientProfile(userID uuid.UUID, pi PatientInformation) *profiles.Profile {
	first, last := splitName(pi.FullName)
	return &profiles.Profile{
		UserID:    userID,
		Email:     strings.TrimSpace(pi.EmailAddress),
		FirstName: &first,
		LastName:  optional(last),
		Phone:     optional(pi.PhoneNumber),
		Role:      profiles.RolePatient,
	}
}

// splitName returns the first word and the remaining words joined by a space.
func splitName(full string) (first, last string) {
	words := strings.Fields(full)
	if len(words) == 0 {
		return "", ""
	}
	return words[0], strings.Join(words[1:], " ")
}

func (s *Submitter) writeClaim(ctx context.Context, sub *submission) error {
	c := buildClaim(sub.form, sub.docs, sub.profile.ID, s.now())
	if err := s.claims.Create(ctx, c); err != nil {
		return &ClaimWriteError{Err: err}
	}
	sub.claim = c
	sub.result.ClaimID = c.ID
	return nil
}

// buildClaim maps the form onto a claim row. Denial fields are carried into
// the description and notes whatever the claim type.
func buildClaim(f Form, docs []DocumentReference, patientID uuid.UUID, now time.Time) *claims.Claim {
	d := f.denial
	description := d.DeniedService + " - " + f.Story.MedicalNecessity
	notes := fmt.Sprintf("Denial Reason: %s\nMedical Necessity: %s\nImpact on Life: %s\nAlternative Treatments: %s\nDoctor Specialty: %s",
		d.DenialReason, f.Story.MedicalNecessity, f.Story.ImpactOnLife, f.Medical.AlternativeTreatments, f.Medical.DoctorSpecialty)

	uploaded := make([]claims.UploadedDocument, len(docs))
	for i, doc := range docs {
		uploaded[i] = claims.UploadedDocument{
			ID:         doc.ID,
			Name:       doc.Name,
			Type:       doc.Type,
			URL:        doc.URL,
			UploadedAt: doc.UploadedAt,
		}
	}

	return &claims.Claim{
		PatientID:              patientID,
		PolicyNumber:           strings.TrimSpace(f.Insurance.PolicyNumber),
		ClaimNumber:            optional(f.Insurance.ClaimCaseNumber),
		EmployerName:           optional(f.Insurance.EmployerName),
		EmployerAddress:        optional(f.Patient.MailingAddress),
		HealthcareProviderName: optional(f.Medical.ReferringDoctorName),
		Description:            &description,
		ClaimDate:              NormalizeDate(d.ServiceDate, now),
		Status:                 claims.StatusSubmitted,
		Priority:               claims.PriorityNormal,
		Notes:                  &notes,
		PatientFullName:        optional(f.Patient.FullName),
		PatientDateOfBirth:     optional(f.Patient.DateOfBirth),
		PatientPhone:           optional(f.Patient.PhoneNumber),
		PatientEmail:           optional(f.Patient.EmailAddress),
		RelationshipToPatient:  optional(string(f.Patient.RelationshipToPatient)),
		InsuranceCompany:       optional(f.Insurance.InsuranceCompany),
		PlanName:               optional(f.Insurance.PlanName),
		MemberID:               optional(f.Insurance.MemberID),
		IsDenialClaim:          f.isDenialClaim,
		DeniedService:          optional(d.DeniedService),
		DenialDate:             optional(d.DenialDate),
		DenialReason:           optional(d.DenialReason),
		PrimaryDiagnosis:       optional(f.Medical.PrimaryDiagnosis),
		ReferringDoctorName:    optional(f.Medical.ReferringDoctorName),
		DoctorSpecialty:        optional(f.Medical.DoctorSpecialty),
		AlternativeTreatments:  optional(f.Medical.AlternativeTreatments),
		MedicalNecessity:       optional(f.Story.MedicalNecessity),
		ImpactOnLife:           optional(f.Story.ImpactOnLife),
		DocumentsUploaded:      uploaded,
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006", "Jan 2, 2006"}

// NormalizeDate parses a service date, falling back to the date of now.
// The result is midnight UTC.
func NormalizeDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// attach records every document concurrently. Failures are collected and
// logged; the claim stands regardless.
func (s *Submitter) attach(ctx context.Context, sub *submission) error {
	if len(sub.docs) == 0 {
		return nil
	}
	uploadedBy := sub.profile.ID
	errs := iter.Map(sub.docs, func(ref *DocumentReference) error {
		doc := &claims.Document{
			ClaimID:      sub.claim.ID,
			DocumentName: ref.Name,
			DocumentType: optional(ref.Type),
			FilePath:     ref.Path(),
			UploadedBy:   &uploadedBy,
		}
		if ref.Size > 0 {
			size := ref.Size
			doc.FileSize = &size
		}
		err := s.documents.Create(ctx, doc)
		s.observer.ObserveDocumentWrite(err == nil)
		if err != nil {
			return &DocumentWriteError{DocumentName: ref.Name, Err: err}
		}
		return nil
	})

	for _, err := range errs {
		if err != nil {
			sub.result.DocumentErrors = append(sub.result.DocumentErrors, err)
			s.logger.Warn().Err(err).Str("claim_id", sub.claim.ID.String()).Msg("document record failed")
		}
	}
	return errors.Join(sub.result.DocumentErrors...)
}

func (s *Submitter) log(ctx context.Context, sub *submission) error {
	details := historySubmitted
	by := sub.profile.ID
	err := s.history.Create(ctx, &claims.HistoryEntry{
		ClaimID:     sub.claim.ID,
		Action:      claims.ActionClaimSubmitted,
		Details:     &details,
		PerformedBy: &by,
	})
	if err != nil {
		herr := &HistoryWriteError{Err: err}
		sub.result.HistoryErr = herr
		s.logger.Warn().Err(herr).Str("claim_id", sub.claim.ID.String()).Msg("claim history failed")
		return herr
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
