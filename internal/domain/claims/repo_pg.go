package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/healthadvocate/advocate/internal/platform/db"
)

// -- Claim Repository --

const claimColumns = `id, patient_id, assigned_advocate_id, policy_number, claim_number,
	employer_name, employer_address, healthcare_provider_name, claim_description, claim_amount,
	claim_date, status, priority, notes,
	patient_full_name, patient_date_of_birth, patient_phone, patient_email, relationship_to_patient,
	insurance_company, plan_name, member_id,
	is_denial_claim, denied_service, denial_date, denial_reason,
	primary_diagnosis, referring_doctor_name, doctor_specialty, alternative_treatments,
	medical_necessity, impact_on_life, documents_uploaded,
	reviewed_by, reviewed_at, created_at, updated_at`

type claimRepoPG struct {
	q db.Querier
}

func NewClaimRepo(q db.Querier) ClaimRepository {
	return &claimRepoPG{q: q}
}

func (r *claimRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.q)
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = StatusSubmitted
	}
	if c.Priority == "" {
		c.Priority = PriorityNormal
	}
	if c.DocumentsUploaded == nil {
		c.DocumentsUploaded = []UploadedDocument{}
	}
	docs, err := json.Marshal(c.DocumentsUploaded)
	if err != nil {
		return fmt.Errorf("encode documents_uploaded: %w", err)
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (
			id, patient_id, assigned_advocate_id, policy_number, claim_number,
			employer_name, employer_address, healthcare_provider_name, claim_description, claim_amount,
			claim_date, status, priority, notes,
			patient_full_name, patient_date_of_birth, patient_phone, patient_email, relationship_to_patient,
			insurance_company, plan_name, member_id,
			is_denial_claim, denied_service, denial_date, denial_reason,
			primary_diagnosis, referring_doctor_name, doctor_specialty, alternative_treatments,
			medical_necessity, impact_on_life, documents_uploaded,
			created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			$11,$12,$13,$14,
			$15,$16,$17,$18,$19,
			$20,$21,$22,
			$23,$24,$25,$26,
			$27,$28,$29,$30,
			$31,$32,$33,
			$34,$35
		)`,
		c.ID, c.PatientID, c.AssignedAdvocateID, c.PolicyNumber, c.ClaimNumber,
		c.EmployerName, c.EmployerAddress, c.HealthcareProviderName, c.Description, c.Amount,
		c.ClaimDate, c.Status, c.Priority, c.Notes,
		c.PatientFullName, c.PatientDateOfBirth, c.PatientPhone, c.PatientEmail, c.RelationshipToPatient,
		c.InsuranceCompany, c.PlanName, c.MemberID,
		c.IsDenialClaim, c.DeniedService, c.DenialDate, c.DenialReason,
		c.PrimaryDiagnosis, c.ReferringDoctorName, c.DoctorSpecialty, c.AlternativeTreatments,
		c.MedicalNecessity, c.ImpactOnLife, docs,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
}

func (r *claimRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	where, args := claimFilterSQL(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+claimColumns+` FROM claims`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectClaims(rows)
	return items, total, err
}

// claimFilterSQL builds the WHERE clause for f with positional arguments.
func claimFilterSQL(f Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", NormalizeStatus(f.Status))
	}
	if f.Priority != "" {
		add("priority = $%d", f.Priority)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(claim_description ILIKE $%d OR policy_number ILIKE $%d OR healthcare_provider_name ILIKE $%d)", n, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *claimRepoPG) Recent(ctx context.Context, n int) ([]*Claim, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+claimColumns+` FROM claims ORDER BY created_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	return collectClaims(rows)
}

// statsQuery counts each status bucket by its exact value; submitted claims
// only contribute to the total.
const statsQuery = `
	SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE status = 'pending'),
		COUNT(*) FILTER (WHERE status = 'approved'),
		COUNT(*) FILTER (WHERE status = 'denied'),
		COUNT(*) FILTER (WHERE status = 'flagged'),
		COUNT(*) FILTER (WHERE status = 'under_review'),
		COUNT(*) FILTER (WHERE priority = 'urgent')
	FROM claims`

func (r *claimRepoPG) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, statsQuery).Scan(&s.Total, &s.Pending, &s.Approved, &s.Denied, &s.Flagged, &s.UnderReview, &s.Urgent)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *claimRepoPG) SetStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE claims SET
			status = $2,
			notes = COALESCE($3, notes),
			reviewed_by = COALESCE($4, reviewed_by),
			reviewed_at = $5,
			updated_at = $5
		WHERE id = $1`,
		id, u.Status, u.Notes, u.ReviewedBy, u.At)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *claimRepoPG) Assign(ctx context.Context, id, advocateID uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE claims SET assigned_advocate_id = $2, updated_at = $3 WHERE id = $1`, id, advocateID, at)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("advocate %s: %w", advocateID, ErrNotFound)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectClaims(rows pgx.Rows) ([]*Claim, error) {
	defer rows.Close()
	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	var docs []byte
	err := row.Scan(
		&c.ID, &c.PatientID, &c.AssignedAdvocateID, &c.PolicyNumber, &c.ClaimNumber,
		&c.EmployerName, &c.EmployerAddress, &c.HealthcareProviderName, &c.Description, &c.Amount,
		&c.ClaimDate, &c.Status, &c.Priority, &c.Notes,
		&c.PatientFullName, &c.PatientDateOfBirth, &c.PatientPhone, &c.PatientEmail, &c.RelationshipToPatient,
		&c.InsuranceCompany, &c.PlanName, &c.MemberID,
		&c.IsDenialClaim, &c.DeniedService, &c.DenialDate, &c.DenialReason,
		&c.PrimaryDiagnosis, &c.ReferringDoctorName, &c.DoctorSpecialty, &c.AlternativeTreatments,
		&c.MedicalNecessity, &c.ImpactOnLife, &docs,
		&c.ReviewedBy, &c.ReviewedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.DocumentsUploaded = []UploadedDocument{}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &c.DocumentsUploaded); err != nil {
			return nil, fmt.Errorf("decode documents_uploaded: %w", err)
		}
	}
	return &c, nil
}

// -- Document Repository --

type documentRepoPG struct {
	q db.Querier
}

func NewDocumentRepo(q db.Querier) DocumentRepository {
	return &documentRepoPG{q: q}
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.q).Exec(ctx, `
		INSERT INTO claim_documents (id, claim_id, document_name, document_type, file_path, file_size, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.ClaimID, d.DocumentName, d.DocumentType, d.FilePath, d.FileSize, d.UploadedBy, d.CreatedAt)
	return err
}

func (r *documentRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Document, error) {
	rows, err := db.Conn(ctx, r.q).Query(ctx, `
		SELECT id, claim_id, document_name, document_type, file_path, file_size, uploaded_by, created_at
		FROM claim_documents WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.DocumentName, &d.DocumentType, &d.FilePath,
			&d.FileSize, &d.UploadedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	return items, rows.Err()
}

// -- History Repository --

type historyRepoPG struct {
	q db.Querier
}

func NewHistoryRepo(q db.Querier) HistoryRepository {
	return &historyRepoPG{q: q}
}

func (r *historyRepoPG) Create(ctx context.Context, h *HistoryEntry) error {
	h.ID = uuid.New()
	h.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.q).Exec(ctx, `
		INSERT INTO claim_history (id, claim_id, action, details, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.ClaimID, h.Action, h.Details, h.PerformedBy, h.CreatedAt)
	return err
}

func (r *historyRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*HistoryEntry, error) {
	rows, err := db.Conn(ctx, r.q).Query(ctx, `
		SELECT id, claim_id, action, details, performed_by, created_at
		FROM claim_history WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.Action, &h.Details, &h.PerformedBy, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

// -- Artifact Repository --

type artifactRepoPG struct {
	q db.Querier
}

func NewArtifactRepo(q db.Querier) ArtifactRepository {
	return &artifactRepoPG{q: q}
}

func artifactInsertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return ErrAlreadyExists
	case db.IsForeignKeyViolation(err):
		return ErrNotFound
	}
	return err
}

func (r *artifactRepoPG) CreateContext(ctx context.Context, c *Context) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.q).Exec(ctx,
		`INSERT INTO claim_contexts (id, claim_id, context, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.ClaimID, c.Context, c.CreatedAt)
	return artifactInsertErr(err)
}

func (r *artifactRepoPG) GetContext(ctx context.Context, claimID uuid.UUID) (*Context, error) {
	var c Context
	err := db.Conn(ctx, r.q).QueryRow(ctx,
		`SELECT id, claim_id, context, created_at FROM claim_contexts WHERE claim_id = $1`, claimID).
		Scan(&c.ID, &c.ClaimID, &c.Context, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *artifactRepoPG) ListContexts(ctx context.Context) ([]*Context, error) {
	rows, err := db.Conn(ctx, r.q).Query(ctx,
		`SELECT id, claim_id, context, created_at FROM claim_contexts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Context
	for rows.Next() {
		var c Context
		if err := rows.Scan(&c.ID, &c.ClaimID, &c.Context, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

const workflowColumns = `id, claim_id, context, analysis, markdown, created_at`

func (r *artifactRepoPG) CreateWorkflow(ctx context.Context, w *Workflow) error {
	w.ID = uuid.New()
	w.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.q).Exec(ctx,
		`INSERT INTO claim_workflows (`+workflowColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		w.ID, w.ClaimID, w.Context, w.Analysis, w.Markdown, w.CreatedAt)
	return artifactInsertErr(err)
}

func (r *artifactRepoPG) GetWorkflow(ctx context.Context, claimID uuid.UUID) (*Workflow, error) {
	w, err := scanWorkflow(db.Conn(ctx, r.q).QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM claim_workflows WHERE claim_id = $1`, claimID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (r *artifactRepoPG) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	rows, err := db.Conn(ctx, r.q).Query(ctx,
		`SELECT `+workflowColumns+` FROM claim_workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func scanWorkflow(row pgx.Row) (*Workflow, error) {
	var w Workflow
	if err := row.Scan(&w.ID, &w.ClaimID, &w.Context, &w.Analysis, &w.Markdown, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
