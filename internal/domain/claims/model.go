package claims

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending     = "pending"
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusDenied      = "denied"
	StatusFlagged     = "flagged"
	StatusAppealed    = "appealed"

	// StatusValidated is the dashboard's name for approved claims.
	StatusValidated = "validated"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// History actions.
const (
	ActionClaimSubmitted   = "claim_submitted"
	ActionStatusChanged    = "status_changed"
	ActionClaimFlagged     = "claim_flagged"
	ActionAdvocateAssigned = "advocate_assigned"
	ActionReportSent       = "report_sent"
)

var statuses = []string{
	StatusPending, StatusSubmitted, StatusUnderReview, StatusApproved,
	StatusDenied, StatusFlagged, StatusAppealed,
}

// NormalizeStatus lower-cases s and resolves dashboard aliases.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == StatusValidated {
		return StatusApproved
	}
	return s
}

func ValidStatus(s string) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Claim maps to the claims table.
type Claim struct {
	ID                     uuid.UUID          `db:"id" json:"id"`
	PatientID              uuid.UUID          `db:"patient_id" json:"patient_id"`
	AssignedAdvocateID     *uuid.UUID         `db:"assigned_advocate_id" json:"assigned_advocate_id,omitempty"`
	PolicyNumber           string             `db:"policy_number" json:"policy_number"`
	ClaimNumber            *string            `db:"claim_number" json:"claim_number,omitempty"`
	EmployerName           *string            `db:"employer_name" json:"employer_name,omitempty"`
	EmployerAddress        *string            `db:"employer_address" json:"employer_address,omitempty"`
	HealthcareProviderName *string            `db:"healthcare_provider_name" json:"healthcare_provider_name,omitempty"`
	Description            *string            `db:"claim_description" json:"claim_description,omitempty"`
	Amount                 *float64           `db:"claim_amount" json:"claim_amount,omitempty"`
	ClaimDate              time.Time          `db:"claim_date" json:"claim_date"`
	Status                 string             `db:"status" json:"status"`
	Priority               string             `db:"priority" json:"priority"`
	Notes                  *string            `db:"notes" json:"notes,omitempty"`
	PatientFullName        *string            `db:"patient_full_name" json:"patient_full_name,omitempty"`
	PatientDateOfBirth     *string            `db:"patient_date_of_birth" json:"patient_date_of_birth,omitempty"`
	PatientPhone           *string            `db:"patient_phone" json:"patient_phone,omitempty"`
	PatientEmail           *string            `db:"patient_email" json:"patient_email,omitempty"`
	RelationshipToPatient  *string            `db:"relationship_to_patient" json:"relationship_to_patient,omitempty"`
	InsuranceCompany       *string            `db:"insurance_company" json:"insurance_company,omitempty"`
	PlanName               *string            `db:"plan_name" json:"plan_name,omitempty"`
	MemberID               *string            `db:"member_id" json:"member_id,omitempty"`
	IsDenialClaim          bool               `db:"is_denial_claim" json:"is_denial_claim"`
	DeniedService          *string            `db:"denied_service" json:"denied_service,omitempty"`
	DenialDate             *string            `db:"denial_date" json:"denial_date,omitempty"`
	DenialReason           *string            `db:"denial_reason" json:"denial_reason,omitempty"`
	PrimaryDiagnosis       *string            `db:"primary_diagnosis" json:"primary_diagnosis,omitempty"`
	ReferringDoctorName    *string            `db:"referring_doctor_name" json:"referring_doctor_name,omitempty"`
	DoctorSpecialty        *string            `db:"doctor_specialty" json:"doctor_specialty,omitempty"`
	AlternativeTreatments  *string            `db:"alternative_treatments" json:"alternative_treatments,omitempty"`
	MedicalNecessity       *string            `db:"medical_necessity" json:"medical_necessity,omitempty"`
	ImpactOnLife           *string            `db:"impact_on_life" json:"impact_on_life,omitempty"`
	DocumentsUploaded      []UploadedDocument `db:"documents_uploaded" json:"documents_uploaded"`
	ReviewedBy             *uuid.UUID         `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt             *time.Time         `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// ShortID is the first eight characters of the claim id, as shown to users.
func (c *Claim) ShortID() string {
	return c.ID.String()[:8]
}

// UploadedDocument is the snapshot of an attachment stored on the claim row.
type UploadedDocument struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Document maps to the claim_documents table.
type Document struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ClaimID      uuid.UUID  `db:"claim_id" json:"claim_id"`
	DocumentName string     `db:"document_name" json:"document_name"`
	DocumentType *string    `db:"document_type" json:"document_type,omitempty"`
	FilePath     string     `db:"file_path" json:"file_path"`
	FileSize     *int64     `db:"file_size" json:"file_size,omitempty"`
	UploadedBy   *uuid.UUID `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// HistoryEntry maps to the claim_history table.
type HistoryEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ClaimID     uuid.UUID  `db:"claim_id" json:"claim_id"`
	Action      string     `db:"action" json:"action"`
	Details     *string    `db:"details" json:"details,omitempty"`
	PerformedBy *uuid.UUID `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Context is free-text analysis context pushed for a claim.
type Context struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClaimID   uuid.UUID `db:"claim_id" json:"claim_id"`
	Context   string    `db:"context" json:"context"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Workflow is the result of an external analysis run over a claim.
type Workflow struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClaimID   uuid.UUID `db:"claim_id" json:"claim_id"`
	Context   string    `db:"context" json:"context"`
	Analysis  string    `db:"analysis" json:"analysis"`
	Markdown  string    `db:"markdown" json:"markdown"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Stats are the dashboard counters.
type Stats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Approved    int `json:"approved"`
	Denied      int `json:"denied"`
	Flagged     int `json:"flagged"`
	UnderReview int `json:"under_review"`
	Urgent      int `json:"urgent"`
}

// Filter narrows a claim listing. Zero values match everything.
type Filter struct {
	Status    string
	Priority  string
	PatientID *uuid.UUID
	Search    string
}

// Criterion is one line of the review assessment.
type Criterion struct {
	Title       string `json:"title"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Assess returns the review assessment shown alongside a claim.
func Assess(c *Claim) []Criterion {
	necessity := "standard"
	if c.Amount != nil && *c.Amount > 5000 {
		necessity = "verified"
	}
	return []Criterion{
		{Title: "Medical Necessity", Status: necessity, Description: "Treatment deemed medically necessary"},
		{Title: "Policy Coverage", Status: "verified", Description: "Procedure covered under current policy"},
		{Title: "Documentation", Status: "complete", Description: "All required documentation provided"},
		{Title: "Provider Network", Status: "in-network", Description: "Healthcare provider is in-network"},
	}
}

// StatusLabel renders a status for display, "under_review" as "under review".
func StatusLabel(status string) string {
	return strings.Replace(status, "_", " ", 1)
}
