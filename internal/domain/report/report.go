// Package report builds the advocacy report for a claim, renders it as PDF
// and delivers it to HR.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/domain/profiles"
)

const dateLayout = "Jan 2, 2006"

// Assessment lines printed on every report.
var assessmentSteps = []string{
	"Claim documentation reviewed and verified",
	"Medical necessity criteria assessed",
	"Insurance policy terms validated",
	"Prior authorization requirements checked",
	"Appeal process initiated if necessary",
}

// Report is everything the PDF and the JSON preview show for one claim.
type Report struct {
	ClaimID         uuid.UUID `json:"claim_id"`
	ClaimRef        string    `json:"claim_ref"`
	PolicyNumber    string    `json:"policy_number"`
	ClaimDate       time.Time `json:"claim_date"`
	Amount          *float64  `json:"claim_amount,omitempty"`
	Status          string    `json:"status"`
	Priority        string    `json:"priority"`
	PatientName     string    `json:"patient_name"`
	PatientEmail    string    `json:"patient_email"`
	Provider        string    `json:"healthcare_provider"`
	Employer        string    `json:"employer"`
	Description     string    `json:"claim_description"`
	Criteria        []string  `json:"criteria"`
	Characteristics []string  `json:"characteristics"`
	Assessment      []string  `json:"assessment"`
	Recommendation  string    `json:"recommendation"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// FileName is the download name of the rendered report.
func (r Report) FileName() string {
	return "claim-report-" + r.ClaimRef + ".pdf"
}

// Build assembles the report for c. patient may be nil, in which case the
// contact details captured on the claim are used. now stamps the report and
// measures processing time.
func Build(c *claims.Claim, patient *profiles.Profile, now time.Time) Report {
	r := Report{
		ClaimID:        c.ID,
		ClaimRef:       c.ShortID(),
		PolicyNumber:   c.PolicyNumber,
		ClaimDate:      c.ClaimDate,
		Amount:         c.Amount,
		Status:         c.Status,
		Priority:       c.Priority,
		Provider:       deref(c.HealthcareProviderName),
		Employer:       deref(c.EmployerName),
		Description:    deref(c.Description),
		Criteria:       Criteria(c),
		Assessment:     append([]string(nil), assessmentSteps...),
		Recommendation: Recommendation(c.Status),
		GeneratedAt:    now,
	}

	if patient != nil {
		r.PatientName = patient.FullName()
		r.PatientEmail = patient.Email
	} else {
		r.PatientName = deref(c.PatientFullName)
		r.PatientEmail = deref(c.PatientEmail)
	}

	r.Characteristics = []string{
		"Submitted on " + c.CreatedAt.Format(dateLayout),
		fmt.Sprintf("Processing time: %d days", processingDays(c.CreatedAt, now)),
		amountCharacteristic(c.Amount),
		"Current status: " + claims.StatusLabel(c.Status),
		"Priority level: " + c.Priority,
	}
	return r
}

// Criteria lists the assessment criteria that apply to c.
func Criteria(c *claims.Claim) []string {
	out := []string{}
	if c.Amount != nil && *c.Amount > 1000 {
		out = append(out, "High-value claim requiring detailed review")
	}
	if c.Priority == claims.PriorityUrgent {
		out = append(out, "Urgent priority claim - expedited processing required")
	}
	switch c.Status {
	case claims.StatusPending:
		out = append(out, "Claim pending initial review")
	case claims.StatusApproved:
		out = append(out, "Claim meets approval criteria")
	case claims.StatusDenied:
		out = append(out, "Claim denied - review for appeal opportunities")
	}
	return out
}

func Recommendation(status string) string {
	switch status {
	case claims.StatusApproved:
		return "Claim approved - no further action needed"
	case claims.StatusDenied:
		return "Consider appeal process - review denial reasons and gather additional documentation"
	case claims.StatusPending:
		return "Monitor claim progress and follow up if processing exceeds standard timeframes"
	}
	return "Review claim status and take appropriate action"
}

func processingDays(created, now time.Time) int {
	if now.Before(created) {
		return 0
	}
	return int(now.Sub(created) / (24 * time.Hour))
}

func amountCharacteristic(amount *float64) string {
	if amount == nil {
		return "Amount not specified"
	}
	return "Claim amount: " + FormatAmount(*amount)
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders a dollar amount with thousands separators.
func FormatAmount(v float64) string {
	return "$" + printer.Sprintf("%.2f", v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
