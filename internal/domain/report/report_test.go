package report

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/healthadvocate/advocate/internal/domain/claims"
	"github.com/healthadvocate/advocate/internal/domain/profiles"
)

var reportNow = time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func sampleClaim() *claims.Claim {
	return &claims.Claim{
		ID:                     uuid.MustParse("2c58a0b8-2c58-4c58-82c5-2c58a0b80000"),
		PatientID:              uuid.New(),
		PolicyNumber:           "POL-7",
		HealthcareProviderName: ptr("City Hospital"),
		EmployerName:           ptr("Acme Corp"),
		Description:            ptr("MRI denied as not medically necessary."),
		Amount:                 ptr(12345.5),
		ClaimDate:              time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
		Status:                 claims.StatusDenied,
		Priority:               claims.PriorityUrgent,
		PatientFullName:        ptr("Jane Doe"),
		PatientEmail:           ptr("jane@claim.example"),
		CreatedAt:              time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCriteria(t *testing.T) {
	tests := []struct {
		name     string
		amount   *float64
		priority string
		status   string
		want     []string
	}{
		{"nothing applies", ptr(500.0), claims.PriorityNormal, claims.StatusUnderReview, []string{}},
		{"amount boundary", ptr(1000.0), claims.PriorityNormal, claims.StatusFlagged, []string{}},
		{"no amount", nil, claims.PriorityLow, claims.StatusApproved, []string{"Claim meets approval criteria"}},
		{"pending high value", ptr(1000.01), claims.PriorityNormal, claims.StatusPending, []string{
			"High-value claim requiring detailed review",
			"Claim pending initial review",
		}},
		{"urgent denial", ptr(5000.0), claims.PriorityUrgent, claims.StatusDenied, []string{
			"High-value claim requiring detailed review",
			"Urgent priority claim - expedited processing required",
			"Claim denied - review for appeal opportunities",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &claims.Claim{Amount: tt.amount, Priority: tt.priority, Status: tt.status}
			assert.Equal(t, tt.want, Criteria(c))
		})
	}
}

func TestRecommendation(t *testing.T) {
	assert.Equal(t, "Claim approved - no further action needed", Recommendation(claims.StatusApproved))
	assert.Equal(t, "Consider appeal process - review denial reasons and gather additional documentation", Recommendation(claims.StatusDenied))
	assert.Equal(t, "Monitor claim progress and follow up if processing exceeds standard timeframes", Recommendation(claims.StatusPending))
	assert.Equal(t, "Review claim status and take appropriate action", Recommendation(claims.StatusUnderReview))
	assert.Equal(t, "Review claim status and take appropriate action", Recommendation("unknown"))
}

func TestBuild(t *testing.T) {
	c := sampleClaim()
	r := Build(c, nil, reportNow)

	assert.Equal(t, "2c58a0b8", r.ClaimRef)
	assert.Equal(t, "claim-report-2c58a0b8.pdf", r.FileName())
	assert.Equal(t, "Jane Doe", r.PatientName)
	assert.Equal(t, "jane@claim.example", r.PatientEmail)
	assert.Equal(t, "City Hospital", r.Provider)
	assert.Len(t, r.Criteria, 3)
	assert.Len(t, r.Assessment, 5)
	assert.Equal(t, Recommendation(claims.StatusDenied), r.Recommendation)
	assert.Equal(t, []string{
		"Submitted on Mar 1, 2025",
		"Processing time: 9 days",
		"Claim amount: $12,345.50",
		"Current status: denied",
		"Priority level: urgent",
	}, r.Characteristics)
}

func TestBuild_PrefersProfileAndHandlesMissingAmount(t *testing.T) {
	c := sampleClaim()
	c.Amount = nil
	c.Status = claims.StatusUnderReview
	p := &profiles.Profile{Email: "jane@profile.example", FirstName: ptr("Janet"), LastName: ptr("Doe")}

	r := Build(c, p, reportNow)
	assert.Equal(t, "Janet Doe", r.PatientName)
	assert.Equal(t, "jane@profile.example", r.PatientEmail)
	assert.Contains(t, r.Characteristics, "Amount not specified")
	assert.Contains(t, r.Characteristics, "Current status: under review")
}

func TestProcessingDays(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, processingDays(created, created.Add(23*time.Hour)))
	assert.Equal(t, 1, processingDays(created, created.Add(24*time.Hour)))
	assert.Equal(t, 0, processingDays(created, created.Add(-time.Hour)))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$250.00", FormatAmount(250))
	assert.Equal(t, "$1,234,567.89", FormatAmount(1234567.89))
}
