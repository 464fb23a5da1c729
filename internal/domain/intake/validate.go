package intake

import "strings"

// ValidationResult names the first required field left empty.
type ValidationResult struct {
	Valid        bool   `json:"valid"`
	MissingField string `json:"missing_field,omitempty"`
}

// Err returns a *ValidationError for an invalid result and nil otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Field: r.MissingField}
}

type requiredField struct {
	label string
	value string
}

// Validate checks the required fields in display order and stops at the
// first empty one. Denied Service and Denial Reason are required only for
// denial claims.
func Validate(f Form) ValidationResult {
	required := []requiredField{
		{"Full Name", f.Patient.FullName},
		{"Email Address", f.Patient.EmailAddress},
		{"Insurance Company", f.Insurance.InsuranceCompany},
		{"Policy Number", f.Insurance.PolicyNumber},
		{"Primary Diagnosis", f.Medical.PrimaryDiagnosis},
	}
	if d, ok := f.DenialSection(); ok {
		required = append(required,
			requiredField{"Denied Service", d.DeniedService},
			requiredField{"Denial Reason", d.DenialReason},
		)
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return ValidationResult{MissingField: r.label}
		}
	}
	return ValidationResult{Valid: true}
}
