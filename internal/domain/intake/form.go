package intake

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Section names addressed by Form.Section and Form.Update.
const (
	SectionPatient   = "patient"
	SectionInsurance = "insurance"
	SectionDenial    = "denial"
	SectionMedical   = "medical"
	SectionStory     = "story"
	SectionDocuments = "documents"
)

// Relationship of the person filling the form to the patient.
type Relationship string

const (
	RelationshipSelf          Relationship = "self"
	RelationshipSpouse        Relationship = "spouse"
	RelationshipParent        Relationship = "parent"
	RelationshipChild         Relationship = "child"
	RelationshipLegalGuardian Relationship = "legal_guardian"
	RelationshipOther         Relationship = "other"
)

func (r Relationship) Valid() bool {
	switch r {
	case RelationshipSelf, RelationshipSpouse, RelationshipParent,
		RelationshipChild, RelationshipLegalGuardian, RelationshipOther:
		return true
	}
	return false
}

type PatientInformation struct {
	FullName              string       `json:"full_name"`
	DateOfBirth           string       `json:"date_of_birth"`
	MailingAddress        string       `json:"mailing_address"`
	PhoneNumber           string       `json:"phone_number"`
	EmailAddress          string       `json:"email_address"`
	RelationshipToPatient Relationship `json:"relationship_to_patient"`
}

type InsuranceInformation struct {
	InsuranceCompany string `json:"insurance_company"`
	EmployerName     string `json:"employer_name"`
	PlanName         string `json:"plan_name"`
	PolicyNumber     string `json:"policy_number"`
	MemberID         string `json:"member_id"`
	ClaimCaseNumber  string `json:"claim_case_number"`
}

type DenialInformation struct {
	DeniedService string `json:"denied_service"`
	DenialDate    string `json:"denial_date"`
	DenialReason  string `json:"denial_reason"`
	ServiceDate   string `json:"service_date"`
}

type MedicalInformation struct {
	PrimaryDiagnosis      string `json:"primary_diagnosis"`
	ReferringDoctorName   string `json:"referring_doctor_name"`
	DoctorSpecialty       string `json:"doctor_specialty"`
	AlternativeTreatments string `json:"alternative_treatments"`
}

type PatientStory struct {
	MedicalNecessity string `json:"medical_necessity"`
	ImpactOnLife     string `json:"impact_on_life"`
}

// setters maps a normalized field name to an assignment on a section copy.
type setters[T any] map[string]func(*T, string) error

func (s setters[T]) apply(section string, v T, field, value string) (T, error) {
	set, ok := s[fieldKey(field)]
	if !ok {
		return v, &UnknownFieldError{Section: section, Field: field}
	}
	if err := set(&v, value); err != nil {
		return v, err
	}
	return v, nil
}

// fieldKey matches fullName, full_name and full-name alike.
func fieldKey(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(name)))
}

func str[T any](f func(*T) *string) func(*T, string) error {
	return func(v *T, s string) error {
		*f(v) = s
		return nil
	}
}

var patientSetters = setters[PatientInformation]{
	"fullname":       str(func(p *PatientInformation) *string { return &p.FullName }),
	"dateofbirth":    str(func(p *PatientInformation) *string { return &p.DateOfBirth }),
	"mailingaddress": str(func(p *PatientInformation) *string { return &p.MailingAddress }),
	"phonenumber":    str(func(p *PatientInformation) *string { return &p.PhoneNumber }),
	"emailaddress":   str(func(p *PatientInformation) *string { return &p.EmailAddress }),
	"relationshiptopatient": func(p *PatientInformation, s string) error {
		r := Relationship(strings.ToLower(strings.TrimSpace(s)))
		if !r.Valid() {
			return fmt.Errorf("invalid relationship %q", s)
		}
		p.RelationshipToPatient = r
		return nil
	},
}

var insuranceSetters = setters[InsuranceInformation]{
	"insurancecompany": str(func(i *InsuranceInformation) *string { return &i.InsuranceCompany }),
	"employername":     str(func(i *InsuranceInformation) *string { return &i.EmployerName }),
	"planname":         str(func(i *InsuranceInformation) *string { return &i.PlanName }),
	"policynumber":     str(func(i *InsuranceInformation) *string { return &i.PolicyNumber }),
	"memberid":         str(func(i *InsuranceInformation) *string { return &i.MemberID }),
	"claimcasenumber":  str(func(i *InsuranceInformation) *string { return &i.ClaimCaseNumber }),
}

var denialSetters = setters[DenialInformation]{
	"deniedservice": str(func(d *DenialInformation) *string { return &d.DeniedService }),
	"denialdate":    str(func(d *DenialInformation) *string { return &d.DenialDate }),
	"denialreason":  str(func(d *DenialInformation) *string { return &d.DenialReason }),
	"servicedate":   str(func(d *DenialInformation) *string { return &d.ServiceDate }),
}

var medicalSetters = setters[MedicalInformation]{
	"primarydiagnosis":      str(func(m *MedicalInformation) *string { return &m.PrimaryDiagnosis }),
	"referringdoctorname":   str(func(m *MedicalInformation) *string { return &m.ReferringDoctorName }),
	"doctorspecialty":       str(func(m *MedicalInformation) *string { return &m.DoctorSpecialty }),
	"alternativetreatments": str(func(m *MedicalInformation) *string { return &m.AlternativeTreatments }),
}

var storySetters = setters[PatientStory]{
	"medicalnecessity": str(func(s *PatientStory) *string { return &s.MedicalNecessity }),
	"impactonlife":     str(func(s *PatientStory) *string { return &s.ImpactOnLife }),
}

// With returns a copy of p with one field replaced.
func (p PatientInformation) With(field, value string) (PatientInformation, error) {
	return patientSetters.apply(SectionPatient, p, field, value)
}

// With returns a copy of i with one field replaced.
func (i InsuranceInformation) With(field, value string) (InsuranceInformation, error) {
	return insuranceSetters.apply(SectionInsurance, i, field, value)
}

// With returns a copy of d with one field replaced.
func (d DenialInformation) With(field, value string) (DenialInformation, error) {
	return denialSetters.apply(SectionDenial, d, field, value)
}

// With returns a copy of m with one field replaced.
func (m MedicalInformation) With(field, value string) (MedicalInformation, error) {
	return medicalSetters.apply(SectionMedical, m, field, value)
}

// With returns a copy of s with one field replaced.
func (s PatientStory) With(field, value string) (PatientStory, error) {
	return storySetters.apply(SectionStory, s, field, value)
}

// Form is the intake form. Uploaded documents are held by the session's
// AttachmentSet rather than here.
//
// The denial section is kept whatever the claim type, so toggling back keeps
// what was typed, but it only takes part in validation through DenialSection.
type Form struct {
	Patient   PatientInformation
	Insurance InsuranceInformation
	Medical   MedicalInformation
	Story     PatientStory

	denial        DenialInformation
	isDenialClaim bool
}

// NewForm returns an empty form.
func NewForm() Form {
	return Form{Patient: PatientInformation{RelationshipToPatient: RelationshipSelf}}
}

// IsDenialClaim reports the claim-type toggle.
func (f Form) IsDenialClaim() bool { return f.isDenialClaim }

// WithDenialClaim returns a copy of f with the claim-type toggle set.
func (f Form) WithDenialClaim(on bool) Form {
	f.isDenialClaim = on
	return f
}

// DenialSection returns the denial section when the form is a denial claim.
func (f Form) DenialSection() (DenialInformation, bool) {
	if !f.isDenialClaim {
		return DenialInformation{}, false
	}
	return f.denial, true
}

// Section returns the current value of the named section.
func (f Form) Section(name string) (interface{}, error) {
	switch fieldKey(name) {
	case SectionPatient:
		return f.Patient, nil
	case SectionInsurance:
		return f.Insurance, nil
	case SectionDenial:
		return f.denial, nil
	case SectionMedical:
		return f.Medical, nil
	case SectionStory:
		return f.Story, nil
	}
	return nil, &UnknownSectionError{Section: name}
}

// Update returns a copy of f with one field of one section replaced. On error
// f is returned unchanged.
func (f Form) Update(section, field, value string) (Form, error) {
	next := f
	var err error
	switch fieldKey(section) {
	case SectionPatient:
		next.Patient, err = f.Patient.With(field, value)
	case SectionInsurance:
		next.Insurance, err = f.Insurance.With(field, value)
	case SectionDenial:
		next.denial, err = f.denial.With(field, value)
	case SectionMedical:
		next.Medical, err = f.Medical.With(field, value)
	case SectionStory:
		next.Story, err = f.Story.With(field, value)
	case SectionDocuments:
		err = fmt.Errorf("documents are added through uploads")
	default:
		err = &UnknownSectionError{Section: section}
	}
	if err != nil {
		return f, err
	}
	return next, nil
}

// UpdateFields applies several updates to one section. Either all apply or
// none do.
func (f Form) UpdateFields(section string, fields map[string]string) (Form, error) {
	next := f
	for field, value := range fields {
		var err error
		if next, err = next.Update(section, field, value); err != nil {
			return f, err
		}
	}
	return next, nil
}

type formJSON struct {
	Patient       PatientInformation   `json:"patient"`
	Insurance     InsuranceInformation `json:"insurance"`
	Denial        DenialInformation    `json:"denial"`
	Medical       MedicalInformation   `json:"medical"`
	Story         PatientStory         `json:"story"`
	IsDenialClaim bool                 `json:"is_denial_claim"`
}

func (f Form) MarshalJSON() ([]byte, error) {
	return json.Marshal(formJSON{
		Patient:       f.Patient,
		Insurance:     f.Insurance,
		Denial:        f.denial,
		Medical:       f.Medical,
		Story:         f.Story,
		IsDenialClaim: f.isDenialClaim,
	})
}
