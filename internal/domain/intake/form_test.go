package intake

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewForm_Defaults(t *testing.T) {
	f := NewForm()
	assert.Equal(t, RelationshipSelf, f.Patient.RelationshipToPatient)
	assert.False(t, f.IsDenialClaim())
	assert.Empty(t, f.Patient.FullName)
}

func TestSectionWith_ReturnsCopy(t *testing.T) {
	orig := PatientInformation{FullName: "Jane", EmailAddress: "jane@example.com"}
	next, err := orig.With("fullName", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, "Jane", orig.FullName, "original must not change")
	assert.Equal(t, "Jane Doe", next.FullName)
	assert.Equal(t, orig.EmailAddress, next.EmailAddress)
}

func TestSectionWith_FieldNameForms(t *testing.T) {
	for _, name := range []string{"policyNumber", "policy_number", "POLICY-NUMBER", " PolicyNumber "} {
		got, err := InsuranceInformation{}.With(name, "P-1")
		require.NoError(t, err, name)
		assert.Equal(t, "P-1", got.PolicyNumber, name)
	}
}

func TestSectionWith_UnknownField(t *testing.T) {
	_, err := MedicalInformation{}.With("bloodType", "O+")
	var ferr *UnknownFieldError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, SectionMedical, ferr.Section)
	assert.Equal(t, "bloodType", ferr.Field)
}

func TestPatientWith_Relationship(t *testing.T) {
	p, err := PatientInformation{}.With("relationshipToPatient", "Legal_Guardian")
	require.NoError(t, err)
	assert.Equal(t, RelationshipLegalGuardian, p.RelationshipToPatient)

	_, err = PatientInformation{}.With("relationship_to_patient", "neighbour")
	assert.Error(t, err)
}

func TestForm_Update(t *testing.T) {
	f := NewForm()
	next, err := f.Update(SectionStory, "impactOnLife", "cannot work")
	require.NoError(t, err)
	assert.Empty(t, f.Story.ImpactOnLife, "original form must not change")
	assert.Equal(t, "cannot work", next.Story.ImpactOnLife)

	_, err = f.Update("billing", "amount", "1")
	var serr *UnknownSectionError
	assert.True(t, errors.As(err, &serr))

	_, err = f.Update(SectionDocuments, "id", "x")
	assert.Error(t, err)
}

func TestForm_Update_ErrorKeepsForm(t *testing.T) {
	f, err := NewForm().Update(SectionPatient, "fullName", "Jane Doe")
	require.NoError(t, err)
	f, err = f.Update(SectionMedical, "primaryDiagnosis", "Migraine")
	require.NoError(t, err)

	for _, tc := range [][2]string{
		{SectionPatient, "shoeSize"},
		{"billing", "amount"},
		{SectionDocuments, "id"},
	} {
		got, err := f.Update(tc[0], tc[1], "x")
		require.Error(t, err, tc[0])
		assert.Equal(t, f, got, "%s.%s should leave the form as it was", tc[0], tc[1])
	}
}

func TestForm_UpdateFields_AllOrNothing(t *testing.T) {
	f := NewForm()
	_, err := f.UpdateFields(SectionMedical, map[string]string{
		"primaryDiagnosis": "Migraine",
		"nope":             "x",
	})
	require.Error(t, err)
	assert.Empty(t, f.Medical.PrimaryDiagnosis)

	next, err := f.UpdateFields(SectionMedical, map[string]string{
		"primaryDiagnosis": "Migraine",
		"doctorSpecialty":  "Neurology",
	})
	require.NoError(t, err)
	assert.Equal(t, "Migraine", next.Medical.PrimaryDiagnosis)
	assert.Equal(t, "Neurology", next.Medical.DoctorSpecialty)
}

func TestForm_DenialSectionFollowsToggle(t *testing.T) {
	f, err := NewForm().Update(SectionDenial, "deniedService", "MRI")
	require.NoError(t, err)

	_, ok := f.DenialSection()
	assert.False(t, ok, "denial section hidden while toggle is off")

	on := f.WithDenialClaim(true)
	d, ok := on.DenialSection()
	require.True(t, ok)
	assert.Equal(t, "MRI", d.DeniedService)

	off := on.WithDenialClaim(false)
	raw, err := off.Section(SectionDenial)
	require.NoError(t, err)
	assert.Equal(t, "MRI", raw.(DenialInformation).DeniedService, "values kept when toggled off")
}

func TestForm_MarshalJSON(t *testing.T) {
	f, _ := NewForm().WithDenialClaim(true).Update(SectionDenial, "denialReason", "not covered")
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, true, out["is_denial_claim"])
	denial := out["denial"].(map[string]interface{})
	assert.Equal(t, "not covered", denial["denial_reason"])
	patient := out["patient"].(map[string]interface{})
	assert.Equal(t, "self", patient["relationship_to_patient"])
}
