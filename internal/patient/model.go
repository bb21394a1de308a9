package patient

import (
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// Gender values follow the administrative sex codes the intake forms use.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// PatientStatus defines the lifecycle status of a patient record
type PatientStatus string

const (
	PatientStatusActive     PatientStatus = "active"
	PatientStatusInactive   PatientStatus = "inactive"
	PatientStatusDischarged PatientStatus = "discharged"
	PatientStatusDeceased   PatientStatus = "deceased"
)

// HomeboundStatus is the current CMS homebound determination snapshot.
// The authoritative assessment lives in the AI module's output; this is
// the last recorded outcome.
type HomeboundStatus string

const (
	HomeboundUnassessed   HomeboundStatus = "unassessed"
	HomeboundQualified    HomeboundStatus = "qualified"
	HomeboundBorderline   HomeboundStatus = "borderline"
	HomeboundNotQualified HomeboundStatus = "not_qualified"
)

// Patient represents a patient record
type Patient struct {
	ID          types.ID  `json:"id"`
	MRN         types.MRN `json:"mrn"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Gender      Gender    `json:"gender"`
	SSNLast4    string    `json:"ssn_last4,omitempty"`

	Address types.Address     `json:"address"`
	Contact types.ContactInfo `json:"contact"`

	Payer      string `json:"payer,omitempty"`
	MedicareID string `json:"medicare_id,omitempty"`
	MedicaidID string `json:"medicaid_id,omitempty"`

	PrimaryDiagnosis   string          `json:"primary_diagnosis,omitempty"` // ICD-10
	SecondaryDiagnoses []string        `json:"secondary_diagnoses"`
	HomeboundStatus    HomeboundStatus `json:"homebound_status"`

	AssignedClinician *types.ID     `json:"assigned_clinician,omitempty"`
	Status            PatientStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the patient's full name
func (p Patient) FullName() string {
	if p.MiddleName != "" {
		return p.FirstName + " " + p.MiddleName + " " + p.LastName
	}
	return p.FirstName + " " + p.LastName
}

// Age returns the patient's age in whole years at the given time
func (p Patient) Age(at time.Time) int {
	years := at.Year() - p.DateOfBirth.Year()
	if at.YearDay() < p.DateOfBirth.YearDay() {
		years--
	}
	return years
}

// CreatePatientRequest is the request to create a patient
type CreatePatientRequest struct {
	MRN                string            `json:"mrn"`
	FirstName          string            `json:"first_name"`
	LastName           string            `json:"last_name"`
	MiddleName         string            `json:"middle_name,omitempty"`
	DateOfBirth        string            `json:"date_of_birth"` // YYYY-MM-DD
	Gender             Gender            `json:"gender"`
	SSNLast4           string            `json:"ssn_last4,omitempty"`
	Address            types.Address     `json:"address"`
	Contact            types.ContactInfo `json:"contact"`
	Payer              string            `json:"payer,omitempty"`
	MedicareID         string            `json:"medicare_id,omitempty"`
	MedicaidID         string            `json:"medicaid_id,omitempty"`
	PrimaryDiagnosis   string            `json:"primary_diagnosis,omitempty"`
	SecondaryDiagnoses []string          `json:"secondary_diagnoses,omitempty"`
	AssignedClinician  *types.ID         `json:"assigned_clinician,omitempty"`
}

// UpdatePatientRequest is the request to update a patient
type UpdatePatientRequest struct {
	FirstName          *string            `json:"first_name,omitempty"`
	LastName           *string            `json:"last_name,omitempty"`
	MiddleName         *string            `json:"middle_name,omitempty"`
	Address            *types.Address     `json:"address,omitempty"`
	Contact            *types.ContactInfo `json:"contact,omitempty"`
	Payer              *string            `json:"payer,omitempty"`
	MedicareID         *string            `json:"medicare_id,omitempty"`
	MedicaidID         *string            `json:"medicaid_id,omitempty"`
	PrimaryDiagnosis   *string            `json:"primary_diagnosis,omitempty"`
	SecondaryDiagnoses *[]string          `json:"secondary_diagnoses,omitempty"`
	HomeboundStatus    *HomeboundStatus   `json:"homebound_status,omitempty"`
	AssignedClinician  *types.ID          `json:"assigned_clinician,omitempty"`
	Status             *PatientStatus     `json:"status,omitempty"`
}

// ListPatientsFilter defines filters for listing patients
type ListPatientsFilter struct {
	Status            *PatientStatus `json:"status,omitempty"`
	AssignedClinician *types.ID      `json:"assigned_clinician,omitempty"`
	Search            string         `json:"search,omitempty"` // name or MRN
	Limit             int            `json:"limit,omitempty"`
	Offset            int            `json:"offset,omitempty"`
}
