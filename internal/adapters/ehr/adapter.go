package ehr

import (
	"context"
	"time"
)

// Adapter defines the interface for legacy EHR import adapters.
// Implementations connect to a specific legacy system and expose a
// unified API keyed by the patient's medical record number.
type Adapter interface {
	// Patient data retrieval
	FetchDemographics(ctx context.Context, mrn string) (*Demographics, error)
	FetchMedicationHistory(ctx context.Context, mrn string, activeOnly bool) ([]Medication, error)
	FetchEncounters(ctx context.Context, mrn string, from, to time.Time) ([]Encounter, error)

	// Real-time event subscriptions
	SubscribeAdmissions(ctx context.Context, handler AdmissionHandler) error
	SubscribeDischarges(ctx context.Context, handler DischargeHandler) error

	// Adapter metadata
	SourceSystem() string
	IsConnected() bool

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) error
}

// AdmissionHandler is called when a new hospital admission is detected
type AdmissionHandler func(event AdmissionEvent)

// DischargeHandler is called when a hospital discharge is detected
type DischargeHandler func(event DischargeEvent)

// Demographics is a patient demographic record from the legacy system
type Demographics struct {
	LocalID     string     `json:"local_id"`
	MRN         string     `json:"mrn"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	MiddleName  string     `json:"middle_name,omitempty"`
	DateOfBirth time.Time  `json:"date_of_birth"`
	Gender      string     `json:"gender"` // male, female, other, unknown
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city,omitempty"`
	PostalCode  string     `json:"postal_code,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	Payer       string     `json:"payer,omitempty"`
	MemberID    string     `json:"member_id,omitempty"`
	Deceased    bool       `json:"deceased"`
	DeceasedAt  *time.Time `json:"deceased_at,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`

	SourceSystem string `json:"source_system"`
}

// Medication is a medication history row from the legacy system
type Medication struct {
	ID             string     `json:"id"`
	PatientMRN     string     `json:"patient_mrn"`
	MedicationName string     `json:"medication_name"`
	NDCCode        string     `json:"ndc_code,omitempty"`
	Dosage         string     `json:"dosage,omitempty"`
	Frequency      string     `json:"frequency,omitempty"`
	Route          string     `json:"route,omitempty"`
	Quantity       int        `json:"quantity,omitempty"`
	Refills        int        `json:"refills,omitempty"`
	PrescribedAt   time.Time  `json:"prescribed_at"`
	PrescribedBy   string     `json:"prescribed_by,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	Status         string     `json:"status"`
	Instructions   string     `json:"instructions,omitempty"`
	LastUpdated    time.Time  `json:"last_updated"`

	SourceSystem string `json:"source_system"`
}

// Encounter is a hospital encounter row from the legacy system
type Encounter struct {
	ID               string     `json:"id"`
	PatientMRN       string     `json:"patient_mrn"`
	AdmissionDate    time.Time  `json:"admission_date"`
	DischargeDate    *time.Time `json:"discharge_date,omitempty"`
	Department       string     `json:"department"`
	AdmissionType    string     `json:"admission_type"` // emergency, planned, transfer
	DischargeType    string     `json:"discharge_type,omitempty"`
	AttendingName    string     `json:"attending_name,omitempty"`
	AttendingNPI     string     `json:"attending_npi,omitempty"`
	PrimaryDiagnosis string     `json:"primary_diagnosis,omitempty"` // ICD-10
	DiagnosisText    string     `json:"diagnosis_text,omitempty"`
	Status           string     `json:"status"`
	LastUpdated      time.Time  `json:"last_updated"`

	SourceSystem string `json:"source_system"`
}

// AdmissionEvent signals a patient admission in the legacy system.
// Admissions matter for home health: an admitted patient's visits are
// held until discharge.
type AdmissionEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	PatientMRN    string    `json:"patient_mrn"`
	PatientName   string    `json:"patient_name"`
	Department    string    `json:"department"`
	AdmissionType string    `json:"admission_type"`
	DiagnosisICD  string    `json:"diagnosis_icd,omitempty"`
	SourceSystem  string    `json:"source_system"`
}

// DischargeEvent signals a patient discharge, the usual trigger for a
// resumption-of-care visit.
type DischargeEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	PatientMRN    string    `json:"patient_mrn"`
	PatientName   string    `json:"patient_name"`
	Department    string    `json:"department"`
	DischargeType string    `json:"discharge_type"` // home, facility, deceased
	AdmissionDate time.Time `json:"admission_date"`
	DischargeDate time.Time `json:"discharge_date"`
	DiagnosisICD  string    `json:"diagnosis_icd,omitempty"`
	SourceSystem  string    `json:"source_system"`
}

// Config holds common configuration for EHR adapters
type Config struct {
	// Database connection
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`

	// Polling configuration
	PollInterval    time.Duration `json:"poll_interval"`
	BatchSize       int           `json:"batch_size"`
	EventBufferSize int           `json:"event_buffer_size"`
}

// DefaultConfig returns default adapter configuration
func DefaultConfig() Config {
	return Config{
		Port:            1433, // SQL Server default
		SSLMode:         "disable",
		PollInterval:    30 * time.Second,
		BatchSize:       100,
		EventBufferSize: 1000,
	}
}
