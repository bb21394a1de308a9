package prescription

import (
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// PrescriptionStatus tracks the lifecycle of a prescription
type PrescriptionStatus string

const (
	StatusActive       PrescriptionStatus = "active"
	StatusOnHold       PrescriptionStatus = "on_hold"
	StatusDiscontinued PrescriptionStatus = "discontinued"
	StatusExpired      PrescriptionStatus = "expired"
	StatusCompleted    PrescriptionStatus = "completed"
)

// Pharmacy is a dispensing pharmacy registered with the agency
type Pharmacy struct {
	ID         types.ID  `json:"id"`
	NCPDPID    string    `json:"ncpdp_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	Fax        string    `json:"fax,omitempty"`
	Street     string    `json:"street,omitempty"`
	City       string    `json:"city,omitempty"`
	State      string    `json:"state,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Prescription is a medication order for a patient
type Prescription struct {
	ID                types.ID           `json:"id"`
	RxNumber          string             `json:"rx_number"`
	PatientID         types.ID           `json:"patient_id"`
	PrescriberID      types.ID           `json:"prescriber_id"`
	PharmacyID        *types.ID          `json:"pharmacy_id,omitempty"`
	Medication        string             `json:"medication"`
	NDCCode           string             `json:"ndc_code,omitempty"`
	Sig               string             `json:"sig"`
	Quantity          int                `json:"quantity"`
	RefillsAllowed    int                `json:"refills_allowed"`
	RefillsRemaining  int                `json:"refills_remaining"`
	Status            PrescriptionStatus `json:"status"`
	DiscontinueReason string             `json:"discontinue_reason,omitempty"`
	WrittenAt         time.Time          `json:"written_at"`
	ExpiresAt         *time.Time         `json:"expires_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Refillable reports whether the prescription can be refilled right now
func (p *Prescription) Refillable(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.RefillsRemaining <= 0 {
		return false
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	return true
}

// TransmissionStatus of a prescription sent to a pharmacy
type TransmissionStatus string

const (
	TransmissionPending TransmissionStatus = "pending"
	TransmissionSent    TransmissionStatus = "sent"
	TransmissionFailed  TransmissionStatus = "failed"
)

// Transmission is one attempt to deliver a prescription to a pharmacy
type Transmission struct {
	ID             types.ID           `json:"id"`
	PrescriptionID types.ID           `json:"prescription_id"`
	PharmacyID     types.ID           `json:"pharmacy_id"`
	Method         string             `json:"method"`
	Status         TransmissionStatus `json:"status"`
	ProviderRef    string             `json:"provider_ref,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// CreatePharmacyRequest is the request body for registering a pharmacy
type CreatePharmacyRequest struct {
	NCPDPID    string `json:"ncpdp_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Fax        string `json:"fax"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// CreatePrescriptionRequest is the request body for writing a prescription
type CreatePrescriptionRequest struct {
	PatientID  string `json:"patient_id"`
	PharmacyID string `json:"pharmacy_id"`
	Medication string `json:"medication"`
	NDCCode    string `json:"ndc_code"`
	Sig        string `json:"sig"`
	Quantity   int    `json:"quantity"`
	Refills    int    `json:"refills"`
	ExpiresAt  string `json:"expires_at"`
}

// DiscontinueRequest is the request body for discontinuing a prescription
type DiscontinueRequest struct {
	Reason string `json:"reason"`
}

// ListPrescriptionsFilter narrows prescription listings
type ListPrescriptionsFilter struct {
	PatientID  *types.ID
	Prescriber *types.ID
	Status     *PrescriptionStatus
	Limit      int
	Offset     int
}
