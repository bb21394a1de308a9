package referral

import (
	"encoding/json"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// ReferralStatus tracks a referral through intake
type ReferralStatus string

const (
	StatusReceived           ReferralStatus = "received"
	StatusReviewing          ReferralStatus = "reviewing"
	StatusEligibilityPending ReferralStatus = "eligibility_pending"
	StatusAccepted           ReferralStatus = "accepted"
	StatusDeclined           ReferralStatus = "declined"
	StatusAdmitted           ReferralStatus = "admitted"
)

// transitions lists the allowed next statuses for each status.
// Declining is allowed from any non-terminal pre-decision status.
var transitions = map[ReferralStatus][]ReferralStatus{
	StatusReceived:           {StatusReviewing, StatusDeclined},
	StatusReviewing:          {StatusEligibilityPending, StatusDeclined},
	StatusEligibilityPending: {StatusAccepted, StatusDeclined},
	StatusAccepted:           {StatusAdmitted},
}

// CanTransition reports whether a referral may move from one status to another
func CanTransition(from, to ReferralStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions
func (s ReferralStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Urgency of a referral
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

// ValidUrgency reports whether the given urgency is recognized
func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergent:
		return true
	}
	return false
}

// Referral is a request to admit a patient for home health services
type Referral struct {
	ID                types.ID        `json:"id"`
	ReferralNumber    string          `json:"referral_number"`
	PatientID         types.ID        `json:"patient_id"`
	Source            string          `json:"source"`
	SourceContact     string          `json:"source_contact,omitempty"`
	Urgency           Urgency         `json:"urgency"`
	Status            ReferralStatus  `json:"status"`
	RequestedServices []string        `json:"requested_services"`
	DiagnosisCode     string          `json:"diagnosis_code,omitempty"`
	FaceToFaceDate    *time.Time      `json:"face_to_face_date,omitempty"`
	DeclineReason     string          `json:"decline_reason,omitempty"`
	AIRecommendation  json.RawMessage `json:"ai_recommendation,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// EligibilityResult of a payer coverage check
type EligibilityResult string

const (
	EligibilityEligible   EligibilityResult = "eligible"
	EligibilityIneligible EligibilityResult = "ineligible"
	EligibilityUnknown    EligibilityResult = "unknown"
)

// EligibilityCheck is a recorded payer coverage verification for a referral
type EligibilityCheck struct {
	ID            types.ID          `json:"id"`
	ReferralID    types.ID          `json:"referral_id"`
	Payer         string            `json:"payer"`
	Result        EligibilityResult `json:"result"`
	CoverageStart *time.Time        `json:"coverage_start,omitempty"`
	CoverageEnd   *time.Time        `json:"coverage_end,omitempty"`
	CopayCents    *int64            `json:"copay_cents,omitempty"`
	RawResponse   json.RawMessage   `json:"raw_response,omitempty"`
	CheckedBy     *types.ID         `json:"checked_by,omitempty"`
	CheckedAt     time.Time         `json:"checked_at"`
}

// CreateReferralRequest is the request body for receiving a referral
type CreateReferralRequest struct {
	PatientID         string   `json:"patient_id"`
	Source            string   `json:"source"`
	SourceContact     string   `json:"source_contact"`
	Urgency           Urgency  `json:"urgency"`
	RequestedServices []string `json:"requested_services"`
	DiagnosisCode     string   `json:"diagnosis_code"`
	FaceToFaceDate    string   `json:"face_to_face_date"`
}

// UpdateReferralRequest is the request body for updating referral details
type UpdateReferralRequest struct {
	SourceContact     *string         `json:"source_contact"`
	Urgency           *Urgency        `json:"urgency"`
	RequestedServices *[]string       `json:"requested_services"`
	DiagnosisCode     *string         `json:"diagnosis_code"`
	FaceToFaceDate    *string         `json:"face_to_face_date"`
	AIRecommendation  json.RawMessage `json:"ai_recommendation"`
}

// DecideReferralRequest is the request body for accepting or declining
type DecideReferralRequest struct {
	Decision      string `json:"decision"`
	DeclineReason string `json:"decline_reason"`
}

// RecordEligibilityRequest is the request body for recording a coverage check
type RecordEligibilityRequest struct {
	Payer         string            `json:"payer"`
	Result        EligibilityResult `json:"result"`
	CoverageStart string            `json:"coverage_start"`
	CoverageEnd   string            `json:"coverage_end"`
	CopayCents    *int64            `json:"copay_cents"`
	RawResponse   json.RawMessage   `json:"raw_response"`
}

// ListReferralsFilter narrows referral listings
type ListReferralsFilter struct {
	Status    *ReferralStatus
	Urgency   *Urgency
	PatientID *types.ID
	Source    string
	Limit     int
	Offset    int
}
