package claims

import (
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// ClaimStatus tracks a claim through adjudication
type ClaimStatus string

const (
	StatusDraft     ClaimStatus = "draft"
	StatusSubmitted ClaimStatus = "submitted"
	StatusAccepted  ClaimStatus = "accepted"
	StatusDenied    ClaimStatus = "denied"
	StatusPaid      ClaimStatus = "paid"
)

// An overturned appeal moves a denied claim straight to paid.
var transitions = map[ClaimStatus][]ClaimStatus{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusAccepted, StatusDenied},
	StatusAccepted:  {StatusPaid},
	StatusDenied:    {StatusPaid},
}

// CanTransition reports whether a claim may move from one status to another
func CanTransition(from, to ClaimStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineItem is a single billed service on a claim
type LineItem struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Units       int    `json:"units"`
	AmountCents int64  `json:"amount_cents"`
}

// Claim is a bill to a payer for services rendered
type Claim struct {
	ID           types.ID    `json:"id"`
	ClaimNumber  string      `json:"claim_number"`
	PatientID    types.ID    `json:"patient_id"`
	ReferralID   *types.ID   `json:"referral_id,omitempty"`
	Payer        string      `json:"payer"`
	ServiceStart time.Time   `json:"service_start"`
	ServiceEnd   time.Time   `json:"service_end"`
	AmountCents  int64       `json:"amount_cents"`
	LineItems    []LineItem  `json:"line_items"`
	Status       ClaimStatus `json:"status"`
	SubmittedAt  *time.Time  `json:"submitted_at,omitempty"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// TotalLineItems sums the line item amounts
func (c *Claim) TotalLineItems() int64 {
	var total int64
	for _, li := range c.LineItems {
		total += li.AmountCents
	}
	return total
}

// Denial records a payer's rejection of a submitted claim
type Denial struct {
	ID          types.ID  `json:"id"`
	ClaimID     types.ID  `json:"claim_id"`
	ReasonCode  string    `json:"reason_code"`
	ReasonText  string    `json:"reason_text,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	DeniedAt    time.Time `json:"denied_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppealStatus of a filed appeal
type AppealStatus string

const (
	AppealOpen    AppealStatus = "open"
	AppealDecided AppealStatus = "decided"
)

// Appeal outcomes
const (
	OutcomeOverturned = "overturned"
	OutcomeUpheld     = "upheld"
)

// Appeal challenges a denial at a given appeal level
type Appeal struct {
	ID        types.ID     `json:"id"`
	DenialID  types.ID     `json:"denial_id"`
	Level     int          `json:"level"`
	Narrative string       `json:"narrative"`
	Deadline  *time.Time   `json:"deadline,omitempty"`
	Status    AppealStatus `json:"status"`
	Outcome   string       `json:"outcome,omitempty"`
	FiledBy   *types.ID    `json:"filed_by,omitempty"`
	FiledAt   time.Time    `json:"filed_at"`
	DecidedAt *time.Time   `json:"decided_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// CreateClaimRequest is the request body for drafting a claim
type CreateClaimRequest struct {
	PatientID    string     `json:"patient_id"`
	ReferralID   string     `json:"referral_id"`
	Payer        string     `json:"payer"`
	ServiceStart string     `json:"service_start"`
	ServiceEnd   string     `json:"service_end"`
	LineItems    []LineItem `json:"line_items"`
}

// UpdateClaimRequest is the request body for editing a draft claim
type UpdateClaimRequest struct {
	Payer        *string     `json:"payer"`
	ServiceStart *string     `json:"service_start"`
	ServiceEnd   *string     `json:"service_end"`
	LineItems    *[]LineItem `json:"line_items"`
}

// CreateDenialRequest is the request body for recording a denial
type CreateDenialRequest struct {
	ReasonCode  string `json:"reason_code"`
	ReasonText  string `json:"reason_text"`
	AmountCents int64  `json:"amount_cents"`
	DeniedAt    string `json:"denied_at"`
}

// FileAppealRequest is the request body for appealing a denial
type FileAppealRequest struct {
	Level     int    `json:"level"`
	Narrative string `json:"narrative"`
	Deadline  string `json:"deadline"`
}

// DecideAppealRequest is the request body for recording an appeal outcome
type DecideAppealRequest struct {
	Outcome string `json:"outcome"`
}

// ListClaimsFilter narrows claim listings
type ListClaimsFilter struct {
	PatientID *types.ID
	Status    *ClaimStatus
	Payer     string
	Limit     int
	Offset    int
}
