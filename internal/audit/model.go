package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// Go maps have random iteration order, so hashes would not be reproducible
// without sorting.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// ActorType defines the type of actor
type ActorType string

const (
	ActorTypeClinician ActorType = "clinician"
	ActorTypeOffice    ActorType = "office"
	ActorTypePatient   ActorType = "patient"
	ActorTypeSystem    ActorType = "system"
)

// Entry represents an immutable audit log entry. Entries form a hash
// chain: each entry's hash covers its content plus the previous hash.
type Entry struct {
	ID        types.ID  `json:"id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	// Actor
	ActorType ActorType `json:"actor_type"`
	ActorID   types.ID  `json:"actor_id"`
	ActorIP   string    `json:"actor_ip,omitempty"`

	// Action
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *types.ID `json:"resource_id,omitempty"`

	// Changes
	Changes map[string]any `json:"changes,omitempty"`

	// Context
	CorrelationID *types.ID `json:"correlation_id,omitempty"`
	Justification string    `json:"justification,omitempty"`
}

// NewEntry creates a new audit entry linked to the previous hash
func NewEntry(
	actorType ActorType,
	actorID types.ID,
	action, resourceType string,
	resourceID *types.ID,
	changes map[string]any,
	prevHash string,
) *Entry {
	entry := &Entry{
		ID:           types.NewID(),
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prevHash,
		ActorType:    actorType,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}

	entry.Hash = entry.computeHash()

	return entry
}

// computeHash calculates the SHA-256 hash of the entry using canonical
// JSON. Timestamps are hashed in UTC so verification is timezone-proof.
func (e *Entry) computeHash() string {
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_type":    e.ActorType,
		"actor_id":      e.ActorID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}

	if e.ResourceID != nil {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's content hash
func (e *Entry) VerifyHash() bool {
	return e.Hash == e.computeHash()
}

// ComputeHash computes and returns the correct hash for this entry
func (e *Entry) ComputeHash() string {
	return e.computeHash()
}

// WithContext adds correlation and justification to the entry
func (e *Entry) WithContext(correlationID *types.ID, justification string) *Entry {
	e.CorrelationID = correlationID
	e.Justification = justification
	return e
}

// ListEntriesFilter defines filters for listing audit entries
type ListEntriesFilter struct {
	ActorID      *types.ID  `json:"actor_id,omitempty"`
	ActorType    *ActorType `json:"actor_type,omitempty"`
	Action       string     `json:"action,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   *types.ID  `json:"resource_id,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

// Common audit actions
const (
	// Authentication
	ActionLogin       = "auth.login"
	ActionLogout      = "auth.logout"
	ActionLoginFailed = "auth.login_failed"

	// Patients
	ActionPatientCreated = "patient.created"
	ActionPatientViewed  = "patient.viewed"
	ActionPatientUpdated = "patient.updated"
	ActionPatientDeleted = "patient.deleted"

	// Clinical documentation
	ActionNoteCreated = "note.created"
	ActionNoteSigned  = "note.signed"
	ActionNoteAmended = "note.amended"

	// Intake
	ActionReferralReceived = "referral.received"
	ActionReferralDecided  = "referral.decided"

	// Pharmacy
	ActionPrescriptionWritten     = "prescription.written"
	ActionPrescriptionTransmitted = "prescription.transmitted"

	// Billing
	ActionClaimSubmitted = "claim.submitted"
	ActionClaimDenied    = "claim.denied"
	ActionAppealFiled    = "appeal.filed"

	// Documents
	ActionDocumentUploaded  = "document.uploaded"
	ActionDocumentProcessed = "document.processed"

	// Sensitive data access
	ActionPHIExported = "phi.exported"

	// Decision support
	ActionAIInvoked = "ai.invoked"
)

// VerifyResult contains detailed chain verification results
type VerifyResult struct {
	Valid          bool                `json:"valid"`
	Checked        int                 `json:"checked"`
	ContentValid   int                 `json:"content_valid"`
	ContentInvalid int                 `json:"content_invalid"`
	LinkageValid   int                 `json:"linkage_valid"`
	LinkageInvalid int                 `json:"linkage_invalid"`
	Violations     []string            `json:"violations,omitempty"`
	Entries        []VerifyEntryResult `json:"entries,omitempty"`
}

// VerifyEntryResult contains verification result for a single entry
type VerifyEntryResult struct {
	ID           types.ID `json:"id"`
	Sequence     int64    `json:"sequence"`
	Hash         string   `json:"hash"`
	ComputedHash string   `json:"computed_hash,omitempty"`
	PrevHash     string   `json:"prev_hash"`
	Valid        bool     `json:"valid"`
	ContentValid bool     `json:"content_valid"`
	LinkageValid bool     `json:"linkage_valid"`
	Action       string   `json:"action"`
}
