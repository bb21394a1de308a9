package clinical

import (
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// NoteStatus defines the lifecycle status of a SOAP note
type NoteStatus string

const (
	NoteStatusDraft         NoteStatus = "draft"
	NoteStatusPendingReview NoteStatus = "pending_review"
	NoteStatusSigned        NoteStatus = "signed"
	NoteStatusAmended       NoteStatus = "amended"
)

// VisitType defines the kind of home visit documented
type VisitType string

const (
	VisitSkilledNursing   VisitType = "skilled_nursing"
	VisitPhysicalTherapy  VisitType = "physical_therapy"
	VisitOccupationalTx   VisitType = "occupational_therapy"
	VisitSpeechTherapy    VisitType = "speech_therapy"
	VisitHomeHealthAide   VisitType = "home_health_aide"
	VisitSocialWork       VisitType = "social_work"
	VisitPhysicianFollowU VisitType = "physician_followup"
)

// Section names an amendable part of a note
type Section string

const (
	SectionSubjective Section = "subjective"
	SectionObjective  Section = "objective"
	SectionAssessment Section = "assessment"
	SectionPlan       Section = "plan"
)

// ValidSection reports whether s names a SOAP section
func ValidSection(s Section) bool {
	switch s {
	case SectionSubjective, SectionObjective, SectionAssessment, SectionPlan:
		return true
	}
	return false
}

// Vitals holds the measurements recorded during a visit
type Vitals struct {
	Temperature      float64 `json:"temperature,omitempty"` // Fahrenheit
	HeartRate        int     `json:"heart_rate,omitempty"`
	RespiratoryRate  int     `json:"respiratory_rate,omitempty"`
	BloodPressureSys int     `json:"blood_pressure_sys,omitempty"`
	BloodPressureDia int     `json:"blood_pressure_dia,omitempty"`
	OxygenSaturation int     `json:"oxygen_saturation,omitempty"`
	Weight           float64 `json:"weight,omitempty"` // pounds
	PainLevel        int     `json:"pain_level,omitempty"`
}

// SOAPNote represents a visit note. Signed notes are immutable; later
// changes append Addendum records.
type SOAPNote struct {
	ID         types.ID   `json:"id"`
	NoteNumber string     `json:"note_number"`
	PatientID  types.ID   `json:"patient_id"`
	AuthorID   types.ID   `json:"author_id"`
	VisitType  VisitType  `json:"visit_type"`
	VisitDate  time.Time  `json:"visit_date"`
	Status     NoteStatus `json:"status"`

	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`

	Vitals     Vitals   `json:"vitals"`
	ICD10Codes []string `json:"icd10_codes"`

	SignedBy *types.ID  `json:"signed_by,omitempty"`
	SignedAt *time.Time `json:"signed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Addenda []Addendum `json:"addenda,omitempty"`
}

// Editable reports whether the note content may still change in place
func (n *SOAPNote) Editable() bool {
	return n.Status == NoteStatusDraft || n.Status == NoteStatusPendingReview
}

// Addendum is an append-only correction to a signed note
type Addendum struct {
	ID        types.ID  `json:"id"`
	NoteID    types.ID  `json:"note_id"`
	AuthorID  types.ID  `json:"author_id"`
	Section   Section   `json:"section"`
	Content   string    `json:"content"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateNoteRequest is the request to create a SOAP note
type CreateNoteRequest struct {
	PatientID  types.ID  `json:"patient_id"`
	VisitType  VisitType `json:"visit_type"`
	VisitDate  string    `json:"visit_date"` // YYYY-MM-DD
	Subjective string    `json:"subjective"`
	Objective  string    `json:"objective"`
	Assessment string    `json:"assessment"`
	Plan       string    `json:"plan"`
	Vitals     Vitals    `json:"vitals"`
	ICD10Codes []string  `json:"icd10_codes"`
}

// UpdateNoteRequest is the request to update an unsigned note
type UpdateNoteRequest struct {
	Subjective *string     `json:"subjective,omitempty"`
	Objective  *string     `json:"objective,omitempty"`
	Assessment *string     `json:"assessment,omitempty"`
	Plan       *string     `json:"plan,omitempty"`
	Vitals     *Vitals     `json:"vitals,omitempty"`
	ICD10Codes *[]string   `json:"icd10_codes,omitempty"`
	Status     *NoteStatus `json:"status,omitempty"`
}

// AmendNoteRequest is the request to add an addendum to a signed note
type AmendNoteRequest struct {
	Section Section `json:"section"`
	Content string  `json:"content"`
	Reason  string  `json:"reason"`
}

// ListNotesFilter defines filters for listing notes
type ListNotesFilter struct {
	PatientID *types.ID   `json:"patient_id,omitempty"`
	AuthorID  *types.ID   `json:"author_id,omitempty"`
	Status    *NoteStatus `json:"status,omitempty"`
	VisitType *VisitType  `json:"visit_type,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}
