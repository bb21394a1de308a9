package ai

import (
	"fmt"

	"github.com/harborhealth/platform/internal/shared/types"
)

// HomeboundDetermination is the outcome band of a homebound assessment
type HomeboundDetermination string

const (
	HomeboundQualified    HomeboundDetermination = "qualified"
	HomeboundBorderline   HomeboundDetermination = "borderline"
	HomeboundNotQualified HomeboundDetermination = "not_qualified"
)

// AbsenceFrequency describes how often the patient leaves the home
type AbsenceFrequency string

const (
	AbsencesNone       AbsenceFrequency = "none"
	AbsencesInfrequent AbsenceFrequency = "infrequent"
	AbsencesFrequent   AbsenceFrequency = "frequent"
)

// HomeboundInput captures the clinical facts behind a CMS homebound
// determination. The booleans mirror the criteria on the OASIS intake
// form; AbsenceFrequency summarizes the visit history.
type HomeboundInput struct {
	PatientID types.ID `json:"patient_id,omitempty"`

	RequiresAssistiveDevice  bool             `json:"requires_assistive_device"`
	RequiresHumanAssistance  bool             `json:"requires_human_assistance"`
	MedicallyContraindicated bool             `json:"medically_contraindicated"`
	TaxingEffort             bool             `json:"taxing_effort"`
	AbsenceFrequency         AbsenceFrequency `json:"absence_frequency"`
	CognitiveImpairment      bool             `json:"cognitive_impairment"`

	Narrative string `json:"narrative,omitempty"`
}

// HomeboundAssessment is the result of a homebound determination
type HomeboundAssessment struct {
	Determination HomeboundDetermination `json:"determination"`
	Score         int                    `json:"score"`
	Factors       []string               `json:"factors"`
	Rationale     string                 `json:"rationale"`
	Source        string                 `json:"source"` // llm or rules
}

// Point weights for the rule-based determination. Taxing effort is the
// controlling CMS criterion; the remaining fields are supporting factors.
const (
	pointsTaxingEffort       = 30
	pointsContraindicated    = 25
	pointsHumanAssistance    = 15
	pointsAssistiveDevice    = 15
	pointsAbsencesNone       = 10
	pointsAbsencesInfrequent = 5
	pointsCognitive          = 5

	homeboundQualifiedScore  = 65
	homeboundBorderlineScore = 40
)

// ScoreHomebound runs the rule-based homebound determination. A score of
// 65 or above qualifies, 40 to 64 is borderline, anything lower does not
// qualify. Without the taxing-effort criterion the determination is
// capped at borderline regardless of the supporting factors.
func ScoreHomebound(in HomeboundInput) *HomeboundAssessment {
	score := 0
	var factors []string

	if in.TaxingEffort {
		score += pointsTaxingEffort
		factors = append(factors, "leaving home requires a considerable and taxing effort")
	}
	if in.MedicallyContraindicated {
		score += pointsContraindicated
		factors = append(factors, "leaving home is medically contraindicated")
	}
	if in.RequiresHumanAssistance {
		score += pointsHumanAssistance
		factors = append(factors, "requires the assistance of another person to leave home")
	}
	if in.RequiresAssistiveDevice {
		score += pointsAssistiveDevice
		factors = append(factors, "requires an assistive device to leave home")
	}
	switch in.AbsenceFrequency {
	case AbsencesNone:
		score += pointsAbsencesNone
		factors = append(factors, "patient does not leave the home")
	case AbsencesInfrequent:
		score += pointsAbsencesInfrequent
		factors = append(factors, "absences from the home are infrequent and of short duration")
	case AbsencesFrequent:
		factors = append(factors, "patient leaves the home frequently")
	}
	if in.CognitiveImpairment {
		score += pointsCognitive
		factors = append(factors, "cognitive impairment limits safe independent travel")
	}

	determination := HomeboundNotQualified
	switch {
	case score >= homeboundQualifiedScore:
		determination = HomeboundQualified
	case score >= homeboundBorderlineScore:
		determination = HomeboundBorderline
	}

	if determination == HomeboundQualified && !in.TaxingEffort {
		determination = HomeboundBorderline
		factors = append(factors, "taxing-effort criterion not met; supporting factors alone cannot qualify")
	}

	return &HomeboundAssessment{
		Determination: determination,
		Score:         score,
		Factors:       factors,
		Rationale:     fmt.Sprintf("rule-based determination scored %d of 100", score),
		Source:        "rules",
	}
}
