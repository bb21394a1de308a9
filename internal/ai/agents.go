package ai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Agent names as they appear in metrics, audit entries, and responses
const (
	AgentReferralIntelligence    = "referral_intelligence"
	AgentEligibilityVerification = "eligibility_verification"
	AgentHomeboundAssessment     = "homebound_assessment"
	AgentSmartScheduling         = "smart_scheduling"
	AgentConsentManagement       = "consent_management"
	AgentVoiceAssistant          = "voice_assistant"
	AgentChartReview             = "chart_review"
	AgentAssistantQuery          = "assistant_query"
	AgentDocumentExtraction      = "document_extraction"
)

// Orchestrator runs the decision-support agents. Each agent serializes
// its input, asks the client for a JSON reply, and decodes it into a
// typed result. Calls are sequential and hold no state between requests.
type Orchestrator struct {
	client *Client
	log    zerolog.Logger
}

// NewOrchestrator creates an orchestrator over the given client
func NewOrchestrator(client *Client, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{client: client, log: log.With().Str("component", "ai").Logger()}
}

// Ready reports whether a language model provider is available
func (o *Orchestrator) Ready() bool {
	return o.client != nil && o.client.Configured()
}

// Providers returns the configured provider names in failover order
func (o *Orchestrator) Providers() []string {
	if o.client == nil {
		return nil
	}
	return o.client.Providers()
}

// invoke serializes input, runs one completion, and decodes the reply
// into out. The reply must be a single JSON object.
func (o *Orchestrator) invoke(ctx context.Context, agent, system string, input, out any) (string, error) {
	if o.client == nil {
		return "", errors.Unavailable("decision support is disabled")
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize agent input")
	}

	reply, provider, err := o.client.Complete(ctx, agent, CompletionRequest{
		System: system,
		Prompt: string(payload),
	})
	if err != nil {
		return "", err
	}

	if err := decodeStrictJSON(reply, out); err != nil {
		o.log.Warn().Str("agent", agent).Str("provider", provider).Err(err).Msg("model returned malformed reply")
		return provider, errors.Wrap(err, "model reply was not the expected JSON object")
	}

	return provider, nil
}

// decodeStrictJSON decodes a model reply into out, tolerating a
// markdown code fence around the object but nothing else.
func decodeStrictJSON(reply string, out any) error {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errors.BadRequest("trailing content after JSON object")
	}
	return nil
}

// --- Referral intelligence ---

// ReferralIntelligenceInput summarizes a referral for triage
type ReferralIntelligenceInput struct {
	ReferralNumber    string     `json:"referral_number,omitempty"`
	Urgency           string     `json:"urgency"`
	ReferringProvider string     `json:"referring_provider,omitempty"`
	DiagnosisCodes    []string   `json:"diagnosis_codes,omitempty"`
	RequestedServices []string   `json:"requested_services,omitempty"`
	FaceToFaceDate    *time.Time `json:"face_to_face_date,omitempty"`
	ClinicalSummary   string     `json:"clinical_summary,omitempty"`
}

// ReferralIntelligenceResult is the triage recommendation for a referral
type ReferralIntelligenceResult struct {
	Recommendation     string   `json:"recommendation"` // accept, decline, review
	Confidence         float64  `json:"confidence"`
	Rationale          string   `json:"rationale"`
	SuggestedServices  []string `json:"suggested_services,omitempty"`
	MissingInformation []string `json:"missing_information,omitempty"`

	Provider string `json:"provider,omitempty"`
}

const referralIntelligencePrompt = `You are a home health intake triage assistant. Given a referral as JSON,
recommend whether to accept, decline, or flag it for manual review.
Respond with a single JSON object:
{"recommendation": "accept|decline|review", "confidence": 0.0-1.0,
"rationale": "...", "suggested_services": ["..."], "missing_information": ["..."]}`

// AssessReferral runs the referral triage agent
func (o *Orchestrator) AssessReferral(ctx context.Context, input ReferralIntelligenceInput) (*ReferralIntelligenceResult, error) {
	var result ReferralIntelligenceResult
	provider, err := o.invoke(ctx, AgentReferralIntelligence, referralIntelligencePrompt, input, &result)
	if err != nil {
		return nil, err
	}

	switch result.Recommendation {
	case "accept", "decline", "review":
	default:
		return nil, errors.Internal("model returned an unknown recommendation")
	}

	result.Provider = provider
	return &result, nil
}

// --- Eligibility verification ---

// EligibilityVerificationInput carries coverage details for review
type EligibilityVerificationInput struct {
	Payer             string   `json:"payer"`
	PlanName          string   `json:"plan_name,omitempty"`
	MemberID          string   `json:"member_id,omitempty"`
	DiagnosisCodes    []string `json:"diagnosis_codes,omitempty"`
	RequestedServices []string `json:"requested_services,omitempty"`
	CoverageNotes     string   `json:"coverage_notes,omitempty"`
}

// EligibilityVerificationResult is the coverage review outcome
type EligibilityVerificationResult struct {
	LikelyEligible bool     `json:"likely_eligible"`
	Confidence     float64  `json:"confidence"`
	Rationale      string   `json:"rationale"`
	RequiredChecks []string `json:"required_checks,omitempty"`

	Provider string `json:"provider,omitempty"`
}

const eligibilityVerificationPrompt = `You are an insurance eligibility analyst for a home health agency.
Given coverage details as JSON, assess whether the requested services are
likely covered and list the manual checks still required before acceptance.
Respond with a single JSON object:
{"likely_eligible": true|false, "confidence": 0.0-1.0, "rationale": "...",
"required_checks": ["..."]}`

// VerifyEligibility runs the eligibility review agent
func (o *Orchestrator) VerifyEligibility(ctx context.Context, input EligibilityVerificationInput) (*EligibilityVerificationResult, error) {
	if input.Payer == "" {
		return nil, errors.BadRequest("payer is required")
	}

	var result EligibilityVerificationResult
	provider, err := o.invoke(ctx, AgentEligibilityVerification, eligibilityVerificationPrompt, input, &result)
	if err != nil {
		return nil, err
	}

	result.Provider = provider
	return &result, nil
}

// --- Homebound assessment ---

const homeboundPrompt = `You are a CMS homebound status reviewer for a home health agency.
Given the clinical facts as JSON, determine whether the patient meets the
Medicare homebound definition. The taxing-effort criterion is controlling;
assistive devices, required assistance, and contraindications are
supporting factors. Respond with a single JSON object:
{"determination": "qualified|borderline|not_qualified", "score": 0-100,
"factors": ["..."], "rationale": "..."}`

// AssessHomebound asks the model for a homebound determination and falls
// back to the rule-based scorer when no provider can answer.
func (o *Orchestrator) AssessHomebound(ctx context.Context, input HomeboundInput) (*HomeboundAssessment, error) {
	var result HomeboundAssessment
	_, err := o.invoke(ctx, AgentHomeboundAssessment, homeboundPrompt, input, &result)
	if err == nil {
		switch result.Determination {
		case HomeboundQualified, HomeboundBorderline, HomeboundNotQualified:
			result.Source = "llm"
			return &result, nil
		}
		err = errors.Internal("model returned an unknown determination")
	}

	o.log.Info().Err(err).Msg("falling back to rule-based homebound determination")
	return ScoreHomebound(input), nil
}

// --- Smart scheduling ---

// ClinicianAvailability is one clinician's open capacity
type ClinicianAvailability struct {
	ClinicianID types.ID `json:"clinician_id"`
	Name        string   `json:"name,omitempty"`
	Discipline  string   `json:"discipline,omitempty"`
	OpenSlots   []string `json:"open_slots,omitempty"`
	ServiceArea string   `json:"service_area,omitempty"`
}

// SmartSchedulingInput describes the visits that need placement
type SmartSchedulingInput struct {
	PatientID        types.ID                `json:"patient_id,omitempty"`
	RequiredVisits   []string                `json:"required_visits"`
	PreferredWindows []string                `json:"preferred_windows,omitempty"`
	PatientLocation  string                  `json:"patient_location,omitempty"`
	Availability     []ClinicianAvailability `json:"availability"`
}

// ScheduledSlot is one proposed visit assignment
type ScheduledSlot struct {
	ClinicianID types.ID `json:"clinician_id"`
	VisitType   string   `json:"visit_type"`
	Slot        string   `json:"slot"`
	Reason      string   `json:"reason,omitempty"`
}

// SmartSchedulingResult is the proposed schedule
type SmartSchedulingResult struct {
	Slots     []ScheduledSlot `json:"slots"`
	Unplaced  []string        `json:"unplaced,omitempty"`
	Rationale string          `json:"rationale"`

	Provider string `json:"provider,omitempty"`
}

const smartSchedulingPrompt = `You are a visit scheduler for a home health agency. Given required
visits and clinician availability as JSON, propose an assignment that
respects disciplines, patient preferences, and travel. Respond with a
single JSON object:
{"slots": [{"clinician_id": "...", "visit_type": "...", "slot": "...",
"reason": "..."}], "unplaced": ["..."], "rationale": "..."}`

// SuggestSchedule runs the scheduling agent
func (o *Orchestrator) SuggestSchedule(ctx context.Context, input SmartSchedulingInput) (*SmartSchedulingResult, error) {
	if len(input.RequiredVisits) == 0 {
		return nil, errors.BadRequest("at least one required visit is needed")
	}

	var result SmartSchedulingResult
	provider, err := o.invoke(ctx, AgentSmartScheduling, smartSchedulingPrompt, input, &result)
	if err != nil {
		return nil, err
	}

	result.Provider = provider
	return &result, nil
}

// --- Consent management ---

// ConsentRecord is one consent document on file
type ConsentRecord struct {
	Type      string     `json:"type"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ConsentManagementInput lists the consents on file for an admission
type ConsentManagementInput struct {
	PatientID       types.ID        `json:"patient_id,omitempty"`
	Payer           string          `json:"payer,omitempty"`
	ServicesOrdered []string        `json:"services_ordered,omitempty"`
	OnFile          []ConsentRecord `json:"on_file"`
	AsOf            time.Time       `json:"as_of"`
}

// ConsentManagementResult reports consent gaps
type ConsentManagementResult struct {
	Missing   []string `json:"missing,omitempty"`
	Expiring  []string `json:"expiring,omitempty"`
	Compliant bool     `json:"compliant"`
	Rationale string   `json:"rationale"`

	Provider string `json:"provider,omitempty"`
}

const consentManagementPrompt = `You are a compliance reviewer for a home health agency. Given the
consents on file and the ordered services as JSON, report which required
consents are missing or expiring within thirty days. Respond with a
single JSON object:
{"missing": ["..."], "expiring": ["..."], "compliant": true|false,
"rationale": "..."}`

// ReviewConsents runs the consent gap agent
func (o *Orchestrator) ReviewConsents(ctx context.Context, input ConsentManagementInput) (*ConsentManagementResult, error) {
	if input.AsOf.IsZero() {
		input.AsOf = time.Now().UTC()
	}

	var result ConsentManagementResult
	provider, err := o.invoke(ctx, AgentConsentManagement, consentManagementPrompt, input, &result)
	if err != nil {
		return nil, err
	}

	result.Provider = provider
	return &result, nil
}

// --- Voice assistant ---

// VoiceAssistantInput is one transcribed utterance from a clinician
type VoiceAssistantInput struct {
	Utterance string `json:"utterance"`
	Context   string `json:"context,omitempty"` // screen or workflow the clinician is in
}

// VoiceAssistantResult is the interpreted command
type VoiceAssistantResult struct {
	Intent     string            `json:"intent"`
	Entities   map[string]string `json:"entities,omitempty"`
	Reply      string            `json:"reply"`
	Confidence float64           `json:"confidence"`

	Provider string `json:"provider,omitempty"`
}

const voiceAssistantPrompt = `You are a voice assistant for home health clinicians. Given a
transcribed utterance as JSON, extract the intent and entities and write
a short confirmation reply. Known intents: open_chart, add_note,
list_visits, refill_prescription, check_eligibility, unknown.
Respond with a single JSON object:
{"intent": "...", "entities": {"...": "..."}, "reply": "...",
"confidence": 0.0-1.0}`

// InterpretUtterance runs the voice command agent
func (o *Orchestrator) InterpretUtterance(ctx context.Context, input VoiceAssistantInput) (*VoiceAssistantResult, error) {
	if strings.TrimSpace(input.Utterance) == "" {
		return nil, errors.BadRequest("utterance is required")
	}

	var result VoiceAssistantResult
	provider, err := o.invoke(ctx, AgentVoiceAssistant, voiceAssistantPrompt, input, &result)
	if err != nil {
		return nil, err
	}

	result.Provider = provider
	return &result, nil
}

// --- Chart review ---

// ChartNote is a condensed SOAP note for chart review
type ChartNote struct {
	NoteNumber string    `json:"note_number"`
	VisitType  string    `json:"visit_type"`
	VisitDate  time.Time `json:"visit_date"`
	Assessment string    `json:"assessment"`
	Plan       string    `json:"plan"`
	ICD10Codes []string  `json:"icd10_codes,omitempty"`
	Signed     bool      `json:"signed"`
}

// ChartMedication is a condensed prescription for chart review
type ChartMedication struct {
	Medication string `json:"medication"`
	Sig        string `json:"sig"`
	Status     string `json:"status"`
}

// ChartReviewInput is the assembled chart context
type ChartReviewInput struct {
	PatientID        types.ID          `json:"patient_id"`
	PrimaryDiagnoses []string          `json:"primary_diagnoses,omitempty"`
	Notes            []ChartNote       `json:"notes"`
	Medications      []ChartMedication `json:"medications"`
}

// ChartGap is one documentation or care gap
type ChartGap struct {
	Category    string `json:"category"` // documentation, medication, follow_up
	Severity    string `json:"severity"` // info, warning, critical
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// ChartReviewResult is the chart review panel output
type ChartReviewResult struct {
	Gaps       []ChartGap `json:"gaps"`
	Summary    string     `json:"summary"`
	ReviewedAt time.Time  `json:"reviewed_at"`

	Provider string `json:"provider,omitempty"`
}

const chartReviewPrompt = `You are a clinical quality reviewer. Given a patient's recent notes
and active medications as JSON, identify documentation gaps, medication
concerns, and missed follow-ups. Respond with a single JSON object:
{"gaps": [{"category": "documentation|medication|follow_up",
"severity": "info|warning|critical", "description": "...",
"suggestion": "..."}], "summary": "..."}`

// ReviewChart runs the chart review panel over an assembled chart
func (o *Orchestrator) ReviewChart(ctx context.Context, input ChartReviewInput) (*ChartReviewResult, error) {
	var result ChartReviewResult
	provider, err := o.invoke(ctx, AgentChartReview, chartReviewPrompt, input, &result)
	if err != nil {
		return nil, err
	}

	result.ReviewedAt = time.Now().UTC()
	result.Provider = provider
	return &result, nil
}

// --- Assistant query ---

// AssistantQueryInput is a free-text question with retrieved context
type AssistantQueryInput struct {
	Question string   `json:"question"`
	Context  []string `json:"context,omitempty"`
}

// AssistantQueryResult is the grounded answer
type AssistantQueryResult struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`

	Provider string `json:"provider,omitempty"`
}

const assistantQueryPrompt = `You are a clinical records assistant. Answer the question using only
the provided context passages; say so when the context does not contain
the answer. Respond with a single JSON object:
{"answer": "...", "sources": ["..."], "confidence": 0.0-1.0}`

// Answer runs the retrieval-grounded question agent
func (o *Orchestrator) Answer(ctx context.Context, input AssistantQueryInput) (*AssistantQueryResult, error) {
	if strings.TrimSpace(input.Question) == "" {
		return nil, errors.BadRequest("question is required")
	}

	var result AssistantQueryResult
	provider, err := o.invoke(ctx, AgentAssistantQuery, assistantQueryPrompt, input, &result)
	if err != nil {
		return nil, err
	}

	result.Provider = provider
	return &result, nil
}
