package ai

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/clinical"
	"github.com/harborhealth/platform/internal/patient"
	"github.com/harborhealth/platform/internal/prescription"
	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/types"
)

// PatientDirectory is the slice of the patient repository the handler
// needs: chart context and homebound snapshot updates.
type PatientDirectory interface {
	GetByID(ctx context.Context, id types.ID) (*patient.Patient, error)
	UpdateHomeboundStatus(ctx context.Context, id types.ID, status patient.HomeboundStatus) error
}

// NoteReader lists SOAP notes for chart assembly
type NoteReader interface {
	ListNotes(ctx context.Context, filter clinical.ListNotesFilter) ([]*clinical.SOAPNote, int, error)
}

// PrescriptionReader lists prescriptions for chart assembly
type PrescriptionReader interface {
	ListPrescriptions(ctx context.Context, filter prescription.ListPrescriptionsFilter) ([]*prescription.Prescription, int, error)
}

// Handler provides HTTP handlers for decision support
type Handler struct {
	orchestrator  *Orchestrator
	patients      PatientDirectory
	notes         NoteReader
	prescriptions PrescriptionReader
	bus           *events.Bus
}

// NewHandler creates a decision-support handler. The readers may be nil;
// the endpoints that need them report unavailable.
func NewHandler(orchestrator *Orchestrator, patients PatientDirectory, notes NoteReader, prescriptions PrescriptionReader, bus *events.Bus) *Handler {
	return &Handler{
		orchestrator:  orchestrator,
		patients:      patients,
		notes:         notes,
		prescriptions: prescriptions,
		bus:           bus,
	}
}

// Routes returns the router for decision-support endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleOffice, auth.RoleBilling))

	r.Get("/health", h.Health)
	r.Post("/referral-intelligence", h.AssessReferral)
	r.Post("/eligibility", h.VerifyEligibility)
	r.Post("/homebound", h.AssessHomebound)
	r.Post("/scheduling", h.SuggestSchedule)
	r.Post("/consents", h.ReviewConsents)
	r.Post("/voice", h.InterpretUtterance)
	r.Post("/chart-review", h.ReviewChart)
	r.Post("/query", h.Query)

	return r
}

// Health reports provider availability
// GET /api/v1/ai/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":     h.orchestrator.Ready(),
		"providers": h.orchestrator.Providers(),
	})
}

// AssessReferral handles POST /api/v1/ai/referral-intelligence
func (h *Handler) AssessReferral(w http.ResponseWriter, r *http.Request) {
	var input ReferralIntelligenceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.orchestrator.AssessReferral(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentReferralIntelligence, result.Provider, nil)
	writeJSON(w, http.StatusOK, result)
}

// VerifyEligibility handles POST /api/v1/ai/eligibility
func (h *Handler) VerifyEligibility(w http.ResponseWriter, r *http.Request) {
	var input EligibilityVerificationInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.orchestrator.VerifyEligibility(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentEligibilityVerification, result.Provider, nil)
	writeJSON(w, http.StatusOK, result)
}

// AssessHomebound handles POST /api/v1/ai/homebound. The determination
// is written back to the patient record when a patient ID is supplied.
func (h *Handler) AssessHomebound(w http.ResponseWriter, r *http.Request) {
	var input HomeboundInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	switch input.AbsenceFrequency {
	case AbsencesNone, AbsencesInfrequent, AbsencesFrequent:
	default:
		writeError(w, errors.Validation("invalid absence_frequency", map[string]string{
			"absence_frequency": "must be none, infrequent, or frequent",
		}))
		return
	}

	result, err := h.orchestrator.AssessHomebound(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	if input.PatientID != "" && h.patients != nil {
		snapshot := patient.HomeboundStatus(result.Determination)
		if err := h.patients.UpdateHomeboundStatus(r.Context(), input.PatientID, snapshot); err != nil {
			writeError(w, err)
			return
		}
	}

	h.publish(r, AgentHomeboundAssessment, result.Source, map[string]any{
		"patient_id":    input.PatientID,
		"determination": result.Determination,
	})
	writeJSON(w, http.StatusOK, result)
}

// SuggestSchedule handles POST /api/v1/ai/scheduling
func (h *Handler) SuggestSchedule(w http.ResponseWriter, r *http.Request) {
	var input SmartSchedulingInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.orchestrator.SuggestSchedule(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentSmartScheduling, result.Provider, nil)
	writeJSON(w, http.StatusOK, result)
}

// ReviewConsents handles POST /api/v1/ai/consents
func (h *Handler) ReviewConsents(w http.ResponseWriter, r *http.Request) {
	var input ConsentManagementInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.orchestrator.ReviewConsents(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentConsentManagement, result.Provider, nil)
	writeJSON(w, http.StatusOK, result)
}

// InterpretUtterance handles POST /api/v1/ai/voice
func (h *Handler) InterpretUtterance(w http.ResponseWriter, r *http.Request) {
	var input VoiceAssistantInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	result, err := h.orchestrator.InterpretUtterance(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentVoiceAssistant, result.Provider, nil)
	writeJSON(w, http.StatusOK, result)
}

type chartReviewRequest struct {
	PatientID types.ID `json:"patient_id"`
}

// ReviewChart handles POST /api/v1/ai/chart-review. The chart context
// is assembled server side from the patient's notes and prescriptions.
func (h *Handler) ReviewChart(w http.ResponseWriter, r *http.Request) {
	var req chartReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.PatientID == "" {
		writeError(w, errors.BadRequest("patient_id is required"))
		return
	}

	input, err := h.assembleChart(r.Context(), req.PatientID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.orchestrator.ReviewChart(r.Context(), *input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentChartReview, result.Provider, map[string]any{"patient_id": req.PatientID})
	writeJSON(w, http.StatusOK, result)
}

type queryRequest struct {
	PatientID types.ID `json:"patient_id,omitempty"`
	Question  string   `json:"question"`
}

// Query handles POST /api/v1/ai/query. When a patient ID is supplied the
// question is answered against that patient's chart context.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	input := AssistantQueryInput{Question: req.Question}
	if req.PatientID != "" {
		passages, err := h.retrieveContext(r.Context(), req.PatientID)
		if err != nil {
			writeError(w, err)
			return
		}
		input.Context = passages
	}

	result, err := h.orchestrator.Answer(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, AgentAssistantQuery, result.Provider, map[string]any{"patient_id": req.PatientID})
	writeJSON(w, http.StatusOK, result)
}

// assembleChart gathers the most recent notes and the patient's
// prescriptions into a chart review input
func (h *Handler) assembleChart(ctx context.Context, patientID types.ID) (*ChartReviewInput, error) {
	if h.patients == nil || h.notes == nil || h.prescriptions == nil {
		return nil, errors.Unavailable("chart review is not configured")
	}

	p, err := h.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	input := ChartReviewInput{PatientID: patientID}
	if p.PrimaryDiagnosis != "" {
		input.PrimaryDiagnoses = append(input.PrimaryDiagnoses, p.PrimaryDiagnosis)
	}
	input.PrimaryDiagnoses = append(input.PrimaryDiagnoses, p.SecondaryDiagnoses...)

	notes, _, err := h.notes.ListNotes(ctx, clinical.ListNotesFilter{PatientID: &patientID, Limit: 20})
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		input.Notes = append(input.Notes, ChartNote{
			NoteNumber: n.NoteNumber,
			VisitType:  string(n.VisitType),
			VisitDate:  n.VisitDate,
			Assessment: n.Assessment,
			Plan:       n.Plan,
			ICD10Codes: n.ICD10Codes,
			Signed:     n.Status == clinical.NoteStatusSigned || n.Status == clinical.NoteStatusAmended,
		})
	}

	rxs, _, err := h.prescriptions.ListPrescriptions(ctx, prescription.ListPrescriptionsFilter{PatientID: &patientID, Limit: 50})
	if err != nil {
		return nil, err
	}
	for _, rx := range rxs {
		input.Medications = append(input.Medications, ChartMedication{
			Medication: rx.Medication,
			Sig:        rx.Sig,
			Status:     string(rx.Status),
		})
	}

	return &input, nil
}

// retrieveContext builds the retrieval passages for a patient question
func (h *Handler) retrieveContext(ctx context.Context, patientID types.ID) ([]string, error) {
	chart, err := h.assembleChart(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var passages []string
	for _, n := range chart.Notes {
		passages = append(passages, "note "+n.NoteNumber+" ("+n.VisitType+", "+n.VisitDate.Format("2006-01-02")+"): assessment: "+n.Assessment+" plan: "+n.Plan)
	}
	for _, m := range chart.Medications {
		passages = append(passages, "medication: "+m.Medication+" ("+m.Status+") sig: "+m.Sig)
	}
	return passages, nil
}

func (h *Handler) publish(r *http.Request, agent, provider string, data map[string]any) {
	if h.bus == nil {
		return
	}

	user := auth.GetUser(r.Context())
	actorID := types.ID("")
	actorType := "system"
	if user != nil {
		actorID = user.ID
		actorType = "office"
		if auth.IsClinician(user.Role) {
			actorType = "clinician"
		}
	}

	payload := map[string]any{
		"agent":    agent,
		"provider": provider,
	}
	for k, v := range data {
		payload[k] = v
	}

	event := events.NewEvent("ai.invoked", "ai", payload).WithActor(actorID, actorType)
	h.bus.Publish(r.Context(), event)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
