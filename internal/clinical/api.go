package clinical

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/metrics"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for clinical documentation
type Handler struct {
	repo     *Repository
	sessions *SessionStore
	bus      *events.Bus
}

// NewHandler creates a new clinical handler
func NewHandler(repo *Repository, sessions *SessionStore, bus *events.Bus) *Handler {
	return &Handler{repo: repo, sessions: sessions, bus: bus}
}

// Routes registers the clinical routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.With(auth.RequireRole(auth.RolePhysician, auth.RoleNurse)).Post("/", h.CreateNote)

		r.Route("/{noteID}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.With(auth.RequireRole(auth.RolePhysician, auth.RoleNurse)).Put("/", h.UpdateNote)
			r.With(auth.RequireRole(auth.RolePhysician, auth.RoleNurse)).Post("/sign", h.SignNote)
			r.With(auth.RequireRole(auth.RolePhysician, auth.RoleNurse)).Post("/amend", h.AmendNote)
		})
	})

	r.Route("/transcriptions", func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
		r.Post("/", h.StartTranscription)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetTranscription)
			r.Post("/segments", h.AppendSegment)
			r.Post("/finalize", h.FinalizeTranscription)
		})
	})

	return r
}

// ListNotes lists notes matching the query filters
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	filter := ListNotesFilter{}

	if p := r.URL.Query().Get("patient_id"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient ID"))
			return
		}
		filter.PatientID = &id
	}

	if a := r.URL.Query().Get("author_id"); a != "" {
		id, err := types.ParseID(a)
		if err != nil {
			writeError(w, errors.BadRequest("invalid author ID"))
			return
		}
		filter.AuthorID = &id
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := NoteStatus(s)
		filter.Status = &status
	}

	if v := r.URL.Query().Get("visit_type"); v != "" {
		visitType := VisitType(v)
		filter.VisitType = &visitType
	}

	notes, total, err := h.repo.ListNotes(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  notes,
		"total": total,
	})
}

// GetNote gets a note by ID with its addenda
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid note ID"))
		return
	}

	note, err := h.repo.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

// CreateNote creates a new draft SOAP note
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.PatientID.IsZero() || req.VisitType == "" || req.VisitDate == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"patient_id": "patient_id is required",
			"visit_type": "visit_type is required",
			"visit_date": "visit_date is required",
		}))
		return
	}

	visitDate, err := time.Parse("2006-01-02", req.VisitDate)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"visit_date": "must be YYYY-MM-DD",
		}))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	noteNumber, err := h.repo.NextNoteNumber(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	note := &SOAPNote{
		ID:         types.NewID(),
		NoteNumber: noteNumber,
		PatientID:  req.PatientID,
		AuthorID:   user.ID,
		VisitType:  req.VisitType,
		VisitDate:  visitDate,
		Status:     NoteStatusDraft,
		Subjective: req.Subjective,
		Objective:  req.Objective,
		Assessment: req.Assessment,
		Plan:       req.Plan,
		Vitals:     req.Vitals,
		ICD10Codes: req.ICD10Codes,
	}

	if err := h.repo.CreateNote(r.Context(), note); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "note.created", note)
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote updates an unsigned note
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid note ID"))
		return
	}

	note, err := h.repo.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if !note.Editable() {
		writeError(w, errors.Conflict("note is signed and cannot be edited"))
		return
	}

	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Subjective != nil {
		note.Subjective = *req.Subjective
	}
	if req.Objective != nil {
		note.Objective = *req.Objective
	}
	if req.Assessment != nil {
		note.Assessment = *req.Assessment
	}
	if req.Plan != nil {
		note.Plan = *req.Plan
	}
	if req.Vitals != nil {
		note.Vitals = *req.Vitals
	}
	if req.ICD10Codes != nil {
		note.ICD10Codes = *req.ICD10Codes
	}
	if req.Status != nil {
		if *req.Status != NoteStatusDraft && *req.Status != NoteStatusPendingReview {
			writeError(w, errors.BadRequest("status can only move between draft and pending_review here"))
			return
		}
		note.Status = *req.Status
	}

	if err := h.repo.UpdateNote(r.Context(), note); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "note.updated", note)
	writeJSON(w, http.StatusOK, note)
}

// SignNote signs a note, locking its content
func (h *Handler) SignNote(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid note ID"))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	if err := h.repo.SignNote(r.Context(), id, user.ID); err != nil {
		writeError(w, err)
		return
	}

	note, err := h.repo.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordNoteSigned(string(note.VisitType))
	h.publish(r, "note.signed", note)
	writeJSON(w, http.StatusOK, note)
}

// AmendNote appends an addendum to a signed note
func (h *Handler) AmendNote(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid note ID"))
		return
	}

	var req AmendNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if !ValidSection(req.Section) {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"section": "section must be subjective, objective, assessment or plan",
		}))
		return
	}
	if req.Content == "" || req.Reason == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"content": "content is required",
			"reason":  "reason is required",
		}))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	addendum := &Addendum{
		ID:       types.NewID(),
		NoteID:   id,
		AuthorID: user.ID,
		Section:  req.Section,
		Content:  req.Content,
		Reason:   req.Reason,
	}

	if err := h.repo.CreateAddendum(r.Context(), addendum); err != nil {
		writeError(w, err)
		return
	}

	note, err := h.repo.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "note.amended", note)
	writeJSON(w, http.StatusCreated, note)
}

// --- Transcription Handlers ---

// startTranscriptionRequest begins a dictation session
type startTranscriptionRequest struct {
	PatientID types.ID  `json:"patient_id"`
	VisitType VisitType `json:"visit_type"`
}

// appendSegmentRequest adds one transcript segment
type appendSegmentRequest struct {
	Segment string `json:"segment"`
}

// StartTranscription begins a new dictation session
func (h *Handler) StartTranscription(w http.ResponseWriter, r *http.Request) {
	var req startTranscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.PatientID.IsZero() {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"patient_id": "patient_id is required",
		}))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	session := h.sessions.Start(req.PatientID, user.ID, req.VisitType)

	writeJSON(w, http.StatusCreated, session)
}

// GetTranscription returns an in-flight session
func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid session ID"))
		return
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// AppendSegment adds a transcript segment to a session
func (h *Handler) AppendSegment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid session ID"))
		return
	}

	var req appendSegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Segment == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"segment": "segment is required",
		}))
		return
	}

	session, err := h.sessions.Append(id, req.Segment)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// FinalizeTranscription turns a session into a draft SOAP note. The
// raw transcript lands in the subjective section for the clinician to
// rework before signing.
func (h *Handler) FinalizeTranscription(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid session ID"))
		return
	}

	session, err := h.sessions.Remove(id)
	if err != nil {
		writeError(w, err)
		return
	}

	noteNumber, err := h.repo.NextNoteNumber(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	visitType := session.VisitType
	if visitType == "" {
		visitType = VisitSkilledNursing
	}

	note := &SOAPNote{
		ID:         types.NewID(),
		NoteNumber: noteNumber,
		PatientID:  session.PatientID,
		AuthorID:   session.AuthorID,
		VisitType:  visitType,
		VisitDate:  session.StartedAt.Truncate(24 * time.Hour),
		Status:     NoteStatusDraft,
		Subjective: session.Transcript(),
	}

	if err := h.repo.CreateNote(r.Context(), note); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, "note.created", note)
	writeJSON(w, http.StatusCreated, note)
}

func (h *Handler) publish(r *http.Request, eventType string, note *SOAPNote) {
	if h.bus == nil {
		return
	}

	user := auth.GetUser(r.Context())
	actorID := types.ID("")
	if user != nil {
		actorID = user.ID
	}

	event := events.NewEvent(eventType, "clinical", map[string]any{
		"note_id":     note.ID,
		"note_number": note.NoteNumber,
		"patient_id":  note.PatientID,
		"visit_type":  note.VisitType,
	}).WithActor(actorID, "clinician")

	h.bus.Publish(r.Context(), event)
}

// --- Helpers ---

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
