package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/recycle"
	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Store is the patient persistence surface the handlers need.
type Store interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id types.ID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn types.MRN) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id types.ID) error
	Restore(ctx context.Context, id types.ID) error
	List(ctx context.Context, filter ListPatientsFilter) ([]*Patient, int, error)
}

// Bin is the slice of the recycle service the delete path uses.
type Bin interface {
	Register(entityType recycle.EntityType, restorer recycle.Restorer)
	Stash(ctx context.Context, entityType recycle.EntityType, entityID types.ID, label string, payload any, deletedBy types.ID) (*recycle.Item, error)
	Discard(ctx context.Context, itemID types.ID) error
}

// Handler provides HTTP handlers for the patient module
type Handler struct {
	repo Store
	bin  Bin
	bus  *events.Bus
}

// NewHandler creates a new patient handler. The recycle service receives
// deleted records; restoration is registered here so the bin can undelete.
func NewHandler(repo Store, bin Bin, bus *events.Bus) *Handler {
	h := &Handler{repo: repo, bin: bin, bus: bus}

	if bin != nil {
		bin.Register(recycle.EntityPatient, repo.Restore)
	}

	return h
}

// Routes registers the patient routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPatients)
	r.Post("/", h.CreatePatient)
	r.Get("/mrn/{mrn}", h.GetPatientByMRN)

	r.Route("/{patientID}", func(r chi.Router) {
		r.Get("/", h.GetPatient)
		r.Put("/", h.UpdatePatient)
		r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleOffice)).Delete("/", h.DeletePatient)
	})

	return r
}

// ListPatients lists patients matching the query filters
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	filter := ListPatientsFilter{
		Search: r.URL.Query().Get("search"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := PatientStatus(s)
		filter.Status = &status
	}

	if c := r.URL.Query().Get("clinician"); c != "" {
		id, err := types.ParseID(c)
		if err != nil {
			writeError(w, errors.BadRequest("invalid clinician ID"))
			return
		}
		filter.AssignedClinician = &id
	}

	patients, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  patients,
		"total": total,
	})
}

// GetPatient gets a patient by ID
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishAccess(r, p, "patient.viewed")
	writeJSON(w, http.StatusOK, p)
}

// GetPatientByMRN gets a patient by medical record number
func (h *Handler) GetPatientByMRN(w http.ResponseWriter, r *http.Request) {
	mrn, err := types.ParseMRN(chi.URLParam(r, "mrn"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid MRN"))
		return
	}

	p, err := h.repo.GetByMRN(r.Context(), mrn)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishAccess(r, p, "patient.viewed")
	writeJSON(w, http.StatusOK, p)
}

// CreatePatient creates a new patient record
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.FirstName == "" {
		details["first_name"] = "first_name is required"
	}
	if req.LastName == "" {
		details["last_name"] = "last_name is required"
	}
	if req.DateOfBirth == "" {
		details["date_of_birth"] = "date_of_birth is required"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	mrn, err := types.ParseMRN(req.MRN)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"mrn": err.Error(),
		}))
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"date_of_birth": "must be YYYY-MM-DD",
		}))
		return
	}

	gender := req.Gender
	if gender == "" {
		gender = GenderUnknown
	}

	p := &Patient{
		ID:                 types.NewID(),
		MRN:                mrn,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		MiddleName:         req.MiddleName,
		DateOfBirth:        dob,
		Gender:             gender,
		SSNLast4:           req.SSNLast4,
		Address:            req.Address,
		Contact:            req.Contact,
		Payer:              req.Payer,
		MedicareID:         req.MedicareID,
		MedicaidID:         req.MedicaidID,
		PrimaryDiagnosis:   req.PrimaryDiagnosis,
		SecondaryDiagnoses: req.SecondaryDiagnoses,
		HomeboundStatus:    HomeboundUnassessed,
		AssignedClinician:  req.AssignedClinician,
		Status:             PatientStatusActive,
	}

	if err := h.repo.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publishAccess(r, p, "patient.created")
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePatient updates a patient record
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.FirstName != nil {
		p.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		p.LastName = *req.LastName
	}
	if req.MiddleName != nil {
		p.MiddleName = *req.MiddleName
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.Contact != nil {
		p.Contact = *req.Contact
	}
	if req.Payer != nil {
		p.Payer = *req.Payer
	}
	if req.MedicareID != nil {
		p.MedicareID = *req.MedicareID
	}
	if req.MedicaidID != nil {
		p.MedicaidID = *req.MedicaidID
	}
	if req.PrimaryDiagnosis != nil {
		p.PrimaryDiagnosis = *req.PrimaryDiagnosis
	}
	if req.SecondaryDiagnoses != nil {
		p.SecondaryDiagnoses = *req.SecondaryDiagnoses
	}
	if req.HomeboundStatus != nil {
		p.HomeboundStatus = *req.HomeboundStatus
	}
	if req.AssignedClinician != nil {
		p.AssignedClinician = req.AssignedClinician
	}
	if req.Status != nil {
		p.Status = *req.Status
	}

	if err := h.repo.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publishAccess(r, p, "patient.updated")
	writeJSON(w, http.StatusOK, p)
}

// DeletePatient soft-deletes a patient into the recycle bin
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "patientID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid patient ID"))
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	user := auth.GetUser(r.Context())
	deletedBy := types.ID("")
	if user != nil {
		deletedBy = user.ID
	}

	// Stash before flipping deleted_at so the patient is never hidden
	// without a recycle item to restore from. A stash left behind by a
	// failed delete is backed out below.
	var item *recycle.Item
	if h.bin != nil {
		item, err = h.bin.Stash(r.Context(), recycle.EntityPatient, id, p.MRN.Masked(), p, deletedBy)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	if err := h.repo.SoftDelete(r.Context(), id); err != nil {
		if item != nil {
			h.bin.Discard(r.Context(), item.ID)
		}
		writeError(w, err)
		return
	}

	h.publishAccess(r, p, "patient.deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publishAccess(r *http.Request, p *Patient, eventType string) {
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

	event := events.NewEvent(eventType, "patient", map[string]any{
		"patient_id": p.ID,
		"mrn":        p.MRN.Masked(),
	}).WithActor(actorID, actorType)

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
