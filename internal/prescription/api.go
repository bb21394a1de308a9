package prescription

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/notification"
	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/metrics"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for prescriptions and pharmacies
type Handler struct {
	repo     *Repository
	bus      *events.Bus
	notifier *notification.Service
}

// NewHandler creates a new prescription handler
func NewHandler(repo *Repository, bus *events.Bus, notifier *notification.Service) *Handler {
	return &Handler{repo: repo, bus: bus, notifier: notifier}
}

// Routes registers the prescription routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPrescriptions)
	r.With(auth.RequireRole(auth.RolePhysician)).Post("/", h.CreatePrescription)

	r.Route("/{prescriptionID}", func(r chi.Router) {
		r.Get("/", h.GetPrescription)
		r.Get("/transmissions", h.ListTransmissions)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
			r.Post("/refill", h.UseRefill)
			r.Post("/transmit", h.TransmitPrescription)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RolePhysician))
			r.Post("/hold", h.HoldPrescription)
			r.Post("/resume", h.ResumePrescription)
			r.Post("/discontinue", h.DiscontinuePrescription)
		})
	})

	return r
}

// PharmacyRoutes registers the pharmacy registry routes
func (h *Handler) PharmacyRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListPharmacies)
	r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleOffice)).Post("/", h.CreatePharmacy)

	r.Route("/{pharmacyID}", func(r chi.Router) {
		r.Get("/", h.GetPharmacy)
		r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleOffice)).Post("/deactivate", h.DeactivatePharmacy)
	})

	return r
}

// --- Pharmacies ---

// ListPharmacies lists registered pharmacies
func (h *Handler) ListPharmacies(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	pharmacies, err := h.repo.ListPharmacies(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": pharmacies})
}

// GetPharmacy gets a pharmacy by ID
func (h *Handler) GetPharmacy(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pharmacyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid pharmacy ID"))
		return
	}

	p, err := h.repo.GetPharmacy(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// CreatePharmacy registers a new pharmacy
func (h *Handler) CreatePharmacy(w http.ResponseWriter, r *http.Request) {
	var req CreatePharmacyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.NCPDPID == "" {
		details["ncpdp_id"] = "ncpdp_id is required"
	}
	if req.Name == "" {
		details["name"] = "name is required"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	p := &Pharmacy{
		ID:         types.NewID(),
		NCPDPID:    req.NCPDPID,
		Name:       req.Name,
		Phone:      req.Phone,
		Fax:        req.Fax,
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Active:     true,
	}

	if err := h.repo.CreatePharmacy(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// DeactivatePharmacy marks a pharmacy inactive
func (h *Handler) DeactivatePharmacy(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pharmacyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid pharmacy ID"))
		return
	}

	if err := h.repo.SetPharmacyActive(r.Context(), id, false); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Prescriptions ---

// ListPrescriptions lists prescriptions matching the query filters
func (h *Handler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	filter := ListPrescriptionsFilter{}

	if p := r.URL.Query().Get("patient"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient ID"))
			return
		}
		filter.PatientID = &id
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := PrescriptionStatus(s)
		filter.Status = &status
	}

	prescriptions, total, err := h.repo.ListPrescriptions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  prescriptions,
		"total": total,
	})
}

// GetPrescription gets a prescription by ID
func (h *Handler) GetPrescription(w http.ResponseWriter, r *http.Request) {
	p, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// CreatePrescription writes a new prescription for a patient
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.PatientID == "" {
		details["patient_id"] = "patient_id is required"
	}
	if req.Medication == "" {
		details["medication"] = "medication is required"
	}
	if req.Sig == "" {
		details["sig"] = "sig is required"
	}
	if req.Quantity <= 0 {
		details["quantity"] = "quantity must be positive"
	}
	if req.Refills < 0 {
		details["refills"] = "refills cannot be negative"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	patientID, err := types.ParseID(req.PatientID)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"patient_id": "must be a valid UUID",
		}))
		return
	}

	var pharmacyID *types.ID
	if req.PharmacyID != "" {
		id, err := types.ParseID(req.PharmacyID)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"pharmacy_id": "must be a valid UUID",
			}))
			return
		}
		pharmacyID = &id
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		d, err := time.Parse("2006-01-02", req.ExpiresAt)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"expires_at": "must be YYYY-MM-DD",
			}))
			return
		}
		expiresAt = &d
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	rxNumber, err := h.repo.NextRxNumber(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	p := &Prescription{
		ID:               types.NewID(),
		RxNumber:         rxNumber,
		PatientID:        patientID,
		PrescriberID:     user.ID,
		PharmacyID:       pharmacyID,
		Medication:       req.Medication,
		NDCCode:          req.NDCCode,
		Sig:              req.Sig,
		Quantity:         req.Quantity,
		RefillsAllowed:   req.Refills,
		RefillsRemaining: req.Refills,
		Status:           StatusActive,
		WrittenAt:        time.Now().Truncate(24 * time.Hour),
		ExpiresAt:        expiresAt,
	}

	if err := h.repo.CreatePrescription(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, p, "prescription.written")
	writeJSON(w, http.StatusCreated, p)
}

// UseRefill consumes one refill of an active prescription
func (h *Handler) UseRefill(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prescription ID"))
		return
	}

	p, err := h.repo.UseRefill(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// HoldPrescription places an active prescription on hold
func (h *Handler) HoldPrescription(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, []PrescriptionStatus{StatusActive}, StatusOnHold, "")
}

// ResumePrescription reactivates a prescription on hold
func (h *Handler) ResumePrescription(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, []PrescriptionStatus{StatusOnHold}, StatusActive, "")
}

// DiscontinuePrescription stops a prescription. A reason is required.
func (h *Handler) DiscontinuePrescription(w http.ResponseWriter, r *http.Request) {
	var req DiscontinueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"reason": "reason is required to discontinue",
		}))
		return
	}

	h.changeStatus(w, r, []PrescriptionStatus{StatusActive, StatusOnHold}, StatusDiscontinued, req.Reason)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, from []PrescriptionStatus, to PrescriptionStatus, reason string) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prescription ID"))
		return
	}

	if err := h.repo.UpdateStatus(r.Context(), id, from, to, reason); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.repo.GetPrescription(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// TransmitPrescription faxes the prescription to its pharmacy and records
// the transmission attempt
func (h *Handler) TransmitPrescription(w http.ResponseWriter, r *http.Request) {
	p, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if p.Status != StatusActive {
		writeError(w, errors.Conflict("only active prescriptions can be transmitted"))
		return
	}
	if p.PharmacyID == nil {
		writeError(w, errors.Conflict("prescription has no pharmacy assigned"))
		return
	}

	pharmacy, err := h.repo.GetPharmacy(r.Context(), *p.PharmacyID)
	if err != nil {
		writeError(w, err)
		return
	}
	if pharmacy.Fax == "" {
		writeError(w, errors.Conflict("pharmacy has no fax number on file"))
		return
	}
	if h.notifier == nil {
		writeError(w, errors.Unavailable("fax delivery is not configured"))
		return
	}

	notif := &notification.Notification{
		Type:          notification.NotificationTypeFax,
		Priority:      notification.PriorityHigh,
		FaxNumber:     pharmacy.Fax,
		RecipientName: pharmacy.Name,
		Subject:       fmt.Sprintf("Prescription %s", p.RxNumber),
		Body:          renderFaxBody(p),
	}

	t := &Transmission{
		ID:             types.NewID(),
		PrescriptionID: p.ID,
		PharmacyID:     pharmacy.ID,
		Method:         "efax",
		Status:         TransmissionPending,
		CreatedAt:      time.Now(),
	}

	if err := h.notifier.Send(r.Context(), notif); err != nil {
		t.Status = TransmissionFailed
		t.ErrorMessage = err.Error()
	} else {
		now := time.Now()
		t.Status = TransmissionSent
		t.SentAt = &now
		t.ProviderRef = notif.ID
	}

	if err := h.repo.CreateTransmission(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordPrescriptionTransmitted(t.Method, string(t.Status))
	h.publish(r, p, "prescription.transmitted")

	status := http.StatusAccepted
	if t.Status == TransmissionFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, t)
}

// ListTransmissions lists transmission attempts for a prescription
func (h *Handler) ListTransmissions(w http.ResponseWriter, r *http.Request) {
	p, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	transmissions, err := h.repo.ListTransmissions(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": transmissions})
}

func (h *Handler) getFromPath(r *http.Request) (*Prescription, error) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		return nil, errors.BadRequest("invalid prescription ID")
	}
	return h.repo.GetPrescription(r.Context(), id)
}

func renderFaxBody(p *Prescription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rx Number: %s\n", p.RxNumber)
	fmt.Fprintf(&b, "Medication: %s\n", p.Medication)
	if p.NDCCode != "" {
		fmt.Fprintf(&b, "NDC: %s\n", p.NDCCode)
	}
	fmt.Fprintf(&b, "Sig: %s\n", p.Sig)
	fmt.Fprintf(&b, "Quantity: %d\n", p.Quantity)
	fmt.Fprintf(&b, "Refills: %d\n", p.RefillsAllowed)
	fmt.Fprintf(&b, "Written: %s\n", p.WrittenAt.Format("2006-01-02"))
	return b.String()
}

func (h *Handler) publish(r *http.Request, p *Prescription, eventType string) {
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

	event := events.NewEvent(eventType, "prescription", map[string]any{
		"prescription_id": p.ID,
		"rx_number":       p.RxNumber,
		"patient_id":      p.PatientID,
		"medication":      p.Medication,
	}).WithActor(actorID, actorType)

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
