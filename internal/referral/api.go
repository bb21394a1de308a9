package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/notification"
	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/metrics"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for referral intake
type Handler struct {
	repo     *Repository
	bus      *events.Bus
	notifier *notification.Service
}

// NewHandler creates a new referral handler
func NewHandler(repo *Repository, bus *events.Bus, notifier *notification.Service) *Handler {
	return &Handler{repo: repo, bus: bus, notifier: notifier}
}

// Routes registers the referral routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListReferrals)
	r.With(auth.RequireRole(auth.RoleAdmin, auth.RoleOffice)).Post("/", h.CreateReferral)

	r.Route("/{referralID}", func(r chi.Router) {
		r.Get("/", h.GetReferral)
		r.Put("/", h.UpdateReferral)
		r.Get("/eligibility", h.ListEligibility)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleOffice, auth.RoleBilling))
			r.Post("/eligibility", h.RecordEligibility)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin, auth.RoleOffice, auth.RolePhysician))
			r.Post("/review", h.StartReview)
			r.Post("/decide", h.DecideReferral)
			r.Post("/admit", h.AdmitReferral)
		})
	})

	return r
}

// ListReferrals lists referrals matching the query filters
func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	filter := ListReferralsFilter{
		Source: r.URL.Query().Get("source"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := ReferralStatus(s)
		filter.Status = &status
	}
	if u := r.URL.Query().Get("urgency"); u != "" {
		urgency := Urgency(u)
		filter.Urgency = &urgency
	}
	if p := r.URL.Query().Get("patient"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient ID"))
			return
		}
		filter.PatientID = &id
	}

	referrals, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  referrals,
		"total": total,
	})
}

// GetReferral gets a referral by ID
func (h *Handler) GetReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ref)
}

// CreateReferral receives a new referral
func (h *Handler) CreateReferral(w http.ResponseWriter, r *http.Request) {
	var req CreateReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.PatientID == "" {
		details["patient_id"] = "patient_id is required"
	}
	if req.Source == "" {
		details["source"] = "source is required"
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

	urgency := req.Urgency
	if urgency == "" {
		urgency = UrgencyRoutine
	}
	if !ValidUrgency(urgency) {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"urgency": fmt.Sprintf("unknown urgency %q", urgency),
		}))
		return
	}

	var f2f *time.Time
	if req.FaceToFaceDate != "" {
		d, err := time.Parse("2006-01-02", req.FaceToFaceDate)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"face_to_face_date": "must be YYYY-MM-DD",
			}))
			return
		}
		f2f = &d
	}

	number, err := h.repo.NextReferralNumber(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ref := &Referral{
		ID:                types.NewID(),
		ReferralNumber:    number,
		PatientID:         patientID,
		Source:            req.Source,
		SourceContact:     req.SourceContact,
		Urgency:           urgency,
		Status:            StatusReceived,
		RequestedServices: req.RequestedServices,
		DiagnosisCode:     req.DiagnosisCode,
		FaceToFaceDate:    f2f,
		ReceivedAt:        time.Now(),
	}
	if ref.RequestedServices == nil {
		ref.RequestedServices = []string{}
	}

	if err := h.repo.Create(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordReferralReceived(ref.Source, string(ref.Urgency))
	h.publish(r, ref, "referral.received")
	h.sendIntakeConfirmation(ref)

	writeJSON(w, http.StatusCreated, ref)
}

// UpdateReferral updates referral details
func (h *Handler) UpdateReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if ref.Status.Terminal() {
		writeError(w, errors.Conflict("referral has been finalized"))
		return
	}

	var req UpdateReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.SourceContact != nil {
		ref.SourceContact = *req.SourceContact
	}
	if req.Urgency != nil {
		if !ValidUrgency(*req.Urgency) {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"urgency": fmt.Sprintf("unknown urgency %q", *req.Urgency),
			}))
			return
		}
		ref.Urgency = *req.Urgency
	}
	if req.RequestedServices != nil {
		ref.RequestedServices = *req.RequestedServices
	}
	if req.DiagnosisCode != nil {
		ref.DiagnosisCode = *req.DiagnosisCode
	}
	if req.FaceToFaceDate != nil {
		if *req.FaceToFaceDate == "" {
			ref.FaceToFaceDate = nil
		} else {
			d, err := time.Parse("2006-01-02", *req.FaceToFaceDate)
			if err != nil {
				writeError(w, errors.Validation("validation failed", map[string]string{
					"face_to_face_date": "must be YYYY-MM-DD",
				}))
				return
			}
			ref.FaceToFaceDate = &d
		}
	}
	if req.AIRecommendation != nil {
		ref.AIRecommendation = req.AIRecommendation
	}

	if err := h.repo.Update(r.Context(), ref); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ref)
}

// StartReview moves a received referral into review
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.transition(r, ref, StatusReviewing, ""); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ref)
}

// RecordEligibility records a payer coverage check and moves the referral
// into eligibility_pending when it is still under review
func (h *Handler) RecordEligibility(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req RecordEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.Payer == "" {
		details["payer"] = "payer is required"
	}
	switch req.Result {
	case EligibilityEligible, EligibilityIneligible, EligibilityUnknown:
	default:
		details["result"] = "must be eligible, ineligible or unknown"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	check := &EligibilityCheck{
		ID:          types.NewID(),
		ReferralID:  ref.ID,
		Payer:       req.Payer,
		Result:      req.Result,
		CopayCents:  req.CopayCents,
		RawResponse: req.RawResponse,
		CheckedAt:   time.Now(),
	}

	if req.CoverageStart != "" {
		d, err := time.Parse("2006-01-02", req.CoverageStart)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"coverage_start": "must be YYYY-MM-DD",
			}))
			return
		}
		check.CoverageStart = &d
	}
	if req.CoverageEnd != "" {
		d, err := time.Parse("2006-01-02", req.CoverageEnd)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"coverage_end": "must be YYYY-MM-DD",
			}))
			return
		}
		check.CoverageEnd = &d
	}

	if user := auth.GetUser(r.Context()); user != nil {
		check.CheckedBy = &user.ID
	}

	if err := h.repo.RecordEligibility(r.Context(), check); err != nil {
		writeError(w, err)
		return
	}

	if ref.Status == StatusReviewing {
		if err := h.transition(r, ref, StatusEligibilityPending, ""); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, check)
}

// ListEligibility lists the eligibility checks for a referral
func (h *Handler) ListEligibility(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	checks, err := h.repo.ListEligibility(r.Context(), ref.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": checks})
}

// DecideReferral accepts or declines a referral. Acceptance requires a
// completed eligibility check on file; declining does not.
func (h *Handler) DecideReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req DecideReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	switch req.Decision {
	case "accept":
		check, err := h.repo.LatestEligibility(r.Context(), ref.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if check == nil {
			writeError(w, errors.Conflict("cannot accept a referral without a completed eligibility check"))
			return
		}
		if err := h.transition(r, ref, StatusAccepted, ""); err != nil {
			writeError(w, err)
			return
		}
	case "decline":
		if req.DeclineReason == "" {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"decline_reason": "decline_reason is required",
			}))
			return
		}
		if err := h.transition(r, ref, StatusDeclined, req.DeclineReason); err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, errors.Validation("validation failed", map[string]string{
			"decision": "must be accept or decline",
		}))
		return
	}

	h.publish(r, ref, "referral.decided")
	writeJSON(w, http.StatusOK, ref)
}

// AdmitReferral marks an accepted referral as admitted
func (h *Handler) AdmitReferral(w http.ResponseWriter, r *http.Request) {
	ref, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.transition(r, ref, StatusAdmitted, ""); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ref)
}

func (h *Handler) getFromPath(r *http.Request) (*Referral, error) {
	id, err := types.ParseID(chi.URLParam(r, "referralID"))
	if err != nil {
		return nil, errors.BadRequest("invalid referral ID")
	}
	return h.repo.GetByID(r.Context(), id)
}

// transition validates and applies a status change, mutating ref on success
func (h *Handler) transition(r *http.Request, ref *Referral, to ReferralStatus, declineReason string) error {
	from := ref.Status
	if !CanTransition(from, to) {
		return errors.Conflict(fmt.Sprintf("cannot move referral from %s to %s", from, to))
	}

	if err := h.repo.UpdateStatus(r.Context(), ref.ID, from, to, declineReason); err != nil {
		return err
	}

	ref.Status = to
	if declineReason != "" {
		ref.DeclineReason = declineReason
	}
	if to == StatusAccepted || to == StatusDeclined {
		now := time.Now()
		ref.DecidedAt = &now
	}

	metrics.RecordReferralStatusChange(string(from), string(to))
	return nil
}

func (h *Handler) publish(r *http.Request, ref *Referral, eventType string) {
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

	event := events.NewEvent(eventType, "referral", map[string]any{
		"referral_id":     ref.ID,
		"referral_number": ref.ReferralNumber,
		"patient_id":      ref.PatientID,
		"status":          ref.Status,
		"urgency":         ref.Urgency,
	}).WithActor(actorID, actorType)

	h.bus.Publish(r.Context(), event)
}

// sendIntakeConfirmation emails the referring contact that the referral was
// received. Best effort, the referral is already persisted.
func (h *Handler) sendIntakeConfirmation(ref *Referral) {
	if h.notifier == nil || ref.SourceContact == "" {
		return
	}

	h.notifier.Send(context.Background(), &notification.Notification{
		Type:     notification.NotificationTypeEmail,
		Priority: notification.PriorityNormal,
		Email:    ref.SourceContact,
		Subject:  fmt.Sprintf("Referral %s received", ref.ReferralNumber),
		Body: fmt.Sprintf("Your referral %s has been received and is queued for review. Urgency: %s.",
			ref.ReferralNumber, ref.Urgency),
	})
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
