package claims

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/metrics"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for claims, denials and appeals
type Handler struct {
	repo *Repository
	bus  *events.Bus
}

// NewHandler creates a new claims handler
func NewHandler(repo *Repository, bus *events.Bus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// Routes registers the billing routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	billing := auth.RequireRole(auth.RoleAdmin, auth.RoleBilling)

	r.Get("/", h.ListClaims)
	r.With(billing).Post("/", h.CreateClaim)

	r.Route("/{claimID}", func(r chi.Router) {
		r.Get("/", h.GetClaim)
		r.Get("/denials", h.ListDenials)

		r.Group(func(r chi.Router) {
			r.Use(billing)
			r.Put("/", h.UpdateClaim)
			r.Post("/submit", h.SubmitClaim)
			r.Post("/accept", h.AcceptClaim)
			r.Post("/pay", h.PayClaim)
			r.Post("/denials", h.RecordDenial)
		})
	})

	r.Route("/denials/{denialID}", func(r chi.Router) {
		r.Get("/appeals", h.ListAppeals)
		r.With(billing).Post("/appeals", h.FileAppeal)
	})

	r.Route("/appeals/{appealID}", func(r chi.Router) {
		r.Get("/", h.GetAppeal)
		r.With(billing).Post("/decide", h.DecideAppeal)
	})

	return r
}

// ListClaims lists claims matching the query filters
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	filter := ListClaimsFilter{
		Payer: r.URL.Query().Get("payer"),
	}

	if p := r.URL.Query().Get("patient"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient ID"))
			return
		}
		filter.PatientID = &id
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := ClaimStatus(s)
		filter.Status = &status
	}

	claims, total, err := h.repo.ListClaims(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  claims,
		"total": total,
	})
}

// GetClaim gets a claim by ID
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// CreateClaim drafts a new claim
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.PatientID == "" {
		details["patient_id"] = "patient_id is required"
	}
	if req.Payer == "" {
		details["payer"] = "payer is required"
	}
	if len(req.LineItems) == 0 {
		details["line_items"] = "at least one line item is required"
	}
	for i, li := range req.LineItems {
		if li.Code == "" {
			details[fmt.Sprintf("line_items[%d].code", i)] = "code is required"
		}
		if li.AmountCents <= 0 {
			details[fmt.Sprintf("line_items[%d].amount_cents", i)] = "amount must be positive"
		}
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

	var referralID *types.ID
	if req.ReferralID != "" {
		id, err := types.ParseID(req.ReferralID)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"referral_id": "must be a valid UUID",
			}))
			return
		}
		referralID = &id
	}

	start, err := time.Parse("2006-01-02", req.ServiceStart)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"service_start": "must be YYYY-MM-DD",
		}))
		return
	}
	end, err := time.Parse("2006-01-02", req.ServiceEnd)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"service_end": "must be YYYY-MM-DD",
		}))
		return
	}
	if end.Before(start) {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"service_end": "service_end cannot precede service_start",
		}))
		return
	}

	number, err := h.repo.NextClaimNumber(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	c := &Claim{
		ID:           types.NewID(),
		ClaimNumber:  number,
		PatientID:    patientID,
		ReferralID:   referralID,
		Payer:        req.Payer,
		ServiceStart: start,
		ServiceEnd:   end,
		LineItems:    req.LineItems,
		Status:       StatusDraft,
	}
	c.AmountCents = c.TotalLineItems()

	if err := h.repo.CreateClaim(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// UpdateClaim edits a draft claim
func (h *Handler) UpdateClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if c.Status != StatusDraft {
		writeError(w, errors.Conflict("only draft claims can be edited"))
		return
	}

	var req UpdateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Payer != nil {
		c.Payer = *req.Payer
	}
	if req.ServiceStart != nil {
		d, err := time.Parse("2006-01-02", *req.ServiceStart)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"service_start": "must be YYYY-MM-DD",
			}))
			return
		}
		c.ServiceStart = d
	}
	if req.ServiceEnd != nil {
		d, err := time.Parse("2006-01-02", *req.ServiceEnd)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"service_end": "must be YYYY-MM-DD",
			}))
			return
		}
		c.ServiceEnd = d
	}
	if req.LineItems != nil {
		c.LineItems = *req.LineItems
		c.AmountCents = c.TotalLineItems()
	}

	if c.ServiceEnd.Before(c.ServiceStart) {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"service_end": "service_end cannot precede service_start",
		}))
		return
	}

	if err := h.repo.UpdateClaim(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// SubmitClaim sends a draft claim to the payer
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.transition(r, c, StatusSubmitted); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordClaimSubmitted(c.Payer)
	h.publish(r, c, "claim.submitted")
	writeJSON(w, http.StatusOK, c)
}

// AcceptClaim records payer acceptance of a submitted claim
func (h *Handler) AcceptClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.transition(r, c, StatusAccepted); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// PayClaim records payment of an accepted claim
func (h *Handler) PayClaim(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.transition(r, c, StatusPaid); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// RecordDenial records a payer denial against a submitted claim
func (h *Handler) RecordDenial(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CreateDenialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.ReasonCode == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"reason_code": "reason_code is required",
		}))
		return
	}

	deniedAt := time.Now()
	if req.DeniedAt != "" {
		d, err := time.Parse("2006-01-02", req.DeniedAt)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"denied_at": "must be YYYY-MM-DD",
			}))
			return
		}
		deniedAt = d
	}

	amount := req.AmountCents
	if amount == 0 {
		amount = c.AmountCents
	}

	d := &Denial{
		ID:          types.NewID(),
		ClaimID:     c.ID,
		ReasonCode:  req.ReasonCode,
		ReasonText:  req.ReasonText,
		AmountCents: amount,
		DeniedAt:    deniedAt,
	}

	if err := h.repo.CreateDenial(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	c.Status = StatusDenied
	h.publish(r, c, "claim.denied")
	writeJSON(w, http.StatusCreated, d)
}

// ListDenials lists the denials recorded against a claim
func (h *Handler) ListDenials(w http.ResponseWriter, r *http.Request) {
	c, err := h.getClaimFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	denials, err := h.repo.ListDenials(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": denials})
}

// FileAppeal files an appeal against a denial
func (h *Handler) FileAppeal(w http.ResponseWriter, r *http.Request) {
	denialID, err := types.ParseID(chi.URLParam(r, "denialID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid denial ID"))
		return
	}

	d, err := h.repo.GetDenial(r.Context(), denialID)
	if err != nil {
		writeError(w, err)
		return
	}

	var req FileAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Narrative == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"narrative": "narrative is required",
		}))
		return
	}

	level := req.Level
	if level <= 0 {
		level = 1
	}

	a := &Appeal{
		ID:        types.NewID(),
		DenialID:  d.ID,
		Level:     level,
		Narrative: req.Narrative,
		Status:    AppealOpen,
		FiledAt:   time.Now(),
	}

	if req.Deadline != "" {
		dl, err := time.Parse("2006-01-02", req.Deadline)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"deadline": "must be YYYY-MM-DD",
			}))
			return
		}
		a.Deadline = &dl
	}

	if user := auth.GetUser(r.Context()); user != nil {
		a.FiledBy = &user.ID
	}

	if err := h.repo.CreateAppeal(r.Context(), a); err != nil {
		writeError(w, err)
		return
	}

	h.publishAppeal(r, a, "appeal.filed")
	writeJSON(w, http.StatusCreated, a)
}

// GetAppeal gets an appeal by ID
func (h *Handler) GetAppeal(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appealID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appeal ID"))
		return
	}

	a, err := h.repo.GetAppeal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListAppeals lists the appeals filed against a denial
func (h *Handler) ListAppeals(w http.ResponseWriter, r *http.Request) {
	denialID, err := types.ParseID(chi.URLParam(r, "denialID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid denial ID"))
		return
	}

	appeals, err := h.repo.ListAppeals(r.Context(), denialID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": appeals})
}

// DecideAppeal records an appeal outcome. Overturned appeals pay the claim.
func (h *Handler) DecideAppeal(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "appealID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid appeal ID"))
		return
	}

	var req DecideAppealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Outcome != OutcomeOverturned && req.Outcome != OutcomeUpheld {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"outcome": "must be overturned or upheld",
		}))
		return
	}

	a, err := h.repo.DecideAppeal(r.Context(), id, req.Outcome)
	if err != nil {
		writeError(w, err)
		return
	}

	h.publishAppeal(r, a, "appeal.decided")
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) getClaimFromPath(r *http.Request) (*Claim, error) {
	id, err := types.ParseID(chi.URLParam(r, "claimID"))
	if err != nil {
		return nil, errors.BadRequest("invalid claim ID")
	}
	return h.repo.GetClaim(r.Context(), id)
}

// transition validates and applies a status change, mutating the claim on
// success
func (h *Handler) transition(r *http.Request, c *Claim, to ClaimStatus) error {
	from := c.Status
	if !CanTransition(from, to) {
		return errors.Conflict(fmt.Sprintf("cannot move claim from %s to %s", from, to))
	}

	if err := h.repo.UpdateStatus(r.Context(), c.ID, from, to); err != nil {
		return err
	}

	c.Status = to
	return nil
}

func (h *Handler) publish(r *http.Request, c *Claim, eventType string) {
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

	event := events.NewEvent(eventType, "claims", map[string]any{
		"claim_id":     c.ID,
		"claim_number": c.ClaimNumber,
		"patient_id":   c.PatientID,
		"payer":        c.Payer,
		"status":       c.Status,
	}).WithActor(actorID, actorType)

	h.bus.Publish(r.Context(), event)
}

func (h *Handler) publishAppeal(r *http.Request, a *Appeal, eventType string) {
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

	event := events.NewEvent(eventType, "claims", map[string]any{
		"appeal_id": a.ID,
		"denial_id": a.DenialID,
		"level":     a.Level,
		"status":    a.Status,
		"outcome":   a.Outcome,
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
