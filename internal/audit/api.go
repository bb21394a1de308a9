package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the audit module
type Handler struct {
	store       Store
	checkpoints *CheckpointService
}

// NewHandler creates a new audit handler
func NewHandler(store Store) *Handler {
	return &Handler{
		store:       store,
		checkpoints: NewCheckpointService(store),
	}
}

// Routes registers the audit routes. All endpoints are admin-only.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RoleAdmin))

	r.Get("/", h.ListEntries)
	r.Get("/verify", h.VerifyChain)
	r.Get("/resource/{resourceType}/{resourceID}", h.GetByResource)

	r.Route("/checkpoints", func(r chi.Router) {
		r.Get("/", h.ListCheckpoints)
		r.Post("/", h.CreateCheckpoint)
		r.Get("/latest", h.GetLatestCheckpoint)
		r.Get("/latest/verify", h.VerifyLatestCheckpoint)
	})

	// Must come after /verify and /checkpoints
	r.Get("/{entryID}", h.GetEntry)

	return r
}

// ListEntries lists audit entries with filters
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	filter := ListEntriesFilter{}

	if actorID := r.URL.Query().Get("actor_id"); actorID != "" {
		if id, err := types.ParseID(actorID); err == nil {
			filter.ActorID = &id
		}
	}

	if actorType := r.URL.Query().Get("actor_type"); actorType != "" {
		at := ActorType(actorType)
		filter.ActorType = &at
	}

	filter.Action = r.URL.Query().Get("action")
	filter.ResourceType = r.URL.Query().Get("resource_type")

	if resourceID := r.URL.Query().Get("resource_id"); resourceID != "" {
		if id, err := types.ParseID(resourceID); err == nil {
			filter.ResourceID = &id
		}
	}

	if startTime := r.URL.Query().Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filter.StartTime = &t
		}
	}

	if endTime := r.URL.Query().Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filter.EndTime = &t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			filter.Offset = o
		}
	}

	entries, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": total,
	})
}

// GetEntry gets an audit entry by ID
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid entry ID"))
		return
	}

	entry, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// VerifyChain verifies the integrity of the audit chain
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	includeDetails := r.URL.Query().Get("details") == "true"

	result, err := h.store.VerifyChain(r.Context(), limit, includeDetails)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetByResource gets audit entries for a specific resource
func (h *Handler) GetByResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	resourceID, err := types.ParseID(chi.URLParam(r, "resourceID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid resource ID"))
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.store.GetByResource(r.Context(), resourceType, resourceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  entries,
		"total": len(entries),
	})
}

// --- Checkpoint Handlers ---

// ListCheckpoints lists chain anchors newest first
func (h *Handler) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	checkpoints, err := h.store.ListCheckpoints(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  checkpoints,
		"total": len(checkpoints),
	})
}

// CreateCheckpoint anchors the current chain head
func (h *Handler) CreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	checkpoint, err := h.checkpoints.CreateCheckpoint(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, checkpoint)
}

// GetLatestCheckpoint returns the most recent checkpoint
func (h *Handler) GetLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	checkpoint, err := h.store.GetLatestCheckpoint(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if checkpoint == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "no checkpoints created yet",
		})
		return
	}

	writeJSON(w, http.StatusOK, checkpoint)
}

// VerifyLatestCheckpoint verifies the most recent checkpoint against the chain
func (h *Handler) VerifyLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	result, err := h.checkpoints.VerifyLatest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "no checkpoints created yet",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
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
