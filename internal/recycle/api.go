package recycle

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the recycle bin
type Handler struct {
	svc  *Service
	repo *Repository
	bus  *events.Bus
}

// NewHandler creates a new recycle bin handler
func NewHandler(svc *Service, repo *Repository, bus *events.Bus) *Handler {
	return &Handler{svc: svc, repo: repo, bus: bus}
}

// Routes registers the recycle bin routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListItems)
	r.Route("/{itemID}", func(r chi.Router) {
		r.Get("/", h.GetItem)
		r.Post("/restore", h.RestoreItem)
	})

	return r
}

// ListItems lists unrestored items still inside their retention window
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	filter := ListItemsFilter{}

	if t := r.URL.Query().Get("entity_type"); t != "" {
		entityType := EntityType(t)
		filter.EntityType = &entityType
	}

	items, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": total,
	})
}

// GetItem gets a recycle bin item by ID
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid item ID"))
		return
	}

	item, err := h.repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// RestoreItem undeletes the entity behind a recycle bin item
func (h *Handler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid item ID"))
		return
	}

	user := auth.GetUser(r.Context())
	restoredBy := types.ID("")
	if user != nil {
		restoredBy = user.ID
	}

	item, err := h.svc.Restore(r.Context(), id, restoredBy)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.bus != nil {
		event := events.NewEvent("recycle.restored", "recycle", map[string]any{
			"item_id":     item.ID,
			"entity_type": item.EntityType,
			"entity_id":   item.EntityID,
		}).WithActor(restoredBy, "office")

		h.bus.Publish(r.Context(), event)
	}

	writeJSON(w, http.StatusOK, item)
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
