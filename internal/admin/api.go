package admin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Handler provides HTTP handlers for user administration and login
type Handler struct {
	repo     *Repository
	sessions *SessionStore
	authCfg  config.AuthConfig
	bus      *events.Bus
}

// NewHandler creates a new admin handler
func NewHandler(repo *Repository, sessions *SessionStore, authCfg config.AuthConfig, bus *events.Bus) *Handler {
	return &Handler{repo: repo, sessions: sessions, authCfg: authCfg, bus: bus}
}

// Routes registers the user administration routes. All of them require the
// admin role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(auth.RoleAdmin))

	r.Get("/", h.ListUsers)
	r.Post("/", h.CreateUser)

	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Put("/", h.UpdateUser)
		r.Post("/suspend", h.SuspendUser)
		r.Post("/reactivate", h.ReactivateUser)
	})

	return r
}

// AuthRoutes registers the unauthenticated login endpoint and the
// authenticated logout endpoint
func (h *Handler) AuthRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/login", h.Login)
	r.With(authMiddleware).Post("/logout", h.Logout)

	return r
}

var validRoles = map[string]bool{
	auth.RoleAdmin:     true,
	auth.RolePhysician: true,
	auth.RoleNurse:     true,
	auth.RoleOffice:    true,
	auth.RoleBilling:   true,
}

// ListUsers lists platform users matching the query filters
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter := ListUsersFilter{
		Role:   r.URL.Query().Get("role"),
		Search: r.URL.Query().Get("search"),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		status := UserStatus(s)
		filter.Status = &status
	}

	users, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  users,
		"total": total,
	})
}

// GetUser gets a user by ID
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid user ID"))
		return
	}

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// CreateUser creates a platform account
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		details["email"] = "a valid email is required"
	}
	if req.FirstName == "" {
		details["first_name"] = "first_name is required"
	}
	if req.LastName == "" {
		details["last_name"] = "last_name is required"
	}
	if !validRoles[req.Role] {
		details["role"] = "unknown role"
	}
	if len(req.Password) < 12 {
		details["password"] = "password must be at least 12 characters"
	}
	if req.NPI != "" && !ValidNPI(req.NPI) {
		details["npi"] = "NPI must be 10 digits"
	}
	if auth.IsClinician(req.Role) && req.NPI == "" {
		details["npi"] = "NPI is required for clinical roles"
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to hash password"))
		return
	}

	u := &User{
		ID:          types.NewID(),
		Email:       strings.ToLower(req.Email),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Role:        req.Role,
		NPI:         req.NPI,
		Credentials: req.Credentials,
		Phone:       req.Phone,
		Status:      UserActive,
	}

	if err := h.repo.Create(r.Context(), u, string(hash)); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// UpdateUser updates a user's profile and role
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid user ID"))
		return
	}

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.Role != nil {
		if !validRoles[*req.Role] {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"role": "unknown role",
			}))
			return
		}
		u.Role = *req.Role
	}
	if req.NPI != nil {
		if *req.NPI != "" && !ValidNPI(*req.NPI) {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"npi": "NPI must be 10 digits",
			}))
			return
		}
		u.NPI = *req.NPI
	}
	if req.Credentials != nil {
		u.Credentials = *req.Credentials
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	if req.Status != nil {
		u.Status = *req.Status
	}

	if err := h.repo.Update(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}

	if u.Status != UserActive {
		h.sessions.RevokeUser(u.ID)
	}

	writeJSON(w, http.StatusOK, u)
}

// SuspendUser suspends an account and revokes its sessions
func (h *Handler) SuspendUser(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, UserSuspended)
}

// ReactivateUser returns a suspended or inactive account to active
func (h *Handler) ReactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, UserActive)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status UserStatus) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid user ID"))
		return
	}

	u, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	u.Status = status
	if err := h.repo.Update(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}

	if status != UserActive {
		h.sessions.RevokeUser(u.ID)
	}

	writeJSON(w, http.StatusOK, u)
}

// Login authenticates with email and password and returns a JWT
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	u, err := h.repo.GetByEmail(r.Context(), strings.ToLower(req.Email))
	if err != nil {
		h.publishAuth(r, types.ID(""), "auth.login_failed")
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	if u.Status != UserActive {
		h.publishAuth(r, u.ID, "auth.login_failed")
		writeError(w, errors.Unauthorized("account is not active"))
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(req.Password)) != nil {
		h.publishAuth(r, u.ID, "auth.login_failed")
		writeError(w, errors.Unauthorized("invalid credentials"))
		return
	}

	session := h.sessions.Create(u.ID, u.Role, r.RemoteAddr, r.UserAgent())

	token, err := auth.IssueToken(h.authCfg, u.ID, u.Role, u.NPI, nil, session.ID)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to issue token"))
		return
	}

	if err := h.repo.RecordLogin(r.Context(), u.ID); err != nil {
		writeError(w, err)
		return
	}

	h.publishAuth(r, u.ID, "auth.login")
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.authCfg.TokenTTL),
		User:      u,
	})
}

// Logout revokes the caller's session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	h.sessions.Revoke(user.SessionID)
	h.publishAuth(r, user.ID, "auth.logout")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publishAuth(r *http.Request, userID types.ID, eventType string) {
	if h.bus == nil {
		return
	}

	event := events.NewEvent(eventType, "admin", map[string]any{
		"user_id":    userID,
		"ip_address": r.RemoteAddr,
	}).WithActor(userID, "system")

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
