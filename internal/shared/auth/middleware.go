package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/types"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// User represents the authenticated user from JWT claims
type User struct {
	ID          types.ID `json:"sub"`
	Role        string   `json:"role"`
	NPI         string   `json:"npi,omitempty"`
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"session_id"`
}

// Claims extends JWT claims with platform-specific data
type Claims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role"`
	NPI         string   `json:"npi,omitempty"`
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"session_id"`
}

// SessionValidator reports whether a login session is still active.
// Revoking the session (logout, account suspension) invalidates tokens
// that carry it before their expiry.
type SessionValidator func(sessionID string) bool

// Middleware creates JWT authentication middleware. A nil validator
// skips the session check and accepts any signed, unexpired token.
func Middleware(cfg config.AuthConfig, validSession SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})

			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			if validSession != nil && !validSession(claims.SessionID) {
				writeError(w, http.StatusUnauthorized, "session expired or revoked")
				return
			}

			user := &User{
				ID:          types.ID(claims.Subject),
				Role:        claims.Role,
				NPI:         claims.NPI,
				Permissions: claims.Permissions,
				SessionID:   claims.SessionID,
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser retrieves the authenticated user from the request context
func GetUser(ctx context.Context) *User {
	user, _ := ctx.Value(UserContextKey).(*User)
	return user
}

// IssueToken creates a signed JWT for a user
func IssueToken(cfg config.AuthConfig, userID types.ID, role, npi string, permissions []string, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
		},
		Role:        role,
		NPI:         npi,
		Permissions: permissions,
		SessionID:   sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
