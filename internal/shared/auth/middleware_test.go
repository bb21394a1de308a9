package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/types"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Issuer:    "harborhealth-test",
	}
}

func authedRequest(t *testing.T, cfg config.AuthConfig, sessionID string) *http.Request {
	t.Helper()
	token, err := IssueToken(cfg, types.NewID(), RolePhysician, "1234567890", nil, sessionID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestMiddlewareRejectsRevokedSession(t *testing.T) {
	cfg := testAuthConfig()
	active := map[string]bool{"sess-1": true}
	mw := Middleware(cfg, func(id string) bool { return active[id] })

	var reached bool
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, cfg, "sess-1"))
	if rec.Code != http.StatusOK || !reached {
		t.Fatalf("active session: status = %d, reached = %v", rec.Code, reached)
	}

	// The token is still within its TTL, but revoking the session must
	// lock it out immediately.
	active["sess-1"] = false
	reached = false
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, cfg, "sess-1"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("revoked session: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if reached {
		t.Error("handler ran for a revoked session")
	}
}

func TestMiddlewareNilValidatorSkipsSessionCheck(t *testing.T) {
	cfg := testAuthConfig()
	mw := Middleware(cfg, nil)

	var user *User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = GetUser(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, cfg, "whatever"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if user == nil || user.Role != RolePhysician {
		t.Errorf("user = %+v, want physician in context", user)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	mw := Middleware(testAuthConfig(), nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler ran without valid credentials")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}
