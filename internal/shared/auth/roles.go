package auth

import "net/http"

// Platform roles. Physicians and nurses are clinicians; office handles
// intake and scheduling; billing handles claims.
const (
	RoleAdmin     = "admin"
	RolePhysician = "physician"
	RoleNurse     = "nurse"
	RoleOffice    = "office"
	RoleBilling   = "billing"
)

// IsClinician reports whether the role can author clinical documentation.
func IsClinician(role string) bool {
	return role == RolePhysician || role == RoleNurse
}

// RequireRole returns middleware that rejects requests from users whose
// role is not in the allowed set. Admin always passes.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles)+1)
	allowed[RoleAdmin] = true
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !allowed[user.Role] {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
