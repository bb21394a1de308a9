package admin

import (
	"regexp"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// UserStatus of a platform account
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

// User is a platform account for clinicians and staff
type User struct {
	ID          types.ID   `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        string     `json:"role"`
	NPI         string     `json:"npi,omitempty"`
	Credentials string     `json:"credentials,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Status      UserStatus `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	passwordHash string
}

// FullName returns the user's display name
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

var npiPattern = regexp.MustCompile(`^\d{10}$`)

// ValidNPI reports whether the value looks like a National Provider
// Identifier
func ValidNPI(npi string) bool {
	return npiPattern.MatchString(npi)
}

// CreateUserRequest is the request body for creating a user
type CreateUserRequest struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	NPI         string `json:"npi"`
	Credentials string `json:"credentials"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
}

// UpdateUserRequest is the request body for updating a user
type UpdateUserRequest struct {
	FirstName   *string     `json:"first_name"`
	LastName    *string     `json:"last_name"`
	Role        *string     `json:"role"`
	NPI         *string     `json:"npi"`
	Credentials *string     `json:"credentials"`
	Phone       *string     `json:"phone"`
	Status      *UserStatus `json:"status"`
}

// LoginRequest is the request body for authentication
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

// ListUsersFilter narrows user listings
type ListUsersFilter struct {
	Role   string
	Status *UserStatus
	Search string
	Limit  int
	Offset int
}
