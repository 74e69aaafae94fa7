package auth

import (
	"errors"
	"regexp"
	"slices"
	"time"
)

// Usernames are 1-64 characters of alphanumerics, dots, hyphens, and
// underscores. They appear in URLs and audit entries, so no spaces.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const maxUsernameLength = 64

func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role is an authorisation tier. Permissions hang off roles in
// rolePermissions; handlers never check roles directly.
type Role string

const (
	// RoleUser is a household member: can read device state and history
	// and trigger polls, but cannot change device configuration.
	RoleUser Role = "user"

	// RoleAdmin has full control: device registration, user management,
	// audit access, system settings.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role assignable to a user account.
var ValidRoles = []Role{RoleUser, RoleAdmin}

func IsValidUserRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// User is a human account. PasswordHash and all token material stay out
// of JSON.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is one link in a rotation family. Only the SHA-256 hash
// of the raw token is ever stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FamilyID  string    `json:"family_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
	ErrForbidden          = errors.New("insufficient permissions")
)
