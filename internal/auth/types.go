package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the single authorization role held by an admin principal.
type Role string

const (
	RoleOrderViewer        Role = "order_viewer"
	RoleBusinessProcessing Role = "business_processing"
	RoleWebsiteAdmin       Role = "website_admin"
)

// Roles lists the known roles from least to most privileged.
var Roles = []Role{RoleOrderViewer, RoleBusinessProcessing, RoleWebsiteAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// Principal is an admin identity as stored in the credential store.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	MFAEnabled   bool      `json:"mfa_enabled"`
	MFASecret    string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MFAPending reports an enrollment that has a secret but was never confirmed.
func (p Principal) MFAPending() bool {
	return !p.MFAEnabled && p.MFASecret != ""
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
