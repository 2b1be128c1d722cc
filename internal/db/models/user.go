// Package models - user.go defines the User model for platform accounts with email login,
// bcrypt password hash, tenant attachment, and email-verification state.
package models

import (
	"strings"
	"time"
)

// User roles. A platform owner administers the whole platform and is never
// attached to an organization; an org admin always belongs to exactly one.
const (
	RolePlatformOwner = "platform_owner"
	RoleOrgAdmin      = "org_admin"
)

// User represents an account in the system
type User struct {
	ID             string
	Email          string
	PasswordHash   string // bcrypt; the plaintext is never persisted or logged
	FirstName      string
	LastName       string
	Role           string
	OrganizationID *string
	IsActive       bool
	IsSuperuser    bool
	IsVerified     bool
	// VerificationCode is the pending 6-digit email verification code, nil once verified
	VerificationCode *string
	CodeExpiresAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FullName returns the user's display name, falling back to the email address
// when no name is set.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsPlatformOwner reports whether the user holds the platform-wide admin role.
func (u *User) IsPlatformOwner() bool {
	return u.Role == RolePlatformOwner
}

// HasElevatedAccess reports whether the user bypasses tenancy scoping.
// Platform owners and superusers see every organization's data.
func (u *User) HasElevatedAccess() bool {
	return u.IsPlatformOwner() || u.IsSuperuser
}

// CanAccessOrg reports whether the user may read data belonging to the given organization.
func (u *User) CanAccessOrg(orgID string) bool {
	if u.HasElevatedAccess() {
		return true
	}
	return u.OrganizationID != nil && *u.OrganizationID == orgID
}

// ValidRoleTenancy reports whether the role and organization attachment are
// consistent: platform owners must have no organization, org admins must have one.
func (u *User) ValidRoleTenancy() bool {
	switch u.Role {
	case RolePlatformOwner:
		return u.OrganizationID == nil
	case RoleOrgAdmin:
		return u.OrganizationID != nil
	default:
		return false
	}
}
