// Package models - organization.go defines the Organization model representing a tenant
// with a subscription tier and a seat limit for attached users.
package models

import "time"

// Subscription tiers an organization can hold.
const (
	TierFree         = "free"
	TierBasic        = "basic"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// DefaultMaxUsers is the seat limit assigned to new organizations.
const DefaultMaxUsers = 5

// Organization represents a tenant in the system
type Organization struct {
	ID               string
	Name             string // unique
	IsActive         bool
	SubscriptionTier string
	MaxUsers         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ValidTier reports whether the tier string is one of the known subscription tiers.
func ValidTier(tier string) bool {
	switch tier {
	case TierFree, TierBasic, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// CanAddUser reports whether the organization has a free seat given the
// current number of active users.
func (o *Organization) CanAddUser(activeUsers int) bool {
	return activeUsers < o.MaxUsers
}
