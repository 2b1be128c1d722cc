// Package models - subscription.go defines the SubscriptionPlan catalog entry and the
// Subscription record tying an organization to a plan through the Khalti payment flow.
package models

import (
	"math"
	"time"
)

// Subscription lifecycle states.
const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

// SubscriptionPlan is a purchasable plan (e.g. basic, professional).
type SubscriptionPlan struct {
	ID                 string    `db:"id"`
	Name               string    `db:"name"` // unique machine name
	DisplayName        string    `db:"display_name"`
	MaxUsers           int       `db:"max_users"`
	EmailAlertsEnabled bool      `db:"email_alerts_enabled"`
	Price              float64   `db:"price"` // rupees; charged in paisa (price * 100)
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// AmountPaisa returns the plan price in paisa, the unit Khalti charges in.
func (p *SubscriptionPlan) AmountPaisa() int {
	return int(math.Round(p.Price * 100))
}

// Subscription links an organization to a plan. Each organization has at most
// one subscription row; re-purchasing reuses the row with a reset status.
type Subscription struct {
	ID             string     `db:"id"`
	OrganizationID string     `db:"organization_id"`
	PlanID         string     `db:"plan_id"`
	Status         string     `db:"status"`
	StartDate      *time.Time `db:"start_date"`
	EndDate        *time.Time `db:"end_date"`
	// KhaltiTransactionID is set when the payment completes
	KhaltiTransactionID *string `db:"khalti_transaction_id"`
	// KhaltiPidx is the gateway's payment identifier, set at initiation
	KhaltiPidx *string   `db:"khalti_pidx"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// IsActive reports whether the subscription is currently active.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// PurchaseOrderID returns the order reference sent to the payment gateway.
func (s *Subscription) PurchaseOrderID() string {
	return "Sub-" + s.ID
}
