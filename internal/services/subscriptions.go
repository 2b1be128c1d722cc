// subscriptions.go implements the subscription checkout flow against the
// Khalti gateway: initiate opens a hosted checkout session, the unauthenticated
// callback promotes the subscription after a server-side lookup confirms the
// payment, and status resolves the caller's current entitlement.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/payment"
	"github.com/threateye/threateye-backend/internal/telemetry"
)

// StatusSnapshot is the subscription state returned to a caller.
type StatusSnapshot struct {
	Status             string     `json:"status"`
	Plan               string     `json:"plan,omitempty"`
	MaxUsers           int        `json:"max_users,omitempty"`
	EmailAlertsEnabled bool       `json:"email_alerts_enabled"`
	EndDate            *time.Time `json:"end_date"`
}

// SubscriptionService coordinates the checkout lifecycle.
type SubscriptionService struct {
	subRepo  *repositories.SubscriptionRepository
	planRepo *repositories.PlanRepository
	orgRepo  *repositories.OrganizationRepository
	gateway  payment.Gateway

	// publicURL is the externally reachable base of this API, used to build
	// the gateway's return_url. frontendURL is where the browser lands after
	// checkout.
	publicURL   string
	frontendURL string

	now func() time.Time
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(
	subRepo *repositories.SubscriptionRepository,
	planRepo *repositories.PlanRepository,
	orgRepo *repositories.OrganizationRepository,
	gateway payment.Gateway,
	publicURL, frontendURL string,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:     subRepo,
		planRepo:    planRepo,
		orgRepo:     orgRepo,
		gateway:     gateway,
		publicURL:   publicURL,
		frontendURL: frontendURL,
		now:         time.Now,
	}
}

// Plans returns the plan catalog.
func (s *SubscriptionService) Plans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	return s.planRepo.ListPlans(ctx)
}

// ResolvePlanID maps a plan's machine name (e.g. "basic") to its catalog ID.
func (s *SubscriptionService) ResolvePlanID(ctx context.Context, name string) (string, error) {
	plan, err := s.planRepo.GetPlanByName(ctx, name)
	if err != nil {
		return "", err
	}
	if plan == nil {
		return "", ErrPlanNotFound
	}
	return plan.ID, nil
}

// Initiate opens a checkout session for the actor's organization. An existing
// subscription row is reused (reset to pending on the new plan) so the
// one-subscription-per-organization invariant holds across repeated purchase
// attempts. The returned URL is the gateway's hosted checkout page.
func (s *SubscriptionService) Initiate(ctx context.Context, actor *models.User, planID string) (string, error) {
	if actor.OrganizationID == nil {
		return "", ErrNoOrganization
	}

	plan, err := s.planRepo.GetPlanByID(ctx, planID)
	if err != nil {
		return "", err
	}
	if plan == nil {
		return "", ErrPlanNotFound
	}

	sub, err := s.subRepo.GetByOrganization(ctx, *actor.OrganizationID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		sub = &models.Subscription{
			OrganizationID: *actor.OrganizationID,
			PlanID:         plan.ID,
			Status:         models.SubscriptionPending,
		}
		if err := s.subRepo.CreateSubscription(ctx, sub); err != nil {
			return "", err
		}
	} else {
		if err := s.subRepo.ResetForCheckout(ctx, sub.ID, plan.ID); err != nil {
			return "", err
		}
	}

	resp, err := s.gateway.Initiate(ctx, &payment.InitiateRequest{
		ReturnURL:         s.publicURL + "/api/subscription/callback",
		WebsiteURL:        s.frontendURL,
		Amount:            plan.AmountPaisa(),
		PurchaseOrderID:   sub.PurchaseOrderID(),
		PurchaseOrderName: plan.DisplayName,
		CustomerInfo: &payment.CustomerInfo{
			Name:  actor.FullName(),
			Email: actor.Email,
		},
	})
	if err != nil {
		telemetry.PaymentInitiationsTotal.WithLabelValues("failure").Inc()
		return "", &ExternalError{Op: "payment initiate", Err: err}
	}

	if err := s.subRepo.StorePidx(ctx, sub.ID, resp.Pidx); err != nil {
		return "", err
	}

	telemetry.PaymentInitiationsTotal.WithLabelValues("success").Inc()
	return resp.PaymentURL, nil
}

// HandleCallback processes the gateway's browser redirect. It returns the URL
// the browser should be redirected to; it never returns an error because the
// callback target is an unauthenticated payer, not an API client. Failures are
// logged server-side and collapse to the generic failure URL.
//
// The browser-supplied status is advisory only. Activation requires an
// independent server-to-server lookup confirming the payment, which is the
// anti-forgery control: a crafted callback URL cannot activate a subscription.
func (s *SubscriptionService) HandleCallback(ctx context.Context, pidx, clientStatus string) string {
	failureURL := s.frontendURL + "/subscription/failed"

	if pidx == "" || clientStatus != payment.StatusCompleted {
		slog.Info("subscription callback rejected before lookup",
			"pidx_present", pidx != "", "client_status", clientStatus)
		return failureURL
	}

	lookup, err := s.gateway.Lookup(ctx, pidx)
	if err != nil {
		slog.Error("subscription callback lookup failed", "error", err)
		return failureURL
	}
	if lookup.Status != payment.StatusCompleted {
		slog.Warn("subscription callback status mismatch",
			"client_status", clientStatus, "lookup_status", lookup.Status)
		return failureURL
	}

	sub, err := s.subRepo.GetByPidx(ctx, pidx)
	if err != nil {
		slog.Error("subscription callback lookup by pidx failed", "error", err)
		return failureURL
	}
	if sub == nil {
		slog.Warn("subscription callback for unknown pidx")
		return failureURL
	}

	activated, err := s.subRepo.Activate(ctx, pidx, lookup.TransactionID, s.now())
	if err != nil {
		slog.Error("subscription activation failed", "subscription_id", sub.ID, "error", err)
		return failureURL
	}

	if activated {
		telemetry.SubscriptionActivationsTotal.Inc()
		s.applyPlanToOrganization(ctx, sub.OrganizationID, sub.PlanID)
		slog.Info("subscription activated",
			"subscription_id", sub.ID, "organization_id", sub.OrganizationID)
	} else if sub.Status != models.SubscriptionActive {
		// Not a duplicate of a completed activation: the row left the pending
		// state some other way (expired, cancelled). Don't claim success.
		slog.Warn("subscription callback found no pending row",
			"subscription_id", sub.ID, "status", sub.Status)
		return failureURL
	}
	// A duplicate callback for an already-active subscription falls through
	// to the success redirect without touching start_date or transaction id.

	return s.frontendURL + "/subscription/success?txn=" + lookup.TransactionID
}

// applyPlanToOrganization syncs the organization's tier and seat limit with
// the activated plan. Best effort: the subscription is already active, so a
// failure here is logged and repaired by the next activation or by an admin.
func (s *SubscriptionService) applyPlanToOrganization(ctx context.Context, orgID, planID string) {
	plan, err := s.planRepo.GetPlanByID(ctx, planID)
	if err != nil || plan == nil {
		slog.Error("could not load plan for activated subscription", "plan_id", planID, "error", err)
		return
	}
	org, err := s.orgRepo.GetOrganizationByID(ctx, orgID)
	if err != nil || org == nil {
		slog.Error("could not load organization for activated subscription", "organization_id", orgID, "error", err)
		return
	}
	if models.ValidTier(plan.Name) {
		org.SubscriptionTier = plan.Name
	}
	org.MaxUsers = plan.MaxUsers
	if err := s.orgRepo.UpdateOrganization(ctx, org); err != nil {
		slog.Error("could not apply plan to organization", "organization_id", orgID, "error", err)
	}
}

// Status resolves the actor's subscription snapshot. Platform owners and
// superusers receive a synthetic unlimited status: an administrative bypass
// by policy, read from the role rather than storage.
func (s *SubscriptionService) Status(ctx context.Context, actor *models.User) (*StatusSnapshot, error) {
	if actor.HasElevatedAccess() {
		return &StatusSnapshot{
			Status:             models.SubscriptionActive,
			Plan:               "Platform Administrator",
			MaxUsers:           9999,
			EmailAlertsEnabled: true,
			EndDate:            nil,
		}, nil
	}

	if actor.OrganizationID == nil {
		return nil, ErrNoOrganization
	}

	sub, err := s.subRepo.GetByOrganization(ctx, *actor.OrganizationID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &StatusSnapshot{Status: "none"}, nil
	}

	snapshot := &StatusSnapshot{
		Status:  sub.Status,
		EndDate: sub.EndDate,
	}
	plan, err := s.planRepo.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		snapshot.Plan = plan.DisplayName
		snapshot.MaxUsers = plan.MaxUsers
		snapshot.EmailAlertsEnabled = plan.EmailAlertsEnabled
	}
	return snapshot, nil
}
