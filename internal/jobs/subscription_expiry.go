// subscription_expiry.go implements the SubscriptionExpiryJob background job,
// which periodically sweeps for active subscriptions whose end date has passed,
// marks them expired, and downgrades the owning organization back to the free
// tier. The expired transition is a compare-and-set on the active status, so a
// subscription renewed between the query and the update is left alone. The job
// is a no-op when the check interval is not configured, so it is always safe to
// start regardless of deployment environment.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/threateye/threateye-backend/internal/config"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/mailer"
	"github.com/threateye/threateye-backend/internal/safego"
	"github.com/threateye/threateye-backend/internal/telemetry"
)

// SubscriptionExpiryJob periodically expires lapsed subscriptions.
type SubscriptionExpiryJob struct {
	subRepo  *repositories.SubscriptionRepository
	planRepo *repositories.PlanRepository
	orgRepo  *repositories.OrganizationRepository
	userRepo *repositories.UserRepository
	mail     mailer.Mailer // nil when notifications are disabled
	interval time.Duration
	stopChan chan struct{}
}

// NewSubscriptionExpiryJob creates a new SubscriptionExpiryJob.
// cfg.ExpiryCheckIntervalHours controls how often the sweep runs (default 24h).
func NewSubscriptionExpiryJob(
	subRepo *repositories.SubscriptionRepository,
	planRepo *repositories.PlanRepository,
	orgRepo *repositories.OrganizationRepository,
	userRepo *repositories.UserRepository,
	mail mailer.Mailer,
	cfg *config.SubscriptionsConfig,
) *SubscriptionExpiryJob {
	hours := cfg.ExpiryCheckIntervalHours
	return &SubscriptionExpiryJob{
		subRepo:  subRepo,
		planRepo: planRepo,
		orgRepo:  orgRepo,
		userRepo: userRepo,
		mail:     mail,
		interval: time.Duration(hours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background sweep loop. It runs an initial sweep
// immediately, then repeats on the configured interval. A non-positive
// interval disables the job.
func (j *SubscriptionExpiryJob) Start() {
	if j.interval <= 0 {
		slog.Info("subscription expiry job disabled (check interval not set)")
		return
	}

	slog.Info("subscription expiry job started", "interval", j.interval)

	safego.Go(func() {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.runSweep(context.Background())

		for {
			select {
			case <-ticker.C:
				j.runSweep(context.Background())
			case <-j.stopChan:
				slog.Info("subscription expiry job stopped")
				return
			}
		}
	})
}

// Stop signals the background loop to exit.
func (j *SubscriptionExpiryJob) Stop() {
	close(j.stopChan)
}

// runSweep expires every active subscription whose end date has passed.
func (j *SubscriptionExpiryJob) runSweep(ctx context.Context) {
	expired, err := j.subRepo.FindExpired(ctx, time.Now())
	if err != nil {
		slog.Error("subscription expiry sweep failed to query lapsed subscriptions", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	slog.Info("subscription expiry sweep found lapsed subscriptions", "count", len(expired))

	for _, sub := range expired {
		ok, err := j.subRepo.MarkExpired(ctx, sub.ID)
		if err != nil {
			slog.Error("failed to mark subscription expired", "subscription_id", sub.ID, "error", err)
			continue
		}
		if !ok {
			// Renewed or already expired between the query and the update.
			continue
		}

		telemetry.SubscriptionExpirationsTotal.Inc()
		slog.Info("subscription expired",
			"subscription_id", sub.ID, "organization_id", sub.OrganizationID)

		j.downgradeOrganization(ctx, sub.OrganizationID)
		j.notifyOrgAdmins(ctx, sub)
	}
}

// downgradeOrganization returns the organization to the free tier and the
// default seat limit once its subscription lapses.
func (j *SubscriptionExpiryJob) downgradeOrganization(ctx context.Context, orgID string) {
	org, err := j.orgRepo.GetOrganizationByID(ctx, orgID)
	if err != nil || org == nil {
		slog.Error("could not load organization for expired subscription", "organization_id", orgID, "error", err)
		return
	}

	org.SubscriptionTier = models.TierFree
	org.MaxUsers = models.DefaultMaxUsers
	if err := j.orgRepo.UpdateOrganization(ctx, org); err != nil {
		slog.Error("could not downgrade organization after expiry", "organization_id", orgID, "error", err)
	}
}

// notifyOrgAdmins emails the organization's admins that the plan has lapsed.
// Only plans with email alerts enabled generate mail, and only when an
// outbound mailer is configured.
func (j *SubscriptionExpiryJob) notifyOrgAdmins(ctx context.Context, sub *models.Subscription) {
	if j.mail == nil {
		return
	}

	plan, err := j.planRepo.GetPlanByID(ctx, sub.PlanID)
	if err != nil || plan == nil {
		slog.Error("could not load plan for expired subscription", "plan_id", sub.PlanID, "error", err)
		return
	}
	if !plan.EmailAlertsEnabled {
		return
	}

	admins, _, err := j.userRepo.ListUsersByOrganization(ctx, sub.OrganizationID, 100, 0)
	if err != nil {
		slog.Error("could not list users for expired subscription", "organization_id", sub.OrganizationID, "error", err)
		return
	}

	for _, admin := range admins {
		if !admin.IsActive || admin.Email == "" {
			continue
		}
		if err := j.mail.SendSubscriptionExpired(ctx, admin.Email, plan.DisplayName); err != nil {
			slog.Error("failed to send subscription expiry email",
				"organization_id", sub.OrganizationID, "error", err)
		}
	}
}
