// subscription_repository.go implements SubscriptionRepository, covering the
// checkout lifecycle: one row per organization, reset to pending on each new
// purchase attempt and promoted to active by the payment callback.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/threateye/threateye-backend/internal/db/models"
)

// SubscriptionRepository handles subscription database operations
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, organization_id, plan_id, status, start_date, end_date,
		khalti_transaction_id, khalti_pidx, created_at, updated_at`

// CreateSubscription creates a new pending subscription row for an organization
func (r *SubscriptionRepository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	sub.ID = uuid.New().String()
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = time.Now()

	query := `
		INSERT INTO subscriptions (id, organization_id, plan_id, status, start_date, end_date,
			khalti_transaction_id, khalti_pidx, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.OrganizationID,
		sub.PlanID,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.KhaltiTransactionID,
		sub.KhaltiPidx,
		sub.CreatedAt,
		sub.UpdatedAt,
	)

	return err
}

// GetByOrganization retrieves the organization's subscription, or nil when the
// organization has never initiated one.
func (r *SubscriptionRepository) GetByOrganization(ctx context.Context, orgID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE organization_id = $1`

	sub := &models.Subscription{}
	err := r.db.GetContext(ctx, sub, query, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetByPidx retrieves a subscription by the payment identifier stored at initiation
func (r *SubscriptionRepository) GetByPidx(ctx context.Context, pidx string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE khalti_pidx = $1`

	sub := &models.Subscription{}
	err := r.db.GetContext(ctx, sub, query, pidx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ResetForCheckout reuses an existing subscription row for a new purchase
// attempt: switches the plan, returns the status to pending, and clears the
// previous attempt's gateway identifiers and dates.
func (r *SubscriptionRepository) ResetForCheckout(ctx context.Context, subID, planID string) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, start_date = NULL, end_date = NULL,
			khalti_transaction_id = NULL, khalti_pidx = NULL, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, subID, planID, models.SubscriptionPending, time.Now())
	return err
}

// StorePidx records the gateway payment identifier returned by a successful initiation
func (r *SubscriptionRepository) StorePidx(ctx context.Context, subID, pidx string) error {
	query := `UPDATE subscriptions SET khalti_pidx = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, subID, pidx, time.Now())
	return err
}

// Activate promotes a pending subscription identified by pidx to active,
// recording the gateway transaction and the start of the billing period.
// The WHERE clause only matches the pending state, so a duplicate callback for
// an already-active subscription is a no-op and returns false.
func (r *SubscriptionRepository) Activate(ctx context.Context, pidx, transactionID string, startDate time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $2, start_date = $3, khalti_transaction_id = $4, updated_at = $5
		WHERE khalti_pidx = $1 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		pidx, models.SubscriptionActive, startDate, transactionID, time.Now(), models.SubscriptionPending)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FindExpired returns active subscriptions whose end date has passed as of the
// given time. Used by the background reconciler.
func (r *SubscriptionRepository) FindExpired(ctx context.Context, asOf time.Time) ([]*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = $1 AND end_date IS NOT NULL AND end_date < $2
	`

	subs := make([]*models.Subscription, 0)
	if err := r.db.SelectContext(ctx, &subs, query, models.SubscriptionActive, asOf); err != nil {
		return nil, err
	}
	return subs, nil
}

// MarkExpired transitions a single subscription from active to expired.
// Returns false when the row was already moved out of the active state.
func (r *SubscriptionRepository) MarkExpired(ctx context.Context, subID string) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, subID, models.SubscriptionExpired, time.Now(), models.SubscriptionActive)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
