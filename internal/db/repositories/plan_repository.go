// plan_repository.go implements PlanRepository, providing read access to the
// subscription plan catalog. Plans are seeded by migration and edited rarely,
// so only lookup and list queries are exposed.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/threateye/threateye-backend/internal/db/models"
)

// PlanRepository handles subscription plan database operations
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a new PlanRepository
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, display_name, max_users, email_alerts_enabled, price, created_at, updated_at`

// ListPlans returns the full plan catalog ordered by price
func (r *PlanRepository) ListPlans(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans ORDER BY price ASC`

	plans := make([]*models.SubscriptionPlan, 0)
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlanByName retrieves a plan by its unique machine name
func (r *PlanRepository) GetPlanByName(ctx context.Context, name string) (*models.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE name = $1`

	plan := &models.SubscriptionPlan{}
	err := r.db.GetContext(ctx, plan, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// GetPlanByID retrieves a plan by ID
func (r *PlanRepository) GetPlanByID(ctx context.Context, planID string) (*models.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE id = $1`

	plan := &models.SubscriptionPlan{}
	err := r.db.GetContext(ctx, plan, query, planID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}
