// organization_repository.go implements OrganizationRepository, providing database
// queries for tenant records and their subscription tier metadata.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/threateye/threateye-backend/internal/db/models"
)

// OrganizationRepository handles organization database operations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const orgColumns = `id, name, is_active, subscription_tier, max_users, created_at, updated_at`

func scanOrganization(row interface{ Scan(...interface{}) error }) (*models.Organization, error) {
	org := &models.Organization{}
	err := row.Scan(
		&org.ID,
		&org.Name,
		&org.IsActive,
		&org.SubscriptionTier,
		&org.MaxUsers,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// CreateOrganization creates a new organization
func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now()
	org.UpdatedAt = time.Now()

	query := `
		INSERT INTO organizations (id, name, is_active, subscription_tier, max_users, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.IsActive,
		org.SubscriptionTier,
		org.MaxUsers,
		org.CreatedAt,
		org.UpdatedAt,
	)

	return err
}

// GetOrganizationByID retrieves an organization by ID
func (r *OrganizationRepository) GetOrganizationByID(ctx context.Context, orgID string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`

	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, orgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetOrganizationByName retrieves an organization by its unique name
func (r *OrganizationRepository) GetOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE name = $1`

	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

// UpdateOrganization updates an organization's mutable fields
func (r *OrganizationRepository) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations
		SET name = $2, is_active = $3, subscription_tier = $4, max_users = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.IsActive,
		org.SubscriptionTier,
		org.MaxUsers,
		org.UpdatedAt,
	)

	return err
}

// DeleteOrganization deletes an organization (cascades to its users and subscription)
func (r *OrganizationRepository) DeleteOrganization(ctx context.Context, orgID string) error {
	query := `DELETE FROM organizations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, orgID)
	return err
}

// ListOrganizations retrieves a paginated list of organizations
func (r *OrganizationRepository) ListOrganizations(ctx context.Context, limit, offset int) ([]*models.Organization, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM organizations`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + orgColumns + `
		FROM organizations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, 0, err
		}
		orgs = append(orgs, org)
	}

	return orgs, total, rows.Err()
}

// SetSubscriptionTier updates only the tier column, used when a subscription
// is activated or lapses.
func (r *OrganizationRepository) SetSubscriptionTier(ctx context.Context, orgID, tier string) error {
	query := `UPDATE organizations SET subscription_tier = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, orgID, tier, time.Now())
	return err
}
