// Package repositories implements the data access layer (repository pattern) for the backend.
// Each repository type encapsulates all database queries for a domain entity.
// Handlers never issue SQL directly — all database access goes through this layer, which makes query logic testable in isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/threateye/threateye-backend/internal/db/models"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation. Used to detect duplicate emails and organization names that race
// past the application-level existence check.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// UserRepository handles user database operations
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, organization_id,
		is_active, is_superuser, is_verified, verification_code, code_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.OrganizationID,
		&user.IsActive,
		&user.IsSuperuser,
		&user.IsVerified,
		&user.VerificationCode,
		&user.CodeExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser creates a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, organization_id,
			is_active, is_superuser, is_verified, verification_code, code_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Role,
		user.OrganizationID,
		user.IsActive,
		user.IsSuperuser,
		user.IsVerified,
		user.VerificationCode,
		user.CodeExpiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email. Callers are expected to pass the
// normalized (lowercased, trimmed) address.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser updates a user's mutable fields
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, role = $5, organization_id = $6,
			is_active = $7, is_superuser = $8, updated_at = $9
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.Role,
		user.OrganizationID,
		user.IsActive,
		user.IsSuperuser,
		user.UpdatedAt,
	)

	return err
}

// UpdatePasswordHash replaces the stored bcrypt hash for a user.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now())
	return err
}

// DeleteUser deletes a user
func (r *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// ListUsers retrieves a paginated list of all users (platform-owner view)
func (r *UserRepository) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM users`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// ListUsersByOrganization retrieves a paginated list of users attached to one tenant
func (r *UserRepository) ListUsersByOrganization(ctx context.Context, orgID string, limit, offset int) ([]*models.User, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM users WHERE organization_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// CountActiveByOrganization returns the number of active users attached to an
// organization. This is the count checked against the tenant's seat limit.
func (r *UserRepository) CountActiveByOrganization(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE organization_id = $1 AND is_active = TRUE`
	err := r.db.QueryRowContext(ctx, query, orgID).Scan(&count)
	return count, err
}

// SetVerificationCode stores a fresh verification code and its expiry,
// replacing any previously issued code.
func (r *UserRepository) SetVerificationCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET verification_code = $2, code_expires_at = $3, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, code, expiresAt, time.Now())
	return err
}

// MarkVerified flips the user to verified and clears the pending code in a
// single compare-and-set. The WHERE clause re-checks the stored code and the
// unverified state so a code is consumable exactly once under concurrent
// verification attempts. Returns false when another request won the race or
// the code no longer matches.
func (r *UserRepository) MarkVerified(ctx context.Context, userID, code string) (bool, error) {
	query := `
		UPDATE users
		SET is_verified = TRUE, verification_code = NULL, code_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND is_verified = FALSE AND verification_code = $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, code, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
