// accounts.go implements the credential store: user creation with the
// role/tenancy and seat-limit invariants, authentication, and mutation paths
// that re-validate those invariants before committing.
package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/threateye/threateye-backend/internal/auth"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/telemetry"
)

// normalizeEmail lowercases and trims an address. All lookups and writes go
// through this so "Admin@Example.com " and "admin@example.com" are one login.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountService coordinates user lifecycle operations.
type AccountService struct {
	userRepo     *repositories.UserRepository
	orgRepo      *repositories.OrganizationRepository
	verification *VerificationService
	tokenExpiry  time.Duration
}

// NewAccountService creates an AccountService.
func NewAccountService(
	userRepo *repositories.UserRepository,
	orgRepo *repositories.OrganizationRepository,
	verification *VerificationService,
	tokenExpiry time.Duration,
) *AccountService {
	return &AccountService{
		userRepo:     userRepo,
		orgRepo:      orgRepo,
		verification: verification,
		tokenExpiry:  tokenExpiry,
	}
}

// CreateUserInput carries the fields for a new account. The plaintext
// password lives only in this struct for the duration of the call.
type CreateUserInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           string
	OrganizationID *string
	IsSuperuser    bool

	// SkipVerificationDispatch suppresses the post-create verification email.
	// The code is still issued and persisted; only the send is skipped. Used
	// by bulk-import paths and by callers that dispatch on their own schedule.
	SkipVerificationDispatch bool
}

// CreateUser creates a new account, enforcing the role/tenancy invariant and
// the organization's active-seat limit. On success the user is unverified and
// a verification code has been issued; the post-create email dispatch is
// synchronous and its failure is logged, not returned, because the persisted
// code remains usable via resend.
func (s *AccountService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	user := &models.User{
		Email:          normalizeEmail(input.Email),
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Role:           input.Role,
		OrganizationID: input.OrganizationID,
		IsActive:       true,
		IsSuperuser:    input.IsSuperuser,
	}
	if user.Role == "" {
		user.Role = models.RoleOrgAdmin
	}

	if !user.ValidRoleTenancy() {
		return nil, ErrInvalidRoleTenancy
	}

	if user.OrganizationID != nil {
		org, err := s.orgRepo.GetOrganizationByID(ctx, *user.OrganizationID)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, ErrNotFound
		}
		activeUsers, err := s.userRepo.CountActiveByOrganization(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		if !org.CanAddUser(activeUsers) {
			return nil, ErrOrgCapacityExceeded
		}
	}

	existing, err := s.userRepo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	// Superusers bypass the verification engine entirely.
	if user.IsSuperuser {
		user.IsVerified = true
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		// The existence check above can race with a concurrent insert.
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	// Post-create hook: issue and dispatch the verification code. Explicit
	// and synchronous so ordering is visible at the call site.
	if !user.IsVerified && !input.SkipVerificationDispatch {
		if err := s.verification.Issue(ctx, user); err != nil {
			if IsExternal(err) {
				slog.Error("verification email dispatch failed after user creation",
					"user_id", user.ID, "error", err)
			} else {
				return nil, err
			}
		}
	}

	return user, nil
}

// CreateAdmin creates a platform administrator: platform_owner role, no
// organization, superuser flag set, active and verified unconditionally.
func (s *AccountService) CreateAdmin(ctx context.Context, email, password string) (*models.User, error) {
	return s.CreateUser(ctx, CreateUserInput{
		Email:                    email,
		Password:                 password,
		Role:                     models.RolePlatformOwner,
		IsSuperuser:              true,
		SkipVerificationDispatch: true,
	})
}

// Authenticate checks credentials and returns the user with a signed access
// token. Unknown email and wrong password produce the same error. A disabled
// account is rejected after the hash check so the error does not reveal
// whether the password was correct for an unknown address. Verification
// status does not gate login; it gates downstream features.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, "", err
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		telemetry.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		telemetry.LoginsTotal.WithLabelValues("failure").Inc()
		return nil, "", ErrAccountDisabled
	}

	token, err := auth.GenerateJWT(user.ID, user.Email, s.tokenExpiry)
	if err != nil {
		return nil, "", err
	}

	telemetry.LoginsTotal.WithLabelValues("success").Inc()
	return user, token, nil
}

// SetPassword replaces an account's password out of band (administrative
// reset). The plaintext is hashed immediately and never stored or logged.
func (s *AccountService) SetPassword(ctx context.Context, userID, password string) error {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePasswordHash(ctx, user.ID, hash)
}

// UpdateUserInput carries the mutable fields of an account. Nil pointers mean
// "leave unchanged".
type UpdateUserInput struct {
	Email          *string
	FirstName      *string
	LastName       *string
	Role           *string
	OrganizationID *string
	ClearOrg       bool // explicit, since nil OrganizationID means unchanged
	IsActive       *bool
	IsSuperuser    *bool
}

// UpdateUser applies a partial update, re-validating the role/tenancy
// invariant against the resulting state before committing. A violating
// update is rejected with no partial write.
func (s *AccountService) UpdateUser(ctx context.Context, userID string, input UpdateUserInput) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	prevOrg := user.OrganizationID

	if input.Email != nil {
		user.Email = normalizeEmail(*input.Email)
	}
	if input.FirstName != nil {
		user.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		user.LastName = *input.LastName
	}
	if input.Role != nil {
		user.Role = *input.Role
	}
	if input.ClearOrg {
		user.OrganizationID = nil
	} else if input.OrganizationID != nil {
		user.OrganizationID = input.OrganizationID
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	if input.IsSuperuser != nil {
		user.IsSuperuser = *input.IsSuperuser
	}

	if !user.ValidRoleTenancy() {
		return nil, ErrInvalidRoleTenancy
	}

	// Moving the account into a different organization consumes a seat there.
	if user.OrganizationID != nil && (prevOrg == nil || *prevOrg != *user.OrganizationID) {
		org, err := s.orgRepo.GetOrganizationByID(ctx, *user.OrganizationID)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, ErrNotFound
		}
		activeUsers, err := s.userRepo.CountActiveByOrganization(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		if !org.CanAddUser(activeUsers) {
			return nil, ErrOrgCapacityExceeded
		}
	}

	if err := s.userRepo.UpdateUser(ctx, user); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return user, nil
}
