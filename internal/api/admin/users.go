// users.go implements platform-owner handlers for account management:
// listing, creating, updating, and deleting users.
package admin

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/middleware"
	"github.com/threateye/threateye-backend/internal/services"
)

// UserHandlers handles user management endpoints.
type UserHandlers struct {
	db       *sql.DB
	userRepo *repositories.UserRepository
	accounts *services.AccountService
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(db *sql.DB, accounts *services.AccountService) *UserHandlers {
	return &UserHandlers{
		db:       db,
		userRepo: repositories.NewUserRepository(db),
		accounts: accounts,
	}
}

// parsePagination reads page/per_page query params with the usual clamping.
func parsePagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// userView shapes a user for admin API responses. The password hash and the
// pending verification code stay server-side.
func userView(u *models.User) gin.H {
	return gin.H{
		"id":              u.ID,
		"email":           u.Email,
		"first_name":      u.FirstName,
		"last_name":       u.LastName,
		"role":            u.Role,
		"organization_id": u.OrganizationID,
		"is_active":       u.IsActive,
		"is_superuser":    u.IsSuperuser,
		"is_verified":     u.IsVerified,
		"created_at":      u.CreatedAt,
		"updated_at":      u.UpdatedAt,
	}
}

// @Summary      List users
// @Description  Get a paginated list of accounts, optionally filtered to one organization. Platform owners only.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        organization_id  query  string  false  "Restrict to one organization"
// @Success      200  {object}  map[string]interface{}  "users, pagination"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/users [get]
// ListUsersHandler lists accounts with pagination.
// GET /api/admin/users?page=1&per_page=20&organization_id=...
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		var (
			users []*models.User
			total int
			err   error
		)
		if orgID := c.Query("organization_id"); orgID != "" {
			users, total, err = h.userRepo.ListUsersByOrganization(c.Request.Context(), orgID, perPage, offset)
		} else {
			users, total, err = h.userRepo.ListUsers(c.Request.Context(), perPage, offset)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		views := make([]gin.H, 0, len(users))
		for _, u := range users {
			views = append(views, userView(u))
		}

		c.JSON(http.StatusOK, gin.H{
			"users": views,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      List organization users
// @Description  Get a paginated list of the accounts attached to one organization. Org admins may read only their own organization; platform administrators may read any.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id        path   string  true   "Organization ID"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users, pagination"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Organization belongs to another tenant"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/organizations/{id}/users [get]
// ListOrganizationUsersHandler lists the accounts of a single organization,
// scoped to what the caller may see.
// GET /api/organizations/:id/users?page=1&per_page=20
func (h *UserHandlers) ListOrganizationUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)
		orgID := c.Param("id")

		// The route guard already rejects cross-tenant reads. This re-check is
		// the data-level fallback: an actor whose attachment cannot be
		// resolved gets an empty page, never another tenant's accounts.
		actor := middleware.CurrentUser(c)
		if actor == nil || !actor.CanAccessOrg(orgID) {
			c.JSON(http.StatusOK, gin.H{
				"users": []gin.H{},
				"pagination": gin.H{
					"page":     page,
					"per_page": perPage,
					"total":    0,
				},
			})
			return
		}

		users, total, err := h.userRepo.ListUsersByOrganization(c.Request.Context(), orgID, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list users",
			})
			return
		}

		views := make([]gin.H, 0, len(users))
		for _, u := range users {
			views = append(views, userView(u))
		}

		c.JSON(http.StatusOK, gin.H{
			"users": views,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get user
// @Description  Get an account by ID. Platform owners only.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/users/{id} [get]
// GetUserHandler retrieves a specific account by ID.
// GET /api/admin/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": userView(user),
		})
	}
}

// CreateUserRequest represents the request to create a new account.
type CreateUserRequest struct {
	Email          string  `json:"email" binding:"required,email"`
	Password       string  `json:"password" binding:"required,min=8"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Role           string  `json:"role"`
	OrganizationID *string `json:"organization_id"`
	IsSuperuser    bool    `json:"is_superuser"`
}

// @Summary      Create user
// @Description  Create an account. Non-superuser accounts start unverified and receive a verification email. Platform owners only.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User creation request"
// @Success      201  {object}  map[string]interface{}  "user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or role/organization mismatch"
// @Failure      409  {object}  map[string]interface{}  "Email already registered or organization is full"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/users [post]
// CreateUserHandler creates a new account.
// POST /api/admin/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, err := h.accounts.CreateUser(c.Request.Context(), services.CreateUserInput{
			Email:          req.Email,
			Password:       req.Password,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Role:           req.Role,
			OrganizationID: req.OrganizationID,
			IsSuperuser:    req.IsSuperuser,
		})
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidRoleTenancy):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Role and organization do not match: platform owners have no organization, org admins need one",
				})
			case errors.Is(err, services.ErrNotFound):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Organization not found",
				})
			case errors.Is(err, services.ErrOrgCapacityExceeded):
				c.JSON(http.StatusConflict, gin.H{
					"error": "Organization has no free seats",
				})
			case errors.Is(err, services.ErrDuplicateEmail):
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email is already registered",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to create user",
				})
			}
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user": userView(user),
		})
	}
}

// UpdateUserRequest represents a partial account update. Nil fields are left
// unchanged; clear_organization detaches the account explicitly.
type UpdateUserRequest struct {
	Email             *string `json:"email"`
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	Role              *string `json:"role"`
	OrganizationID    *string `json:"organization_id"`
	ClearOrganization bool    `json:"clear_organization"`
	IsActive          *bool   `json:"is_active"`
	IsSuperuser       *bool   `json:"is_superuser"`
}

// @Summary      Update user
// @Description  Apply a partial update to an account. The role/organization pairing is re-validated before committing. Platform owners only.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "User update request"
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or role/organization mismatch"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Email already in use"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/users/{id} [put]
// UpdateUserHandler applies a partial update to an account.
// PUT /api/admin/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, err := h.accounts.UpdateUser(c.Request.Context(), c.Param("id"), services.UpdateUserInput{
			Email:          req.Email,
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Role:           req.Role,
			OrganizationID: req.OrganizationID,
			ClearOrg:       req.ClearOrganization,
			IsActive:       req.IsActive,
			IsSuperuser:    req.IsSuperuser,
		})
		if err != nil {
			switch {
			case errors.Is(err, services.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"error": "User not found",
				})
			case errors.Is(err, services.ErrInvalidRoleTenancy):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Role and organization do not match: platform owners have no organization, org admins need one",
				})
			case errors.Is(err, services.ErrDuplicateEmail):
				c.JSON(http.StatusConflict, gin.H{
					"error": "Email already in use by another user",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to update user",
				})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": userView(user),
		})
	}
}

// UpdatePasswordRequest carries a replacement password.
type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// @Summary      Reset user password
// @Description  Replace an account's password. Platform owners only.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                 true  "User ID"
// @Param        body  body  UpdatePasswordRequest  true  "New password"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/users/{id}/password [put]
// UpdateUserPasswordHandler replaces an account's password.
// PUT /api/admin/users/:id/password
func (h *UserHandlers) UpdateUserPasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if err := h.accounts.SetPassword(c.Request.Context(), c.Param("id"), req.Password); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "User not found",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update password",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Password updated successfully",
		})
	}
}

// @Summary      Delete user
// @Description  Delete an account by ID. Platform owners only.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/users/{id} [delete]
// DeleteUserHandler deletes an account.
// DELETE /api/admin/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve user",
			})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User not found",
			})
			return
		}

		if err := h.userRepo.DeleteUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete user",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "User deleted successfully",
		})
	}
}
