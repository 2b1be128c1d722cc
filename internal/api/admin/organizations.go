// organizations.go implements platform-owner handlers for tenant management.
package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
)

// OrganizationHandlers handles organization management endpoints.
type OrganizationHandlers struct {
	db       *sql.DB
	orgRepo  *repositories.OrganizationRepository
	userRepo *repositories.UserRepository
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance.
func NewOrganizationHandlers(db *sql.DB) *OrganizationHandlers {
	return &OrganizationHandlers{
		db:       db,
		orgRepo:  repositories.NewOrganizationRepository(db),
		userRepo: repositories.NewUserRepository(db),
	}
}

func orgView(o *models.Organization) gin.H {
	return gin.H{
		"id":                o.ID,
		"name":              o.Name,
		"is_active":         o.IsActive,
		"subscription_tier": o.SubscriptionTier,
		"max_users":         o.MaxUsers,
		"created_at":        o.CreatedAt,
		"updated_at":        o.UpdatedAt,
	}
}

// @Summary      List organizations
// @Description  Get a paginated list of tenants. Platform owners only.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "organizations, pagination"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/organizations [get]
// ListOrganizationsHandler lists tenants with pagination.
// GET /api/admin/organizations?page=1&per_page=20
func (h *OrganizationHandlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		orgs, total, err := h.orgRepo.ListOrganizations(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list organizations",
			})
			return
		}

		views := make([]gin.H, 0, len(orgs))
		for _, o := range orgs {
			views = append(views, orgView(o))
		}

		c.JSON(http.StatusOK, gin.H{
			"organizations": views,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get organization
// @Description  Get a tenant by ID along with its current active-seat usage. Platform owners only.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "organization, active_users"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/organizations/{id} [get]
// GetOrganizationHandler retrieves a tenant with seat usage.
// GET /api/admin/organizations/:id
func (h *OrganizationHandlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		org, err := h.orgRepo.GetOrganizationByID(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		activeUsers, err := h.userRepo.CountActiveByOrganization(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to count organization users",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organization": orgView(org),
			"active_users": activeUsers,
		})
	}
}

// CreateOrganizationRequest represents the request to create a tenant.
type CreateOrganizationRequest struct {
	Name     string `json:"name" binding:"required"`
	MaxUsers int    `json:"max_users"`
}

// @Summary      Create organization
// @Description  Create a tenant on the free tier with the default seat limit unless overridden. Platform owners only.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateOrganizationRequest  true  "Organization creation request"
// @Success      201  {object}  map[string]interface{}  "organization"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "Name already taken"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/organizations [post]
// CreateOrganizationHandler creates a tenant.
// POST /api/admin/organizations
func (h *OrganizationHandlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		existing, err := h.orgRepo.GetOrganizationByName(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check organization name",
			})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Organization name already taken",
			})
			return
		}

		org := &models.Organization{
			Name:             req.Name,
			IsActive:         true,
			SubscriptionTier: models.TierFree,
			MaxUsers:         req.MaxUsers,
		}
		if org.MaxUsers <= 0 {
			org.MaxUsers = models.DefaultMaxUsers
		}

		if err := h.orgRepo.CreateOrganization(c.Request.Context(), org); err != nil {
			if repositories.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Organization name already taken",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create organization",
			})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"organization": orgView(org),
		})
	}
}

// UpdateOrganizationRequest represents a partial tenant update.
type UpdateOrganizationRequest struct {
	Name             *string `json:"name"`
	IsActive         *bool   `json:"is_active"`
	SubscriptionTier *string `json:"subscription_tier"`
	MaxUsers         *int    `json:"max_users"`
}

// @Summary      Update organization
// @Description  Apply a partial update to a tenant. Platform owners only.
// @Tags         Organizations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                     true  "Organization ID"
// @Param        body  body  UpdateOrganizationRequest  true  "Organization update request"
// @Success      200  {object}  map[string]interface{}  "organization"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown tier"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/organizations/{id} [put]
// UpdateOrganizationHandler applies a partial update to a tenant.
// PUT /api/admin/organizations/:id
func (h *OrganizationHandlers) UpdateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateOrganizationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		org, err := h.orgRepo.GetOrganizationByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		if req.Name != nil {
			org.Name = *req.Name
		}
		if req.IsActive != nil {
			org.IsActive = *req.IsActive
		}
		if req.SubscriptionTier != nil {
			if !models.ValidTier(*req.SubscriptionTier) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Unknown subscription tier",
				})
				return
			}
			org.SubscriptionTier = *req.SubscriptionTier
		}
		if req.MaxUsers != nil {
			if *req.MaxUsers < 1 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "max_users must be at least 1",
				})
				return
			}
			org.MaxUsers = *req.MaxUsers
		}

		if err := h.orgRepo.UpdateOrganization(c.Request.Context(), org); err != nil {
			if repositories.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{
					"error": "Organization name already taken",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to update organization",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"organization": orgView(org),
		})
	}
}

// @Summary      Delete organization
// @Description  Delete a tenant by ID. Attached users and the subscription row go with it. Platform owners only.
// @Tags         Organizations
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Organization ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "Organization not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/organizations/{id} [delete]
// DeleteOrganizationHandler deletes a tenant.
// DELETE /api/admin/organizations/:id
func (h *OrganizationHandlers) DeleteOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.Param("id")

		org, err := h.orgRepo.GetOrganizationByID(c.Request.Context(), orgID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve organization",
			})
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Organization not found",
			})
			return
		}

		if err := h.orgRepo.DeleteOrganization(c.Request.Context(), orgID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete organization",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Organization deleted successfully",
		})
	}
}
