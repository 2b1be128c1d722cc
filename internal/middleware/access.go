// access.go implements role-based authorization middleware.
//
// Roles are read from the user row loaded by AuthMiddleware, not from the
// token: when an account is demoted or disabled the change takes effect on
// the next request without invalidating or reissuing tokens.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/db/models"
)

// RequireRole allows the request through only if the authenticated user holds
// one of the listed roles. Superusers pass regardless of role.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		if user.IsSuperuser {
			c.Next()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient permissions",
		})
	}
}

// RequirePlatformOwner restricts a route to platform administrators.
func RequirePlatformOwner() gin.HandlerFunc {
	return RequireRole(models.RolePlatformOwner)
}

// RequireOrgAccess allows the request through only if the authenticated user
// may read data belonging to the organization named by the :id path parameter.
// Platform owners and superusers pass for any organization; org admins pass
// only for their own.
func RequireOrgAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		orgID := c.Param(param)
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "Missing organization ID",
			})
			return
		}

		if !user.CanAccessOrg(orgID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}

		c.Next()
	}
}
