// audit.go provides Gin middleware that records authenticated write operations
// to the audit log.
package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/config"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/safego"
)

// AuditMiddleware logs authenticated actions to the database. By default only
// successful write operations are recorded; the config can widen that to read
// operations and failed requests.
func AuditMiddleware(auditRepo *repositories.AuditRepository, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request first
		c.Next()

		if c.Request.Method == "OPTIONS" {
			return
		}

		logReadOps := auditCfg != nil && auditCfg.LogReadOperations
		logFailedReqs := auditCfg != nil && auditCfg.LogFailedRequests

		isReadOp := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400

		if isReadOp && !logReadOps {
			return
		}
		if isFailed && !logFailedReqs {
			return
		}

		userID, _ := c.Get("user_id")
		authMethod, _ := c.Get("auth_method")

		action := c.Request.Method + " " + c.Request.URL.Path
		ipAddress := c.ClientIP()

		auditLog := &models.AuditLog{
			Action:    action,
			IPAddress: &ipAddress,
			CreatedAt: time.Now(),
		}

		if userID != nil {
			if uid, ok := userID.(string); ok {
				auditLog.UserID = &uid
			}
		}

		// Tenancy attribution comes from the authenticated user, not a header.
		if user := CurrentUser(c); user != nil && user.OrganizationID != nil {
			auditLog.OrganizationID = user.OrganizationID
		}

		if rt := resourceTypeFromPath(c.Request.URL.Path); rt != "" {
			auditLog.ResourceType = &rt
		}

		metadata := map[string]interface{}{
			"status_code": c.Writer.Status(),
		}
		if authMethod != nil {
			metadata["auth_method"] = authMethod
		}
		auditLog.Metadata = metadata

		// Async write so the response is never held up by audit persistence.
		// The 5-second timeout prevents leaked goroutines if the DB stalls.
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := auditRepo.CreateAuditLog(ctx, auditLog); err != nil {
				slog.Error("failed to create audit log", "action", auditLog.Action, "error", err)
			}
		})
	}
}

// resourceTypeFromPath classifies a request path into the resource it touches.
func resourceTypeFromPath(path string) string {
	switch {
	case strings.Contains(path, "/users"):
		return "user"
	case strings.Contains(path, "/organizations"):
		return "organization"
	case strings.Contains(path, "/subscription"):
		return "subscription"
	case strings.Contains(path, "/verify-email"), strings.Contains(path, "/resend-verification"):
		return "verification"
	case strings.Contains(path, "/auth"):
		return "session"
	default:
		return ""
	}
}
