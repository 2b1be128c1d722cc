// audit_logs.go implements the platform-owner view over the audit trail.
package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/db/repositories"
)

// AuditLogHandlers handles audit trail endpoints.
type AuditLogHandlers struct {
	db        *sql.DB
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance.
func NewAuditLogHandlers(db *sql.DB) *AuditLogHandlers {
	return &AuditLogHandlers{
		db:        db,
		auditRepo: repositories.NewAuditRepository(db),
	}
}

// @Summary      List audit logs
// @Description  Get a paginated, filterable view of the audit trail, newest first. Platform owners only.
// @Tags         Audit
// @Security     Bearer
// @Produce      json
// @Param        page             query  int     false  "Page number (default 1)"
// @Param        per_page         query  int     false  "Items per page, max 100 (default 20)"
// @Param        user_id          query  string  false  "Filter by acting user"
// @Param        organization_id  query  string  false  "Filter by organization"
// @Param        action           query  string  false  "Filter by action"
// @Param        resource_type    query  string  false  "Filter by resource type"
// @Param        start_date       query  string  false  "RFC 3339 lower bound on created_at"
// @Param        end_date         query  string  false  "RFC 3339 upper bound on created_at"
// @Success      200  {object}  map[string]interface{}  "audit_logs, pagination"
// @Failure      400  {object}  map[string]interface{}  "Malformed date filter"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/admin/audit-logs [get]
// ListAuditLogsHandler lists audit entries with filters.
// GET /api/admin/audit-logs?page=1&per_page=20&action=...
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		var filters repositories.AuditFilters
		if v := c.Query("user_id"); v != "" {
			filters.UserID = &v
		}
		if v := c.Query("organization_id"); v != "" {
			filters.OrganizationID = &v
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("resource_type"); v != "" {
			filters.ResourceType = &v
		}
		if v := c.Query("start_date"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "start_date must be RFC 3339",
				})
				return
			}
			filters.StartDate = &ts
		}
		if v := c.Query("end_date"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "end_date must be RFC 3339",
				})
				return
			}
			filters.EndDate = &ts
		}

		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list audit logs",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}
