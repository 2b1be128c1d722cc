// Package subscription implements the subscription-gating endpoints: the plan
// catalog, checkout initiation, the unauthenticated payment callback, and the
// entitlement status view.
package subscription

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/middleware"
	"github.com/threateye/threateye-backend/internal/services"
)

// Handlers bundles the subscription endpoints.
type Handlers struct {
	subs *services.SubscriptionService
}

// NewHandlers creates a Handlers instance.
func NewHandlers(subs *services.SubscriptionService) *Handlers {
	return &Handlers{subs: subs}
}

// @Summary      List plans
// @Description  Return the purchasable plan catalog ordered by price.
// @Tags         Subscription
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "plans"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/subscription/plans [get]
// PlansHandler lists the plan catalog.
// GET /api/subscription/plans
func (h *Handlers) PlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := h.subs.Plans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list plans",
			})
			return
		}

		views := make([]gin.H, 0, len(plans))
		for _, p := range plans {
			views = append(views, planView(p))
		}
		c.JSON(http.StatusOK, gin.H{
			"plans": views,
		})
	}
}

// InitiateRequest names the plan to purchase, by catalog ID or by the plan's
// machine name (e.g. "basic").
type InitiateRequest struct {
	PlanID string `json:"plan_id"`
	Plan   string `json:"plan"`
}

// @Summary      Initiate checkout
// @Description  Open a hosted checkout session for the caller's organization and return the payment URL.
// @Tags         Subscription
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  InitiateRequest  true  "Plan to purchase"
// @Success      200  {object}  map[string]interface{}  "payment_url"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      403  {object}  map[string]interface{}  "Caller has no organization"
// @Failure      404  {object}  map[string]interface{}  "Plan not found"
// @Failure      500  {object}  map[string]interface{}  "Payment gateway unavailable"
// @Router       /api/subscription/initiate [post]
// InitiateHandler opens a checkout session.
// POST /api/subscription/initiate
func (h *Handlers) InitiateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		var req InitiateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}
		if req.PlanID == "" && req.Plan == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Either plan_id or plan is required",
			})
			return
		}

		planID := req.PlanID
		if planID == "" {
			var err error
			planID, err = h.subs.ResolvePlanID(c.Request.Context(), req.Plan)
			if err != nil {
				if errors.Is(err, services.ErrPlanNotFound) {
					c.JSON(http.StatusNotFound, gin.H{
						"error": "Plan not found",
					})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to initiate checkout",
				})
				return
			}
		}

		paymentURL, err := h.subs.Initiate(c.Request.Context(), user, planID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrNoOrganization):
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Account is not attached to an organization",
				})
			case errors.Is(err, services.ErrPlanNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"error": "Plan not found",
				})
			case services.IsExternal(err):
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Payment gateway is unavailable. Please try again.",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to initiate checkout",
				})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"payment_url": paymentURL,
		})
	}
}

// @Summary      Payment callback
// @Description  Landing endpoint for the gateway's browser redirect after checkout. Always redirects to the frontend; the browser-supplied status is verified server-side before any state change.
// @Tags         Subscription
// @Produce      json
// @Param        pidx    query  string  false  "Gateway payment identifier"
// @Param        status  query  string  false  "Client-reported payment status"
// @Success      302  {object}  string  "Redirects to the frontend success or failure page"
// @Router       /api/subscription/callback [get]
// CallbackHandler processes the gateway redirect.
// GET /api/subscription/callback?pidx=...&status=...
func (h *Handlers) CallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pidx := c.Query("pidx")
		status := c.Query("status")

		target := h.subs.HandleCallback(c.Request.Context(), pidx, status)
		c.Redirect(http.StatusFound, target)
	}
}

// @Summary      Subscription status
// @Description  Return the caller's current entitlement. Platform administrators receive a synthetic unlimited status.
// @Tags         Subscription
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  services.StatusSnapshot
// @Failure      403  {object}  map[string]interface{}  "Caller has no organization"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/subscription/status [get]
// StatusHandler returns the caller's entitlement snapshot.
// GET /api/subscription/status
func (h *Handlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		snapshot, err := h.subs.Status(c.Request.Context(), user)
		if err != nil {
			if errors.Is(err, services.ErrNoOrganization) {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Account is not attached to an organization",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to resolve subscription status",
			})
			return
		}

		c.JSON(http.StatusOK, snapshot)
	}
}

// planView shapes a plan for API responses.
func planView(p *models.SubscriptionPlan) gin.H {
	return gin.H{
		"id":                   p.ID,
		"name":                 p.Name,
		"display_name":         p.DisplayName,
		"max_users":            p.MaxUsers,
		"email_alerts_enabled": p.EmailAlertsEnabled,
		"price":                p.Price,
	}
}
