// Package accounts implements the public and session-scoped authentication
// endpoints: password login, email verification, and the profile view.
package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/threateye/threateye-backend/internal/config"
	"github.com/threateye/threateye-backend/internal/db/models"
	"github.com/threateye/threateye-backend/internal/middleware"
	"github.com/threateye/threateye-backend/internal/services"
)

// Handlers bundles the account endpoints.
type Handlers struct {
	cfg      *config.Config
	accounts *services.AccountService
	verify   *services.VerificationService
}

// NewHandlers creates a Handlers instance.
func NewHandlers(cfg *config.Config, accounts *services.AccountService, verify *services.VerificationService) *Handlers {
	return &Handlers{
		cfg:      cfg,
		accounts: accounts,
		verify:   verify,
	}
}

// LoginRequest is the password login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Password login
// @Description  Authenticate with email and password, returning a bearer token and the account profile.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request, invalid credentials, or disabled account"
// @Router       /api/auth/login [post]
// LoginHandler authenticates a user by email and password.
// POST /api/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		user, token, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidCredentials):
				// Same message for unknown email and wrong password.
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid email or password",
				})
			case errors.Is(err, services.ErrAccountDisabled):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Account is disabled",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Login failed",
				})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  userView(user),
		})
	}
}

// VerifyEmailRequest carries the address and submitted code.
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// @Summary      Verify email
// @Description  Consume a 6-digit verification code for the given address. Codes are single-use and expire.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  VerifyEmailRequest  true  "Address and code"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Code mismatch, expired, unknown address, or already verified"
// @Router       /api/auth/verify-email [post]
// VerifyEmailHandler consumes a verification code.
// POST /api/auth/verify-email
func (h *Handlers) VerifyEmailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		_, err := h.verify.Verify(c.Request.Context(), req.Email, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrNotFound):
				// Deliberately vague: this endpoint is unauthenticated, and a
				// precise "no such account" answer would confirm which
				// addresses are registered.
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Verification failed",
				})
			case errors.Is(err, services.ErrAlreadyVerified):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Email is already verified",
				})
			case errors.Is(err, services.ErrCodeMismatch):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Incorrect verification code",
				})
			case errors.Is(err, services.ErrCodeExpired):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Verification code has expired",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Verification failed",
				})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Email verified successfully",
		})
	}
}

// ResendVerificationRequest carries the address to re-issue a code for.
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// @Summary      Resend verification code
// @Description  Issue a fresh verification code, invalidating the previous one, and dispatch it by email.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  ResendVerificationRequest  true  "Address"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Unknown address or already verified"
// @Failure      500  {object}  map[string]interface{}  "Email dispatch failed"
// @Router       /api/auth/resend-verification [post]
// ResendVerificationHandler issues and dispatches a fresh code.
// POST /api/auth/resend-verification
func (h *Handlers) ResendVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResendVerificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		err := h.verify.Resend(c.Request.Context(), req.Email)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrNotFound):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Verification failed",
				})
			case errors.Is(err, services.ErrAlreadyVerified):
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Email is already verified",
				})
			case services.IsExternal(err):
				// The fresh code is persisted; only the send failed.
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Could not send the verification email. Please try again.",
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Verification failed",
				})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Verification code sent",
		})
	}
}

// @Summary      Logout
// @Description  Token-based sessions are stateless; logout is acknowledged so clients can discard the token.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Router       /api/auth/logout [post]
// LogoutHandler acknowledges a logout.
// POST /api/auth/logout
func (h *Handlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Logged out",
		})
	}
}

// @Summary      Current user profile
// @Description  Return the authenticated account's profile.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/auth/profile [get]
// ProfileHandler returns the authenticated user's profile.
// GET /api/auth/profile
func (h *Handlers) ProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user": userView(user),
		})
	}
}

// userView shapes a user for API responses. The password hash and pending
// verification code never leave the server.
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
