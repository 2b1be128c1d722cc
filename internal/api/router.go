// Package api wires together all HTTP routes for the ThreatEye backend.
//
// Route grouping philosophy:
//   - /api/auth/login, verify-email, resend-verification and the payment
//     callback are unauthenticated by nature: login issues the token the rest
//     of the API requires, verification is performed by users who cannot log
//     their email client into the API, and the callback is a browser redirect
//     from the payment gateway. All of them sit behind strict rate limits.
//   - Everything else under /api/ requires a bearer token; /api/admin/ further
//     requires the platform_owner role.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/threateye/threateye-backend/internal/api/accounts"
	"github.com/threateye/threateye-backend/internal/api/admin"
	"github.com/threateye/threateye-backend/internal/api/subscription"
	"github.com/threateye/threateye-backend/internal/config"
	"github.com/threateye/threateye-backend/internal/db/repositories"
	"github.com/threateye/threateye-backend/internal/jobs"
	"github.com/threateye/threateye-backend/internal/mailer"
	"github.com/threateye/threateye-backend/internal/middleware"
	"github.com/threateye/threateye-backend/internal/payment"
	"github.com/threateye/threateye-backend/internal/services"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	expiryJob    *jobs.SubscriptionExpiryJob
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.expiryJob != nil {
		bg.expiryJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Wrap *sql.DB with sqlx for the subscription-side repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	subRepo := repositories.NewSubscriptionRepository(sqlxDB)
	planRepo := repositories.NewPlanRepository(sqlxDB)

	// Outbound mail: nil when notifications are disabled, in which case the
	// verification service logs the dispatch instead of sending it.
	var mail mailer.Mailer
	if cfg.Notifications.Enabled {
		mail = mailer.NewSMTPMailer(&cfg.Notifications.SMTP)
	}

	gateway := payment.NewKhaltiClient(&cfg.Payment.Khalti)

	// Services
	verificationSvc := services.NewVerificationService(userRepo, mail, cfg.Auth.VerificationCodeTTL)
	accountSvc := services.NewAccountService(userRepo, orgRepo, verificationSvc, cfg.Auth.TokenExpiry)
	subscriptionSvc := services.NewSubscriptionService(
		subRepo, planRepo, orgRepo, gateway,
		cfg.Server.GetPublicURL(), cfg.Frontend.URL,
	)

	// Start the subscription expiry sweep
	expiryJob := jobs.NewSubscriptionExpiryJob(subRepo, planRepo, orgRepo, userRepo, mail, &cfg.Subscriptions)
	expiryJob.Start()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Handlers
	accountHandlers := accounts.NewHandlers(cfg, accountSvc, verificationSvc)
	subscriptionHandlers := subscription.NewHandlers(subscriptionSvc)
	userHandlers := admin.NewUserHandlers(db, accountSvc)
	orgHandlers := admin.NewOrganizationHandlers(db)
	auditHandlers := admin.NewAuditLogHandlers(db)

	bg := &BackgroundServices{expiryJob: expiryJob}

	var generalLimiter, authLimiter, callbackLimiter *middleware.RateLimiter
	if cfg.Security.RateLimiting.Enabled {
		generalLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
		authLimiter = middleware.NewRateLimiter(middleware.AuthRateLimitConfig())
		callbackLimiter = middleware.NewRateLimiter(middleware.CallbackRateLimitConfig())
		bg.rateLimiters = []*middleware.RateLimiter{generalLimiter, authLimiter, callbackLimiter}
	}

	// Public auth endpoints: strict rate limits, no token.
	publicAuth := router.Group("/api/auth")
	if authLimiter != nil {
		publicAuth.Use(middleware.RateLimitMiddleware(authLimiter))
	}
	{
		publicAuth.POST("/login", accountHandlers.LoginHandler())
		publicAuth.POST("/verify-email", accountHandlers.VerifyEmailHandler())
		publicAuth.POST("/resend-verification", accountHandlers.ResendVerificationHandler())
	}

	// Payment gateway browser redirect: unauthenticated by nature.
	callback := router.Group("/api/subscription")
	if callbackLimiter != nil {
		callback.Use(middleware.RateLimitMiddleware(callbackLimiter))
	}
	{
		callback.GET("/callback", subscriptionHandlers.CallbackHandler())
	}

	// Authenticated endpoints. The limiter runs before token validation so an
	// unauthenticated flood is shed without touching the database.
	authed := router.Group("/api")
	if generalLimiter != nil {
		authed.Use(middleware.RateLimitMiddleware(generalLimiter))
	}
	authed.Use(middleware.AuthMiddleware(userRepo))
	if cfg.Audit.Enabled {
		authed.Use(middleware.AuditMiddleware(auditRepo, &cfg.Audit))
	}
	{
		authed.POST("/auth/logout", accountHandlers.LogoutHandler())
		authed.GET("/auth/profile", accountHandlers.ProfileHandler())

		authed.GET("/subscription/plans", subscriptionHandlers.PlansHandler())
		authed.POST("/subscription/initiate", subscriptionHandlers.InitiateHandler())
		authed.GET("/subscription/status", subscriptionHandlers.StatusHandler())

		// Tenant-scoped user listing: org admins see their own organization,
		// platform administrators any.
		authed.GET("/organizations/:id/users",
			middleware.RequireOrgAccess("id"),
			userHandlers.ListOrganizationUsersHandler())
	}

	// Platform administration
	adminGroup := authed.Group("/admin")
	adminGroup.Use(middleware.RequirePlatformOwner())
	{
		adminGroup.GET("/users", userHandlers.ListUsersHandler())
		adminGroup.POST("/users", userHandlers.CreateUserHandler())
		adminGroup.GET("/users/:id", userHandlers.GetUserHandler())
		adminGroup.PUT("/users/:id", userHandlers.UpdateUserHandler())
		adminGroup.PUT("/users/:id/password", userHandlers.UpdateUserPasswordHandler())
		adminGroup.DELETE("/users/:id", userHandlers.DeleteUserHandler())

		adminGroup.GET("/organizations", orgHandlers.ListOrganizationsHandler())
		adminGroup.POST("/organizations", orgHandlers.CreateOrganizationHandler())
		adminGroup.GET("/organizations/:id", orgHandlers.GetOrganizationHandler())
		adminGroup.PUT("/organizations/:id", orgHandlers.UpdateOrganizationHandler())
		adminGroup.DELETE("/organizations/:id", orgHandlers.DeleteOrganizationHandler())

		adminGroup.GET("/audit-logs", auditHandlers.ListAuditLogsHandler())
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service. Checks database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: database not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
