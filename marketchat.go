// Package marketchat wires the marketplace chat service: an authenticated
// WebSocket endpoint carrying the conversation protocol, backed by MongoDB,
// plus health and metrics endpoints for operations.
package marketchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/real-rm/marketchat/internal/auth"
	"github.com/real-rm/marketchat/internal/authz"
	"github.com/real-rm/marketchat/internal/config"
	"github.com/real-rm/marketchat/internal/constants"
	"github.com/real-rm/marketchat/internal/hub"
	"github.com/real-rm/marketchat/internal/metrics"
	"github.com/real-rm/marketchat/internal/presence"
	"github.com/real-rm/marketchat/internal/ratelimit"
	"github.com/real-rm/marketchat/internal/router"
	"github.com/real-rm/marketchat/internal/storage"
	"github.com/real-rm/marketchat/internal/util"
	"github.com/real-rm/marketchat/internal/websocket"
)

var (
	// Global references for graceful shutdown
	globalWSHandler     *websocket.Handler
	globalEventRouter   *router.Router
	globalPublicLimiter *ratelimit.EventLimiter
	globalLogger        zerolog.Logger
	globalActive        bool
	shutdownMu          sync.Mutex
)

// Register registers the chat service routes on the given Gin engine.
//
// Parameters:
//   - r: Gin router for registering HTTP and WebSocket endpoints
//   - cfg: Validated service configuration
//   - logger: Logger for structured logging
//   - client: Connected MongoDB client for data persistence
//
// Returns:
//   - error: Any error that occurred during registration
func Register(r *gin.Engine, cfg *config.Config, logger zerolog.Logger, client *mongo.Client) error {
	serviceLogger := logger.With().Str("service", "marketchat").Logger()
	serviceLogger.Info().Msg("Initializing marketchat service")

	// No else needed: early return pattern (guard clause)
	if err := cfg.Validate(); err != nil {
		serviceLogger.Error().Err(err).Msg("Configuration validation failed")
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	store := storage.NewStore(client.Database(cfg.Database.Database), serviceLogger)

	// Ensure MongoDB indexes are created for optimal query performance
	indexCtx, indexCancel := util.NewTimeoutContext(constants.LongContextTimeout)
	defer indexCancel()
	// No else needed: optional operation (non-critical index creation)
	if err := store.EnsureIndexes(indexCtx); err != nil {
		serviceLogger.Warn().Err(err).Msg("Failed to create MongoDB indexes")
		// Don't fail startup - indexes can be created manually if needed
	}

	roomHub := hub.New(serviceLogger)
	presenceTracker := presence.NewTracker(roomHub, serviceLogger)
	authorizer := authz.NewAuthorizer(store, store, serviceLogger)
	eventRouter := router.NewRouter(store, store, store, authorizer, presenceTracker, roomHub, serviceLogger)

	verifier := auth.NewVerifier(cfg.Server.JWTSecret, constants.CredentialCookieName)

	wsHandler := websocket.NewHandler(verifier, eventRouter, serviceLogger, cfg.Server.MaxMessageSize, cfg.Server.MaxConnsPerUser)

	// Configure allowed origins for WebSocket connections
	// SECURITY: When no origins are configured, ALL origins are accepted.
	// This is acceptable only in development. In production, always configure
	// ALLOWED_ORIGINS to prevent cross-site WebSocket hijacking.
	// No else needed: optional operation (configuration with fallback logging)
	if len(cfg.Server.AllowedOrigins) > 0 {
		wsHandler.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	} else {
		serviceLogger.Warn().Msg("No allowed origins configured, allowing all origins (development mode)")
	}

	// Create public endpoint rate limiter (per-IP, prevents abuse of healthz/readyz/metrics)
	publicLimiter := ratelimit.NewEventLimiter(time.Minute, constants.PublicEndpointRate)

	// Start background cleanup goroutines only after all validation is complete,
	// so we don't leak goroutines if Register() returns an error.
	eventRouter.StartCleanup()
	publicLimiter.StartCleanup()

	// Store global references for graceful shutdown.
	// Stop any previously-registered instances to prevent goroutine leaks
	// when Register() is called multiple times (tests, hot-reload).
	shutdownMu.Lock()
	if globalActive {
		globalEventRouter.StopCleanup()
		globalPublicLimiter.StopCleanup()
		_ = globalWSHandler.ShutdownWithContext(context.Background())
	}
	globalWSHandler = wsHandler
	globalEventRouter = eventRouter
	globalPublicLimiter = publicLimiter
	globalLogger = serviceLogger
	globalActive = true
	shutdownMu.Unlock()

	// Configure CORS middleware
	// No else needed: optional operation (CORS configuration with fallback logging)
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig := cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}

		r.Use(cors.New(corsConfig))

		serviceLogger.Info().
			Strs("allowed_origins", cfg.Server.AllowedOrigins).
			Bool("allow_credentials", true).
			Msg("CORS middleware configured")
	} else {
		serviceLogger.Warn().Msg("No CORS origins configured, CORS middleware not enabled")
	}

	// Apply security headers middleware
	r.Use(securityHeadersMiddleware())

	// Apply metrics middleware to record HTTP request duration
	r.Use(metricsMiddleware())

	serviceLogger.Info().Str("prefix", cfg.Server.PathPrefix).Msg("Using HTTP path prefix")

	// Register routes
	chatGroup := r.Group(cfg.Server.PathPrefix)
	{
		// WebSocket endpoint - use Gin context adapter
		chatGroup.GET("/ws", func(c *gin.Context) {
			// If the credential is in a query param, move it to the
			// Authorization header and redact it from the URL so it never
			// appears in Gin access logs.
			if token := c.Query("token"); token != "" {
				if c.Request.Header.Get("Authorization") == "" {
					c.Request.Header.Set("Authorization", "Bearer "+token)
				}
				q := c.Request.URL.Query()
				q.Del("token")
				c.Request.URL.RawQuery = q.Encode()
			}
			wsHandler.HandleWebSocket(c.Writer, c.Request)
		})

		// Health check endpoints (rate limited to prevent abuse)
		chatGroup.GET("/healthz", publicRateLimitMiddleware(publicLimiter, serviceLogger), handleHealthCheck)
		chatGroup.GET("/readyz", publicRateLimitMiddleware(publicLimiter, serviceLogger), handleReadyCheck(store, serviceLogger))

		// Prometheus metrics endpoint
		chatGroup.GET("/metrics/prometheus",
			publicRateLimitMiddleware(publicLimiter, serviceLogger),
			gin.WrapH(promhttp.Handler()),
		)
	}

	serviceLogger.Info().
		Str("websocket_endpoint", cfg.Server.PathPrefix+"/ws").
		Str("health_endpoints", cfg.Server.PathPrefix+"/healthz, "+cfg.Server.PathPrefix+"/readyz").
		Str("metrics_endpoint", cfg.Server.PathPrefix+"/metrics/prometheus").
		Msg("Marketchat service registered successfully")

	return nil
}

// securityHeadersMiddleware adds standard HTTP security headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// metricsMiddleware records HTTP request duration for Prometheus monitoring
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"endpoint": c.FullPath(),
			"method":   c.Request.Method,
		}).Observe(time.Since(start).Seconds())
	}
}

// publicRateLimitMiddleware creates a Gin middleware for rate limiting public
// endpoints (healthz, readyz, metrics) by client IP to prevent abuse.
func publicRateLimitMiddleware(limiter *ratelimit.EventLimiter, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Use Gin's ClientIP() which respects trusted proxies to prevent X-Forwarded-For spoofing
		clientIP := c.ClientIP()

		// No else needed: early return pattern (guard clause)
		if !limiter.Allow(clientIP) {
			logger.Warn().
				Str("client_ip", clientIP).
				Str("endpoint", c.Request.URL.Path).
				Msg("Public endpoint rate limit exceeded")

			c.Header("Retry-After", "1")
			c.JSON(constants.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests, please retry later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// handleHealthCheck returns a handler for liveness probe endpoint.
// This endpoint checks if the application is alive and should be restarted if it fails.
func handleHealthCheck(c *gin.Context) {
	// Basic liveness check - if we can respond, we're alive
	c.JSON(constants.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyCheck returns a handler for readiness probe endpoint.
// This endpoint checks if the application is ready to serve traffic by
// verifying the database connection.
func handleReadyCheck(store *storage.Store, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]interface{})
		allReady := true

		ctx, cancel := util.NewTimeoutContext(constants.HealthCheckTimeout)
		defer cancel()

		// No else needed: optional operation (health check result recording)
		if err := store.Ping(ctx); err != nil {
			// Log detailed error server-side
			logger.Warn().Err(err).Msg("MongoDB health check failed")

			// Send generic error to client
			checks["mongodb"] = map[string]interface{}{
				"status": "not ready",
				"reason": "Database connectivity check failed",
			}
			allReady = false
		} else {
			checks["mongodb"] = map[string]interface{}{
				"status": "ready",
			}
		}

		// Determine overall status
		status := "ready"
		statusCode := constants.StatusOK
		// No else needed: optional operation (status code adjustment based on health)
		if !allReady {
			status = "not ready"
			statusCode = constants.StatusServiceUnavailable
		}

		c.JSON(statusCode, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}

// Shutdown gracefully shuts down the chat service.
// It stops background cleanup goroutines and closes all active WebSocket
// connections. It respects the context deadline and will force shutdown if
// the deadline is exceeded.
func Shutdown(ctx context.Context) error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()

	// No else needed: early return pattern (guard clause)
	if !globalActive {
		return nil
	}

	globalLogger.Info().Msg("Starting graceful shutdown of marketchat service")

	globalEventRouter.StopCleanup()
	globalPublicLimiter.StopCleanup()

	// Close all WebSocket connections with context deadline
	// No else needed: early return pattern (guard clause)
	if err := globalWSHandler.ShutdownWithContext(ctx); err != nil {
		globalLogger.Warn().Err(err).Msg("WebSocket handler shutdown error")
		return err
	}

	globalActive = false
	globalLogger.Info().Msg("Marketchat service shutdown complete")
	return nil
}
