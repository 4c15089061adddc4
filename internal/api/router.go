// Package api wires together the HTTP routes for the security service.
//
// Route grouping:
//   - /v1/security/ carries the audit, detection, and alerting surface:
//     event recording and queries, active alerts and their lifecycle, and
//     the activity report.
//   - /v1/keys/ and /v1/users/:user_id/keys carry API key management:
//     generation, validation, rotation, and deactivation.
//
// Every request flows through the audit middleware, so the service's own
// traffic is part of the event stream it analyses.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/keys"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/middleware"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
)

// Deps bundles the constructed domain components the router exposes over
// HTTP. RedisClient may be nil when the in-memory store is in use; rate
// limiting is then disabled because it needs the shared store to count
// requests across instances.
type Deps struct {
	Store       store.Store
	RedisClient *redis.Client
	Recorder    *security.Recorder
	Alerts      *security.AlertManager
	Keys        *keys.Manager
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	router := gin.New()

	securityHandlers := NewSecurityHandlers(deps.Recorder, deps.Alerts)
	keyHandlers := NewKeyHandlers(deps.Keys)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.RateLimitMiddleware(deps.RedisClient, cfg.RateLimiting))
	router.Use(middleware.AuditMiddleware(deps.Recorder))

	router.GET("/health", healthCheckHandler(deps.Store))
	router.GET("/version", versionHandler())

	v1Security := router.Group("/v1/security")
	{
		v1Security.POST("/events", securityHandlers.RecordEvent)
		v1Security.GET("/events", securityHandlers.SearchEvents)
		v1Security.GET("/events/:id", securityHandlers.GetEvent)
		v1Security.GET("/users/:user_id/events", securityHandlers.UserEvents)
		v1Security.GET("/ips/:ip/events", securityHandlers.IPEvents)

		v1Security.GET("/alerts", securityHandlers.ActiveAlerts)
		v1Security.GET("/alerts/:id", securityHandlers.GetAlert)
		v1Security.PUT("/alerts/:id/status", securityHandlers.UpdateAlertStatus)

		v1Security.GET("/report", securityHandlers.GetReport)
	}

	v1Keys := router.Group("/v1/keys")
	{
		v1Keys.POST("", keyHandlers.CreateKey)
		v1Keys.POST("/validate", keyHandlers.ValidateKey)
		v1Keys.POST("/rotate", keyHandlers.RotateAll)
		v1Keys.DELETE("/:id", keyHandlers.DeactivateKey)
	}

	v1Users := router.Group("/v1/users")
	{
		v1Users.GET("/:user_id/keys", keyHandlers.UserKeys)
		v1Users.POST("/:user_id/keys/rotate", keyHandlers.RotateUserKeys)
	}

	return router
}

// @Summary      Health check
// @Description  Returns the health status of the service, including store connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: store connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service. A probe read
// against a known-absent key exercises the store without creating state;
// ErrNotFound is the healthy answer.
func healthCheckHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := st.Get(c.Request.Context(), "health:probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "store connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
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

// LoggerMiddleware provides structured request logging via slog. The output
// format (json or text) follows the global handler configured in
// telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
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
}
