package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leadscope/leadscope/internal/delivery/http/middleware"
	"github.com/leadscope/leadscope/internal/engine"
	"github.com/leadscope/leadscope/internal/ratelimit"
)

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(
	eng *engine.Engine,
	limiter *ratelimit.Limiter,
	logger *zap.Logger,
	maxBodyBytes int64,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.BodySizeLimit(maxBodyBytes))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Health check (no rate limiting)
		healthHandler := NewHealthHandler(logger)
		v1.GET("/health", healthHandler.Health)

		jobHandler := NewJobHandler(eng, logger)
		v1.POST("/qualifications",
			middleware.RateLimit(limiter, ratelimit.CategoryQualification), jobHandler.Qualify)
		v1.POST("/domains/analyze",
			middleware.RateLimit(limiter, ratelimit.CategoryDomainAnalysis), jobHandler.Analyze)
		v1.POST("/profiles/generate",
			middleware.RateLimit(limiter, ratelimit.CategoryGeneral), jobHandler.Generate)

		v1.GET("/jobs/:id", jobHandler.GetByID)
		v1.DELETE("/jobs/:id", jobHandler.Cancel)
		v1.GET("/stats", jobHandler.Stats)

		// WebSocket for real-time updates
		wsHandler := NewWebSocketHandler(eng, logger)
		v1.GET("/jobs/:id/stream", wsHandler.Stream)
	}

	return router
}
