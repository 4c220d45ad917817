package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"cafetrack/internal/handler"
	"cafetrack/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	TrackingHandler *handler.TrackingHandler
	RiderHandler    *handler.RiderHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
	JWTSecret       string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.JWTSecret))
	{
		// Rider routes.
		riders := v1.Group("/riders")
		{
			riders.POST("/register", deps.RiderHandler.Register)
			riders.POST("/:id/location", deps.RiderHandler.UpdateLocation)
			riders.POST("/:id/offline", deps.RiderHandler.Offline)
		}

		// Tracking routes.
		track := v1.Group("/track")
		{
			track.POST("/:orderID/start", deps.TrackingHandler.Start)
			track.GET("/:orderID", deps.TrackingHandler.Get)
			track.POST("/:orderID/stop", deps.TrackingHandler.Stop)
			track.GET("/:orderID/ws", deps.TrackingHandler.Stream)
			track.GET("/:orderID/history", deps.TrackingHandler.History)
		}
	}

	return router
}
