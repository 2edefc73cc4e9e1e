package infrastructure

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vitovidale/video-insight-service/logger"
	"github.com/vitovidale/video-insight-service/usecase"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Videos         *VideoHandlers
	Guests         *GuestHandlers
	Resolver       *usecase.IdentityResolver
	Metrics        http.Handler
	Health         map[string]HealthCheck
	AllowedOrigins []string
	Log            *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Log))

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 || slices.Contains(cfg.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AddAllowHeaders("Authorization", GuestHeader)
	router.Use(cors.New(corsCfg))

	router.GET("/health", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	guest := router.Group("/guest")
	guest.POST("/session", cfg.Guests.CreateSession)
	guest.POST("/convert", cfg.Guests.ConvertGuest)

	videos := router.Group("/videos", IdentityMiddleware(cfg.Resolver))
	videos.POST("", cfg.Videos.SubmitVideo)
	videos.GET("", cfg.Videos.ListVideos)
	videos.GET("/:video_id", cfg.Videos.GetVideo)
	videos.DELETE("/:video_id", cfg.Videos.DeleteVideo)

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "error: " + err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "connected"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
