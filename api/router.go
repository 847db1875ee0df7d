package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trippixn/mediagrab/api/handlers"
	"github.com/trippixn/mediagrab/api/middleware"
	"github.com/trippixn/mediagrab/internal/domain"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	submitter handlers.Submitter,
	history domain.HistoryRepository,
	config *domain.Config,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(config)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(submitter, history, log)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.Download)
			downloads.GET("", downloadHandler.ListHistory)
			downloads.GET("/stats", downloadHandler.GetStats)
		}
	}

	return router
}
