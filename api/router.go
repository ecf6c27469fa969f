package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/fetch-install-go/api/handlers"
	"github.com/yourusername/fetch-install-go/api/middleware"
	"github.com/yourusername/fetch-install-go/internal/app"
	"github.com/yourusername/fetch-install-go/pkg/logger"
)

// RouterConfig holds everything the HTTP routes depend on
type RouterConfig struct {
	Service        *app.TransferService
	Store          handlers.Pinger
	Logger         *zap.Logger
	Events         *logger.MultiLogger
	LogsDir        string
	DestinationDir string
	Version        string
}

// NewRouter sets up the HTTP router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log, config.Events))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(config.Service, config.Store, config.Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		transferHandler := handlers.NewTransferHandler(config.Service, config.DestinationDir, log)
		transfers := v1.Group("/transfers")
		{
			transfers.POST("", transferHandler.StartTransfer)
			transfers.GET("", transferHandler.ListTransfers)
			transfers.GET("/:target", transferHandler.GetTransfer)
			transfers.POST("/:target/cancel", transferHandler.CancelTransfer)
		}

		records := v1.Group("/records")
		{
			records.GET("", transferHandler.ListRecords)
			records.DELETE("/:version", transferHandler.ForgetRecord)
		}

		eventHandler := handlers.NewEventWebSocketHandler(config.Service, log)
		v1.GET("/events", eventHandler.HandleWebSocket)

		if config.LogsDir != "" {
			logHandler := handlers.NewLogHandler(config.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
