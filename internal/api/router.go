package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marinewatch/marine/internal/api/handler"
	"github.com/marinewatch/marine/internal/api/middleware"
	"github.com/marinewatch/marine/internal/notify"
	"github.com/marinewatch/marine/internal/service"
)

// RouterConfig carries the HTTP-facing knobs.
type RouterConfig struct {
	Mode             string
	CORS             middleware.CORSConfig
	KeepaliveSeconds int
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	analysis *service.AnalysisService,
	hub *notify.Hub,
	cfg RouterConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	videoHandler := handler.NewVideoHandler(analysis)
	eventsHandler := handler.NewEventsHandler(hub, time.Duration(cfg.KeepaliveSeconds)*time.Second)
	reportHandler := handler.NewReportHandler(analysis)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Chunked uploads
		v1.POST("/videos/chunks", videoHandler.SubmitChunk)
		v1.POST("/videos/:video_id/analyze", videoHandler.TriggerAnalysis)
		v1.GET("/videos/:video_id/status", videoHandler.Status)
		v1.GET("/videos/:video_id/artifact", videoHandler.DownloadArtifact)

		// Whole-video submissions
		v1.POST("/videos", videoHandler.SubmitWholeVideo)

		// Live notifications
		v1.GET("/events", eventsHandler.Subscribe)

		// Flagged history
		v1.GET("/reports", reportHandler.ListFlagged)
	}

	return r
}
