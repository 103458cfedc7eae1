package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/api/handler"
	"github.com/qs3c/site_compare_server/internal/api/middleware"
)

type Router struct {
	streamHandler    *handler.StreamHandler
	exportHandler    *handler.ExportHandler
	batchHandler     *handler.BatchHandler
	websocketHandler *handler.WebSocketHandler
	healthHandler    *handler.HealthHandler
	cfg              *config.Config
}

func NewRouter(
	streamHandler *handler.StreamHandler,
	exportHandler *handler.ExportHandler,
	batchHandler *handler.BatchHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		streamHandler:    streamHandler,
		exportHandler:    exportHandler,
		batchHandler:     batchHandler,
		websocketHandler: websocketHandler,
		healthHandler:    healthHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", r.healthHandler.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 事件流
	engine.GET("/stream", r.streamHandler.Stream)

	api := engine.Group("/api/v1")
	{
		api.GET("/stream", r.streamHandler.Stream)
		api.POST("/stream/:batch_id/stop", r.streamHandler.Stop)

		api.GET("/export", r.exportHandler.Export)
		api.GET("/export.xlsx", r.exportHandler.Export)

		// 异步批次
		batches := api.Group("/batches")
		{
			batches.POST("", r.batchHandler.Create)
			batches.GET("/:id", r.batchHandler.Get)
		}

		api.GET("/ws", r.websocketHandler.Handle)
	}

	return engine
}
