package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"collab-engine/internal/config"
	"collab-engine/internal/engine"
	"collab-engine/internal/handler"
	"collab-engine/internal/metrics"
	"collab-engine/internal/middleware"
	"collab-engine/internal/registry"
	"collab-engine/internal/session"
	"collab-engine/internal/storage"
	"collab-engine/internal/websocket"
)

// Setup wires middleware, handlers and routes into a gin engine.
func Setup(
	cfg *config.Config,
	reg *registry.Registry,
	eng *engine.Engine,
	sessions *session.Manager,
	gateway *websocket.Gateway,
	store storage.Store,
	m *metrics.Metrics,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(middleware.Metrics(m))

	workspaceHandler := handler.NewWorkspaceHandler(reg, logger)
	operationHandler := handler.NewOperationHandler(eng, logger)
	wsHandler := handler.NewWSHandler(gateway, sessions, cfg.Auth.SecretKey, logger)
	healthHandler := handler.NewHealthHandler(reg, store)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group(cfg.Server.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// Websocket carries its token in the query string.
		api.GET("/ws", wsHandler.Handle)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(cfg.Auth.SecretKey))
		{
			authenticated.POST("/workspaces", workspaceHandler.Create)
			authenticated.POST("/workspaces/:id/join", workspaceHandler.Join)
			authenticated.POST("/workspaces/:id/invites", workspaceHandler.CreateInvite)
			authenticated.DELETE("/workspaces/:id", workspaceHandler.Delete)
			authenticated.GET("/workspaces/:id/snapshot", workspaceHandler.Snapshot)
			authenticated.POST("/workspaces/:id/conflicts/:operationId/resolve", operationHandler.Resolve)

			authenticated.POST("/sessions/:sessionId/operations", operationHandler.Submit)
			authenticated.POST("/sessions/:sessionId/leave", workspaceHandler.Leave)

			authenticated.GET("/analytics", operationHandler.Analytics)
		}
	}

	return r
}
