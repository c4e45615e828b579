package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/api/handlers"
	"github.com/siteharbor/siteharbor/internal/api/middleware"
	"github.com/siteharbor/siteharbor/internal/config"
	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/rollout"
	"github.com/siteharbor/siteharbor/internal/tenants"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
}

func NewServer(cfg *config.Config, repo *db.Repository, tenantService *tenants.Service, rolloutCtrl *rollout.Controller, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
	}

	h := handlers.NewHandler(repo, tenantService, rolloutCtrl, logger)
	server.setupRoutes(h)
	return server
}

func (s *Server) setupRoutes(h *handlers.Handler) {
	s.Router.GET("/health", handlers.HealthCheck)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret))

	// Site lifecycle
	{
		api.GET("/sites", h.ListSites)
		api.POST("/sites", h.CreateSite)
		api.GET("/sites/:id", h.GetSite)
		api.DELETE("/sites/:id", h.DeleteSite)
		api.POST("/sites/:id/start", h.StartSite)
		api.POST("/sites/:id/stop", h.StopSite)
		api.POST("/sites/:id/restart", h.RestartSite)
		api.GET("/sites/:id/health", h.GetSiteHealth)
		api.GET("/sites/:id/logs", h.GetSiteLogs)
	}

	// Fleet maintenance
	{
		api.POST("/maintenance/rollout", h.TriggerRollingUpdate)
		api.POST("/maintenance/tasks", h.ScheduleMaintenance)
		api.GET("/maintenance/tasks", h.ListMaintenanceTasks)
		api.GET("/maintenance/tasks/:id", h.GetMaintenanceTask)
		api.POST("/maintenance/tasks/:id/cancel", h.CancelMaintenanceTask)
		api.GET("/maintenance/status", h.GetMaintenanceStatus)
	}

	// Announcements
	{
		api.GET("/announcements", h.ListAnnouncements)
		api.POST("/announcements", h.CreateAnnouncement)
		api.PUT("/announcements/:id", h.UpdateAnnouncement)
		api.DELETE("/announcements/:id", h.DeleteAnnouncement)
	}
}
