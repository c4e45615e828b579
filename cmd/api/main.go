package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/api"
	"github.com/siteharbor/siteharbor/internal/cache"
	"github.com/siteharbor/siteharbor/internal/config"
	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/edge"
	"github.com/siteharbor/siteharbor/internal/metrics"
	"github.com/siteharbor/siteharbor/internal/platform"
	"github.com/siteharbor/siteharbor/internal/provision"
	"github.com/siteharbor/siteharbor/internal/rollout"
	"github.com/siteharbor/siteharbor/internal/tenants"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	// Database
	if err := db.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	conn, err := db.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	repo := db.NewRepository(conn)

	// Collaborators
	gateway := platform.NewClient(cfg.Platform, logger)

	dbProvisioner, err := provision.NewPostgresProvisioner(cfg.TenantDB, logger)
	if err != nil {
		logger.Fatal("Failed to connect to tenant database engine", zap.Error(err))
	}
	storageProvisioner := provision.NewDirStorageProvisioner(cfg.Storage.RootPath, logger)

	subscription := &tenants.StaticSubscription{
		MaxSites: cfg.App.MaxSitesPerUser,
		Replicas: cfg.App.DefaultReplicas,
	}

	collector := metrics.NewCollector(cfg.Metrics)

	tenantService := tenants.NewService(repo, gateway, dbProvisioner, storageProvisioner, subscription, cfg, logger).
		WithIngressVerifier(edge.NewChecker(cfg.App.ResolverAddress)).
		WithMetrics(collector)

	if cfg.Redis.URL != "" {
		snapshotCache := cache.NewSnapshotCache(cfg.Redis.URL, cfg.Redis.SnapshotTTL)
		defer snapshotCache.Close()
		tenantService.WithSnapshotCache(snapshotCache)
	}

	rolloutCtrl := rollout.NewController(gateway, tenants.ManagedLabelFilter(cfg), logger).
		WithMetrics(collector)
	rolloutCtrl.PollInterval = cfg.Maintenance.HealthInterval
	rolloutCtrl.HealthTimeout = cfg.Maintenance.HealthTimeout

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go collector.StartRemoteWrite(ctx)

	// API server
	server := api.NewServer(cfg, repo, tenantService, rolloutCtrl, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
