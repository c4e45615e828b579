package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/config"
	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/maintenance"
	"github.com/siteharbor/siteharbor/internal/metrics"
	"github.com/siteharbor/siteharbor/internal/platform"
	"github.com/siteharbor/siteharbor/internal/rollout"
	"github.com/siteharbor/siteharbor/internal/tenants"
)

// The scheduler must run as a single instance: the one-active-maintenance
// invariant is enforced in process memory only.
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

	if err := db.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	conn, err := db.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()
	repo := db.NewRepository(conn)

	gateway := platform.NewClient(cfg.Platform, logger)
	collector := metrics.NewCollector(cfg.Metrics)

	rolloutCtrl := rollout.NewController(gateway, tenants.ManagedLabelFilter(cfg), logger).
		WithMetrics(collector)
	rolloutCtrl.PollInterval = cfg.Maintenance.HealthInterval
	rolloutCtrl.HealthTimeout = cfg.Maintenance.HealthTimeout

	scheduler := maintenance.NewScheduler(repo, rolloutCtrl, cfg.Maintenance.TickInterval, logger).
		WithMetrics(collector)

	ctx, cancel := context.WithCancel(context.Background())
	go collector.StartRemoteWrite(ctx)
	go scheduler.Start(ctx)

	logger.Info("Maintenance scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	cancel()
	logger.Info("Scheduler stopped")
}
