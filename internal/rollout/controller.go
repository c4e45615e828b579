package rollout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/metrics"
	"github.com/siteharbor/siteharbor/internal/platform"
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultHealthTimeout = 120 * time.Second
)

// Result summarizes one rolling update batch.
type Result struct {
	Success         bool     `json:"success"`
	ServicesUpdated []string `json:"services_updated"`
	Errors          []string `json:"errors"`
}

// Controller rolls a target image across every tenant site service, one
// service at a time, verifying convergence between services. A service that
// fails to converge is rolled back to its previous image and the batch is
// abandoned: a bad image must not be rolled out any further.
type Controller struct {
	gateway     platform.Gateway
	labelFilter map[string]string
	metrics     *metrics.Collector
	logger      *zap.Logger

	// PollInterval and HealthTimeout bound the per-service health check
	// loop. The defaults are 5s and 120s.
	PollInterval  time.Duration
	HealthTimeout time.Duration
}

func NewController(gateway platform.Gateway, labelFilter map[string]string, logger *zap.Logger) *Controller {
	return &Controller{
		gateway:       gateway,
		labelFilter:   labelFilter,
		logger:        logger,
		PollInterval:  DefaultPollInterval,
		HealthTimeout: DefaultHealthTimeout,
	}
}

// WithMetrics attaches the fleet metrics collector.
func (c *Controller) WithMetrics(m *metrics.Collector) *Controller {
	c.metrics = m
	return c
}

// Run executes one rolling update batch. Per-service failures are collected
// into the result rather than returned; the returned error is reserved for
// being unable to enumerate the fleet at all.
func (c *Controller) Run(ctx context.Context, targetImage string, forceUpdate bool) (*Result, error) {
	services, err := c.gateway.ListServices(ctx, c.labelFilter)
	if err != nil {
		return nil, fmt.Errorf("listing tenant services: %w", err)
	}

	c.logger.Info("Rolling update started",
		zap.String("target_image", targetImage),
		zap.Bool("force", forceUpdate),
		zap.Int("services", len(services)),
	)

	result := &Result{
		Success:         true,
		ServicesUpdated: []string{},
		Errors:          []string{},
	}

	for _, svc := range services {
		// Nothing runs, nothing to verify.
		if svc.DesiredReplicas == 0 {
			c.logger.Debug("Skipping stopped service", zap.String("service", svc.Name))
			continue
		}

		previousImage := svc.Image

		if err := c.updateAndVerify(ctx, svc.Name, targetImage, forceUpdate); err != nil {
			c.logger.Error("Service failed to converge, rolling back",
				zap.String("service", svc.Name),
				zap.String("target_image", targetImage),
				zap.String("rollback_image", previousImage),
				zap.Error(err),
			)

			c.rollback(ctx, svc.Name, previousImage)
			result.Success = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %v (rolled back to %s)", svc.Name, err, previousImage))

			// Abandon the batch: one unconverged service means the
			// target image is suspect.
			break
		}

		result.ServicesUpdated = append(result.ServicesUpdated, svc.Name)
		c.metrics.RecordServiceUpdated()
	}

	c.metrics.RecordRolloutBatch(result.Success)
	c.logger.Info("Rolling update finished",
		zap.Bool("success", result.Success),
		zap.Int("updated", len(result.ServicesUpdated)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (c *Controller) updateAndVerify(ctx context.Context, name, targetImage string, force bool) error {
	if err := c.gateway.UpdateService(ctx, name, platform.UpdateSpec{
		Image:       &targetImage,
		ForceUpdate: force,
	}); err != nil {
		return fmt.Errorf("updating service: %w", err)
	}

	return c.waitHealthy(ctx, name)
}

// waitHealthy polls until every desired replica is running or the timeout
// elapses. Transient poll failures are tolerated and retried; only the
// timeout is a health failure.
func (c *Controller) waitHealthy(ctx context.Context, name string) error {
	start := time.Now()
	deadline := start.Add(c.HealthTimeout)

	for {
		snap, err := c.gateway.GetService(ctx, name)
		if err != nil {
			c.logger.Warn("Health poll failed, retrying",
				zap.String("service", name),
				zap.Error(err),
			)
		} else if snap.RunningReplicas >= snap.DesiredReplicas {
			c.metrics.RecordHealthCheck(time.Since(start))
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("health check timed out after %s", c.HealthTimeout)
		}
		time.Sleep(c.PollInterval)
	}
}

// rollback re-declares the previous image with a forced update. Best-effort:
// a rollback failure is logged, the batch is already abandoned.
func (c *Controller) rollback(ctx context.Context, name, previousImage string) {
	c.metrics.RecordRollback()
	if err := c.gateway.UpdateService(ctx, name, platform.UpdateSpec{
		Image:       &previousImage,
		ForceUpdate: true,
	}); err != nil {
		c.logger.Error("Rollback failed",
			zap.String("service", name),
			zap.String("image", previousImage),
			zap.Error(err),
		)
	}
}
