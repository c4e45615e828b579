package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/metrics"
	"github.com/siteharbor/siteharbor/internal/rollout"
)

// TaskStore is the persistence surface for maintenance tasks.
type TaskStore interface {
	GetDueMaintenanceTasks(now time.Time) ([]*db.MaintenanceTask, error)
	MarkMaintenanceTaskStarted(id string, startedAt time.Time) (bool, error)
	CompleteMaintenanceTask(id string, status db.MaintenanceStatus, servicesUpdated, errs []string, completedAt time.Time) error
	ResetOrphanedMaintenanceTasks(reason string) (int64, error)
}

// Updater runs one rolling update batch.
type Updater interface {
	Run(ctx context.Context, targetImage string, forceUpdate bool) (*rollout.Result, error)
}

// Scheduler discovers due maintenance tasks and executes them sequentially.
// One task failing never stops the next from being attempted, on the same or
// a later tick.
type Scheduler struct {
	store    TaskStore
	updater  Updater
	guard    *Guard
	metrics  *metrics.Collector
	logger   *zap.Logger
	interval time.Duration
}

func NewScheduler(store TaskStore, updater Updater, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		updater:  updater,
		guard:    &Guard{},
		interval: interval,
		logger:   logger,
	}
}

// WithMetrics attaches the fleet metrics collector.
func (s *Scheduler) WithMetrics(m *metrics.Collector) *Scheduler {
	s.metrics = m
	return s
}

// Guard exposes the single-flight token, for the window-status surface.
func (s *Scheduler) Guard() *Guard {
	return s.guard
}

// Start runs the scheduler loop until the context is cancelled. It begins
// with a crash-recovery pass and an immediate tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting maintenance scheduler", zap.Duration("interval", s.interval))

	s.recoverOrphans()
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping maintenance scheduler")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// recoverOrphans fails tasks a previous process left in_progress. Without
// this, a crash mid-window would leave a task open forever.
func (s *Scheduler) recoverOrphans() {
	n, err := s.store.ResetOrphanedMaintenanceTasks("orphaned by scheduler restart")
	if err != nil {
		s.logger.Error("Failed to reset orphaned maintenance tasks", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Warn("Reset orphaned maintenance tasks", zap.Int64("count", n))
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	tasks, err := s.store.GetDueMaintenanceTasks(time.Now())
	if err != nil {
		s.logger.Error("Failed to query due maintenance tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		if err := s.ExecuteTask(ctx, task); err != nil {
			s.logger.Error("Maintenance task execution failed",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
		}
	}
}

// ExecuteTask runs one maintenance task through the rolling update
// controller. It refuses to run while another window is open and re-checks
// the task's pending status before starting, so a task is never executed
// twice.
func (s *Scheduler) ExecuteTask(ctx context.Context, task *db.MaintenanceTask) error {
	if !s.guard.TryAcquire(task.ID) {
		return fmt.Errorf("maintenance window %s is already active", s.guard.ActiveID())
	}
	defer s.guard.Release(task.ID)

	started, err := s.store.MarkMaintenanceTaskStarted(task.ID, time.Now())
	if err != nil {
		return fmt.Errorf("marking task started: %w", err)
	}
	if !started {
		return fmt.Errorf("task %s is no longer pending", task.ID)
	}

	s.metrics.SetMaintenanceActive(true)
	defer s.metrics.SetMaintenanceActive(false)

	s.logger.Info("Maintenance window opened",
		zap.String("task_id", task.ID),
		zap.String("target_image", task.TargetImage),
		zap.Bool("force", task.ForceUpdate),
	)

	result, runErr := s.updater.Run(ctx, task.TargetImage, task.ForceUpdate)

	status := db.MaintenanceCompleted
	var updated, errs []string
	if runErr != nil {
		status = db.MaintenanceFailed
		errs = []string{runErr.Error()}
	} else {
		updated = result.ServicesUpdated
		errs = result.Errors
		if !result.Success {
			status = db.MaintenanceFailed
		}
	}

	if err := s.store.CompleteMaintenanceTask(task.ID, status, updated, errs, time.Now()); err != nil {
		return fmt.Errorf("recording task result: %w", err)
	}

	s.metrics.RecordMaintenanceTask(string(status))
	s.logger.Info("Maintenance window closed",
		zap.String("task_id", task.ID),
		zap.String("status", string(status)),
		zap.Int("services_updated", len(updated)),
		zap.Int("errors", len(errs)),
	)
	return nil
}
