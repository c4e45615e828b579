package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/siteharbor/siteharbor/internal/config"
)

// Collector holds the fleet-level metrics. A nil collector is valid and
// drops every observation, so components can run without metrics wired in.
type Collector struct {
	config *config.MetricsConfig

	// Lifecycle metrics
	provisionsTotal   *prometheus.CounterVec
	provisionDuration *prometheus.HistogramVec
	deprovisionsTotal *prometheus.CounterVec
	tenantsByStatus   *prometheus.GaugeVec

	// Rolling update metrics
	rolloutServicesUpdated prometheus.Counter
	rolloutRollbacks       prometheus.Counter
	rolloutBatchesTotal    *prometheus.CounterVec
	healthCheckDuration    prometheus.Histogram

	// Maintenance metrics
	maintenanceTasksTotal *prometheus.CounterVec
	maintenanceActive     prometheus.Gauge
}

func NewCollector(cfg config.MetricsConfig) *Collector {
	return &Collector{
		config: &cfg,

		provisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "siteharbor_provisions_total",
			Help: "Tenant provisioning attempts by outcome",
		}, []string{"tenant_id", "success"}),

		provisionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siteharbor_provision_duration_seconds",
			Help:    "Time spent provisioning a tenant end to end",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"tenant_id"}),

		deprovisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "siteharbor_deprovisions_total",
			Help: "Tenant teardowns",
		}, []string{"tenant_id"}),

		tenantsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "siteharbor_tenants",
			Help: "Tenants by lifecycle status",
		}, []string{"status"}),

		rolloutServicesUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteharbor_rollout_services_updated_total",
			Help: "Services successfully updated during rolling updates",
		}),

		rolloutRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "siteharbor_rollout_rollbacks_total",
			Help: "Services rolled back after failing health verification",
		}),

		rolloutBatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "siteharbor_rollout_batches_total",
			Help: "Rolling update batches by outcome",
		}, []string{"success"}),

		healthCheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "siteharbor_health_check_duration_seconds",
			Help:    "Time until a service converged during a rolling update",
			Buckets: prometheus.LinearBuckets(5, 10, 12),
		}),

		maintenanceTasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "siteharbor_maintenance_tasks_total",
			Help: "Executed maintenance tasks by terminal status",
		}, []string{"status"}),

		maintenanceActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "siteharbor_maintenance_active",
			Help: "Whether a maintenance window is currently open",
		}),
	}
}

func (c *Collector) RecordProvision(tenantID string, success bool, d time.Duration) {
	if c == nil {
		return
	}
	c.provisionsTotal.WithLabelValues(tenantID, boolLabel(success)).Inc()
	c.provisionDuration.WithLabelValues(tenantID).Observe(d.Seconds())
}

func (c *Collector) RecordDeprovision(tenantID string) {
	if c == nil {
		return
	}
	c.deprovisionsTotal.WithLabelValues(tenantID).Inc()
}

func (c *Collector) SetTenantCount(status string, count int) {
	if c == nil {
		return
	}
	c.tenantsByStatus.WithLabelValues(status).Set(float64(count))
}

func (c *Collector) RecordServiceUpdated() {
	if c == nil {
		return
	}
	c.rolloutServicesUpdated.Inc()
}

func (c *Collector) RecordRollback() {
	if c == nil {
		return
	}
	c.rolloutRollbacks.Inc()
}

func (c *Collector) RecordRolloutBatch(success bool) {
	if c == nil {
		return
	}
	c.rolloutBatchesTotal.WithLabelValues(boolLabel(success)).Inc()
}

func (c *Collector) RecordHealthCheck(d time.Duration) {
	if c == nil {
		return
	}
	c.healthCheckDuration.Observe(d.Seconds())
}

func (c *Collector) RecordMaintenanceTask(status string) {
	if c == nil {
		return
	}
	c.maintenanceTasksTotal.WithLabelValues(status).Inc()
}

func (c *Collector) SetMaintenanceActive(active bool) {
	if c == nil {
		return
	}
	if active {
		c.maintenanceActive.Set(1)
	} else {
		c.maintenanceActive.Set(0)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
