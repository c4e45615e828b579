package tenants

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/config"
	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/metrics"
	"github.com/siteharbor/siteharbor/internal/platform"
	"github.com/siteharbor/siteharbor/internal/provision"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// Store is the persistence surface the lifecycle workflows need.
type Store interface {
	CreateTenant(t *db.Tenant) error
	GetTenant(id string) (*db.Tenant, error)
	GetTenantBySlug(slug string) (*db.Tenant, error)
	ListTenants(limit, offset int) ([]*db.Tenant, error)
	CountTenantsByUser(userID string) (int, error)
	UpdateTenantStatus(id string, status db.TenantStatus) error
	DeleteTenant(id string) error
}

// IngressVerifier checks that a tenant hostname is reachable through the
// edge. Best-effort: failures degrade the health report only.
type IngressVerifier interface {
	Verify(ctx context.Context, host string) error
}

// SnapshotCache is an optional read-through cache for service snapshots.
type SnapshotCache interface {
	Get(ctx context.Context, name string) (*platform.ServiceSnapshot, bool)
	Set(ctx context.Context, name string, snap *platform.ServiceSnapshot)
}

// Service runs the tenant lifecycle workflows. Create is a sequential
// multi-step workflow that marks the record on failure instead of unwinding
// already-provisioned resources; Delete is best-effort and always removes the
// record so a stuck resource can never hold the user's quota slot.
type Service struct {
	store    Store
	gateway  platform.Gateway
	database provision.DatabaseProvisioner
	storage  provision.StorageProvisioner
	subs     Subscription
	verifier IngressVerifier
	cache    SnapshotCache
	metrics  *metrics.Collector
	cfg      *config.Config
	logger   *zap.Logger
}

func NewService(
	store Store,
	gateway platform.Gateway,
	database provision.DatabaseProvisioner,
	storage provision.StorageProvisioner,
	subs Subscription,
	cfg *config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		database: database,
		storage:  storage,
		subs:     subs,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithIngressVerifier attaches an edge DNS verifier used by Health.
func (s *Service) WithIngressVerifier(v IngressVerifier) *Service {
	s.verifier = v
	return s
}

// WithSnapshotCache attaches a snapshot cache used by status reads.
func (s *Service) WithSnapshotCache(c SnapshotCache) *Service {
	s.cache = c
	return s
}

// WithMetrics attaches the fleet metrics collector.
func (s *Service) WithMetrics(m *metrics.Collector) *Service {
	s.metrics = m
	return s
}

type CreateRequest struct {
	UserID string
	Name   string
	Slug   string
	Plan   string
}

// Create provisions a new tenant site. Steps run strictly in order; every
// pre-condition check happens before the first side effect. On a failure
// after provisioning has begun, the record (if it exists) is marked error and
// the failure is surfaced; external resources already created are left for
// operator cleanup.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*db.Tenant, error) {
	if !slugPattern.MatchString(req.Slug) {
		return nil, fmt.Errorf("invalid slug %q", req.Slug)
	}

	// Quota gate, before any side effect.
	used, err := s.store.CountTenantsByUser(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("counting sites for user: %w", err)
	}
	ok, allowed, err := s.subs.CanCreateInstance(ctx, req.UserID, used)
	if err != nil {
		return nil, fmt.Errorf("checking quota: %w", err)
	}
	if !ok {
		return nil, &QuotaExceededError{Used: used, Allowed: allowed}
	}

	// Slug uniqueness, still before any side effect.
	if _, err := s.store.GetTenantBySlug(req.Slug); err == nil {
		return nil, &SlugConflictError{Slug: req.Slug}
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("checking slug: %w", err)
	}

	replicas, err := s.subs.ReplicasForPlan(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolving plan replicas: %w", err)
	}

	start := time.Now()

	creds, err := s.database.Provision(ctx, req.Slug)
	if err != nil {
		s.metrics.RecordProvision(req.Slug, false, time.Since(start))
		return nil, s.failCreate("", "database", req.Slug, err)
	}

	storagePath, err := s.storage.Provision(ctx, req.Slug)
	if err != nil {
		s.metrics.RecordProvision(req.Slug, false, time.Since(start))
		return nil, s.failCreate("", "storage", req.Slug, err)
	}

	adminPassword, err := provision.GenerateAdminPassword()
	if err != nil {
		s.metrics.RecordProvision(req.Slug, false, time.Since(start))
		return nil, s.failCreate("", "credentials", req.Slug, err)
	}

	now := time.Now()
	tenant := &db.Tenant{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		Name:          req.Name,
		Slug:          req.Slug,
		Plan:          req.Plan,
		Replicas:      replicas,
		Status:        db.TenantCreating,
		DBName:        creds.Name,
		DBUser:        creds.User,
		DBPassword:    creds.Password,
		StoragePath:   storagePath,
		AdminUser:     "admin",
		AdminPassword: adminPassword,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateTenant(tenant); err != nil {
		s.metrics.RecordProvision(req.Slug, false, time.Since(start))
		return nil, s.failCreate("", "record", req.Slug, err)
	}

	desc := BuildDescriptor(tenant, s.cfg, s.cfg.App.Image)
	if _, err := s.gateway.CreateService(ctx, desc); err != nil {
		s.metrics.RecordProvision(req.Slug, false, time.Since(start))
		return nil, s.failCreate(tenant.ID, "service", req.Slug, err)
	}

	if err := s.store.UpdateTenantStatus(tenant.ID, db.TenantRunning); err != nil {
		return nil, s.failCreate(tenant.ID, "status", req.Slug, err)
	}
	tenant.Status = db.TenantRunning

	s.metrics.RecordProvision(req.Slug, true, time.Since(start))
	s.logger.Info("Tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("slug", tenant.Slug),
		zap.String("user_id", tenant.UserID),
		zap.Int("replicas", tenant.Replicas),
	)
	return tenant, nil
}

// failCreate marks the tenant record, when one exists, and wraps the step
// failure for the caller.
func (s *Service) failCreate(tenantID, step, slug string, err error) error {
	s.logger.Error("Tenant provisioning failed",
		zap.String("slug", slug),
		zap.String("step", step),
		zap.Error(err),
	)
	if tenantID != "" {
		if markErr := s.store.UpdateTenantStatus(tenantID, db.TenantError); markErr != nil {
			s.logger.Error("Failed to mark tenant as errored",
				zap.String("tenant_id", tenantID),
				zap.Error(markErr),
			)
		}
	}
	return &ProvisioningError{Step: step, Err: err}
}

// Delete tears a tenant down. Every step failure is logged and swallowed so
// later steps still run; the record is removed unconditionally at the end.
func (s *Service) Delete(ctx context.Context, id string) error {
	tenant, err := s.store.GetTenant(id)
	if err != nil {
		return err
	}

	if err := s.gateway.RemoveService(ctx, ServiceNameForSlug(tenant.Slug)); err != nil && !errors.Is(err, platform.ErrNotFound) {
		s.logger.Warn("Failed to remove platform service",
			zap.String("slug", tenant.Slug),
			zap.Error(err),
		)
	}

	if err := s.storage.Drop(ctx, tenant.Slug); err != nil {
		s.logger.Warn("Failed to remove storage namespace",
			zap.String("slug", tenant.Slug),
			zap.Error(err),
		)
	}

	if err := s.database.Drop(ctx, tenant.Slug); err != nil {
		s.logger.Warn("Failed to drop tenant database",
			zap.String("slug", tenant.Slug),
			zap.Error(err),
		)
	}

	if err := s.store.DeleteTenant(id); err != nil {
		return fmt.Errorf("removing tenant record: %w", err)
	}

	s.metrics.RecordDeprovision(tenant.Slug)
	s.logger.Info("Tenant deleted",
		zap.String("tenant_id", id),
		zap.String("slug", tenant.Slug),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*db.Tenant, error) {
	return s.store.GetTenant(id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*db.Tenant, error) {
	return s.store.ListTenants(limit, offset)
}

// Start scales the tenant's service back to its plan replica count.
func (s *Service) Start(ctx context.Context, id string) error {
	tenant, err := s.store.GetTenant(id)
	if err != nil {
		return err
	}

	if err := s.gateway.ScaleService(ctx, ServiceNameForSlug(tenant.Slug), uint64(tenant.Replicas)); err != nil {
		return fmt.Errorf("scaling service up: %w", err)
	}

	if err := s.store.UpdateTenantStatus(id, db.TenantRunning); err != nil {
		return err
	}

	s.logger.Info("Tenant started", zap.String("tenant_id", id), zap.String("slug", tenant.Slug))
	return nil
}

// Stop scales the tenant's service to zero.
func (s *Service) Stop(ctx context.Context, id string) error {
	tenant, err := s.store.GetTenant(id)
	if err != nil {
		return err
	}

	if err := s.gateway.ScaleService(ctx, ServiceNameForSlug(tenant.Slug), 0); err != nil {
		return fmt.Errorf("scaling service down: %w", err)
	}

	if err := s.store.UpdateTenantStatus(id, db.TenantStopped); err != nil {
		return err
	}

	s.logger.Info("Tenant stopped", zap.String("tenant_id", id), zap.String("slug", tenant.Slug))
	return nil
}

// Restart stops the service, waits a short fixed delay, then starts it
// again. The site is fully down for the duration of the delay.
func (s *Service) Restart(ctx context.Context, id string) error {
	if err := s.Stop(ctx, id); err != nil {
		return err
	}
	time.Sleep(s.cfg.App.RestartDelay)
	return s.Start(ctx, id)
}

// HealthReport is the operator-facing view of a tenant's runtime state.
type HealthReport struct {
	TenantID        string          `json:"tenant_id"`
	Slug            string          `json:"slug"`
	Status          db.TenantStatus `json:"status"`
	DesiredReplicas uint64          `json:"desired_replicas"`
	RunningReplicas uint64          `json:"running_replicas"`
	Image           string          `json:"image"`
	Healthy         bool            `json:"healthy"`
	IngressResolves bool            `json:"ingress_resolves"`
}

// Health resolves the tenant's live service state, read through the snapshot
// cache when one is attached, and verifies edge DNS best-effort.
func (s *Service) Health(ctx context.Context, id string) (*HealthReport, error) {
	tenant, err := s.store.GetTenant(id)
	if err != nil {
		return nil, err
	}

	name := ServiceNameForSlug(tenant.Slug)
	var snap *platform.ServiceSnapshot
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, name); ok {
			snap = cached
		}
	}
	if snap == nil {
		snap, err = s.gateway.GetService(ctx, name)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, name, snap)
		}
	}

	report := &HealthReport{
		TenantID:        tenant.ID,
		Slug:            tenant.Slug,
		Status:          tenant.Status,
		DesiredReplicas: snap.DesiredReplicas,
		RunningReplicas: snap.RunningReplicas,
		Image:           snap.Image,
		Healthy:         snap.RunningReplicas >= snap.DesiredReplicas && snap.DesiredReplicas > 0,
	}

	if s.verifier != nil {
		host := tenant.Slug + "." + s.cfg.App.DomainSuffix
		if err := s.verifier.Verify(ctx, host); err != nil {
			s.logger.Debug("Ingress verification failed",
				zap.String("host", host),
				zap.Error(err),
			)
		} else {
			report.IngressResolves = true
		}
	}

	return report, nil
}

// Logs streams the tail of the tenant's service logs.
func (s *Service) Logs(ctx context.Context, id string, tail int) (string, error) {
	tenant, err := s.store.GetTenant(id)
	if err != nil {
		return "", err
	}
	return s.gateway.ServiceLogs(ctx, ServiceNameForSlug(tenant.Slug), platform.LogOptions{Tail: tail})
}
