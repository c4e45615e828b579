package tenants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/config"
	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/platform"
	"github.com/siteharbor/siteharbor/internal/provision"
)

type fakeStore struct {
	tenants map[string]*db.Tenant
	bySlug  map[string]*db.Tenant

	created       []*db.Tenant
	statusUpdates map[string][]db.TenantStatus
	deleted       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:       map[string]*db.Tenant{},
		bySlug:        map[string]*db.Tenant{},
		statusUpdates: map[string][]db.TenantStatus{},
	}
}

func (s *fakeStore) CreateTenant(t *db.Tenant) error {
	s.created = append(s.created, t)
	s.tenants[t.ID] = t
	s.bySlug[t.Slug] = t
	return nil
}

func (s *fakeStore) GetTenant(id string) (*db.Tenant, error) {
	t, ok := s.tenants[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) GetTenantBySlug(slug string) (*db.Tenant, error) {
	t, ok := s.bySlug[slug]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) ListTenants(limit, offset int) ([]*db.Tenant, error) {
	var out []*db.Tenant
	for _, t := range s.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeStore) CountTenantsByUser(userID string) (int, error) {
	count := 0
	for _, t := range s.tenants {
		if t.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) UpdateTenantStatus(id string, status db.TenantStatus) error {
	s.statusUpdates[id] = append(s.statusUpdates[id], status)
	if t, ok := s.tenants[id]; ok {
		t.Status = status
	}
	return nil
}

func (s *fakeStore) DeleteTenant(id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.tenants, id)
	return nil
}

type gatewaySpy struct {
	createCalls []platform.ServiceDescriptor
	createErr   error

	scaleCalls map[string][]uint64

	removeCalls []string
	removeErr   error

	snapshots map[string]*platform.ServiceSnapshot
}

func newGatewaySpy() *gatewaySpy {
	return &gatewaySpy{
		scaleCalls: map[string][]uint64{},
		snapshots:  map[string]*platform.ServiceSnapshot{},
	}
}

func (g *gatewaySpy) CreateService(_ context.Context, desc platform.ServiceDescriptor) (string, error) {
	if g.createErr != nil {
		return "", g.createErr
	}
	g.createCalls = append(g.createCalls, desc)
	return "svc-" + desc.Name, nil
}

func (g *gatewaySpy) GetService(_ context.Context, name string) (*platform.ServiceSnapshot, error) {
	snap, ok := g.snapshots[name]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return snap, nil
}

func (g *gatewaySpy) ListServices(context.Context, map[string]string) ([]*platform.ServiceSnapshot, error) {
	return nil, nil
}

func (g *gatewaySpy) UpdateService(context.Context, string, platform.UpdateSpec) error {
	return nil
}

func (g *gatewaySpy) ScaleService(_ context.Context, name string, replicas uint64) error {
	g.scaleCalls[name] = append(g.scaleCalls[name], replicas)
	return nil
}

func (g *gatewaySpy) RemoveService(_ context.Context, name string) error {
	g.removeCalls = append(g.removeCalls, name)
	return g.removeErr
}

func (g *gatewaySpy) ServiceLogs(context.Context, string, platform.LogOptions) (string, error) {
	return "", nil
}

type dbProvisionerSpy struct {
	provisioned  []string
	dropped      []string
	provisionErr error
	dropErr      error
}

func (p *dbProvisionerSpy) Provision(_ context.Context, slug string) (*provision.DatabaseCredentials, error) {
	if p.provisionErr != nil {
		return nil, p.provisionErr
	}
	p.provisioned = append(p.provisioned, slug)
	return &provision.DatabaseCredentials{
		Name:     "site_" + slug,
		User:     "site_" + slug,
		Password: "s3cretpasswordvalue12345",
		Host:     "db.internal",
		Port:     5432,
	}, nil
}

func (p *dbProvisionerSpy) Drop(_ context.Context, slug string) error {
	p.dropped = append(p.dropped, slug)
	return p.dropErr
}

type storageProvisionerSpy struct {
	provisioned  []string
	dropped      []string
	provisionErr error
	dropErr      error
}

func (p *storageProvisionerSpy) Provision(_ context.Context, slug string) (string, error) {
	if p.provisionErr != nil {
		return "", p.provisionErr
	}
	p.provisioned = append(p.provisioned, slug)
	return "/srv/sites/" + slug, nil
}

func (p *storageProvisionerSpy) Drop(_ context.Context, slug string) error {
	p.dropped = append(p.dropped, slug)
	return p.dropErr
}

func testConfig() *config.Config {
	return &config.Config{
		TenantDB: config.TenantDBConfig{Host: "db.internal", Port: 5432},
		Platform: config.PlatformConfig{Network: "overlay", LabelPrefix: "siteharbor"},
		App: config.AppConfig{
			Image:        "siteharbor/site:1.0",
			DomainSuffix: "sites.example.com",
			RestartDelay: time.Millisecond,
		},
	}
}

type fixture struct {
	store   *fakeStore
	gateway *gatewaySpy
	dbProv  *dbProvisionerSpy
	stProv  *storageProvisionerSpy
	service *Service
}

func newFixture(subs Subscription) *fixture {
	f := &fixture{
		store:   newFakeStore(),
		gateway: newGatewaySpy(),
		dbProv:  &dbProvisionerSpy{},
		stProv:  &storageProvisionerSpy{},
	}
	f.service = NewService(f.store, f.gateway, f.dbProv, f.stProv, subs, testConfig(), zap.NewNop())
	return f
}

func TestCreateHappyPath(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 1, Replicas: 2})

	tenant, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1",
		Name:   "Blog",
		Slug:   "blog1",
	})
	require.NoError(t, err)

	assert.Equal(t, db.TenantRunning, tenant.Status)
	assert.Equal(t, 2, tenant.Replicas)
	assert.Equal(t, "site_blog1", tenant.DBName)
	assert.NotEmpty(t, tenant.DBPassword)
	assert.NotEmpty(t, tenant.AdminPassword)

	require.Len(t, f.gateway.createCalls, 1)
	desc := f.gateway.createCalls[0]
	assert.Equal(t, "site-blog1", desc.Name)
	assert.Equal(t, uint64(2), desc.Replicas)
	assert.Equal(t, "siteharbor/site:1.0", desc.Image)
}

func TestCreateQuotaGateHasNoSideEffects(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 1, Replicas: 1})

	// First site fills the quota.
	_, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "First", Slug: "first",
	})
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "Second", Slug: "second",
	})

	var quota *QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, 1, quota.Used)
	assert.Equal(t, 1, quota.Allowed)

	// Zero side effects for the rejected create.
	assert.NotContains(t, f.dbProv.provisioned, "second")
	assert.NotContains(t, f.stProv.provisioned, "second")
	assert.Len(t, f.gateway.createCalls, 1)
}

func TestCreateSlugConflict(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 10, Replicas: 1})

	_, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "Blog", Slug: "blog1",
	})
	require.NoError(t, err)

	_, err = f.service.Create(context.Background(), CreateRequest{
		UserID: "user-2", Name: "Other Blog", Slug: "blog1",
	})

	var conflict *SlugConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "blog1", conflict.Slug)

	// No second provisioning happened.
	assert.Len(t, f.dbProv.provisioned, 1)
	assert.Len(t, f.stProv.provisioned, 1)
	assert.Len(t, f.gateway.createCalls, 1)
}

func TestCreateMarksRecordOnServiceFailure(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 10, Replicas: 1})
	f.gateway.createErr = errors.New("manager unreachable")

	_, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "Blog", Slug: "blog1",
	})

	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "service", provErr.Step)

	// The record exists and is marked errored; upstream resources are
	// intentionally left in place.
	require.Len(t, f.store.created, 1)
	id := f.store.created[0].ID
	assert.Contains(t, f.store.statusUpdates[id], db.TenantError)
	assert.Contains(t, f.dbProv.provisioned, "blog1")
	assert.Contains(t, f.stProv.provisioned, "blog1")
	assert.Empty(t, f.dbProv.dropped, "no automatic compensation expected")
}

func TestCreateDatabaseFailureBeforeRecord(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 10, Replicas: 1})
	f.dbProv.provisionErr = errors.New("engine full")

	_, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "Blog", Slug: "blog1",
	})

	var provErr *ProvisioningError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "database", provErr.Step)
	assert.Empty(t, f.store.created)
	assert.Empty(t, f.stProv.provisioned)
	assert.Empty(t, f.gateway.createCalls)
}

func TestDeleteRunsEveryStepDespiteFailure(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 10, Replicas: 1})

	tenant, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "Blog", Slug: "blog1",
	})
	require.NoError(t, err)

	f.gateway.removeErr = errors.New("platform down")
	f.dbProv.dropErr = errors.New("role busy")

	require.NoError(t, f.service.Delete(context.Background(), tenant.ID))

	// Every downstream step still ran, and the record is gone.
	assert.Equal(t, []string{"site-blog1"}, f.gateway.removeCalls)
	assert.Equal(t, []string{"blog1"}, f.stProv.dropped)
	assert.Equal(t, []string{"blog1"}, f.dbProv.dropped)
	assert.Equal(t, []string{tenant.ID}, f.store.deleted)
}

func TestStartStopScaleAndStatus(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 10, Replicas: 3})

	tenant, err := f.service.Create(context.Background(), CreateRequest{
		UserID: "user-1", Name: "Blog", Slug: "blog1",
	})
	require.NoError(t, err)

	require.NoError(t, f.service.Stop(context.Background(), tenant.ID))
	assert.Equal(t, []uint64{0}, f.gateway.scaleCalls["site-blog1"])
	assert.Equal(t, db.TenantStopped, f.store.tenants[tenant.ID].Status)

	require.NoError(t, f.service.Start(context.Background(), tenant.ID))
	assert.Equal(t, []uint64{0, 3}, f.gateway.scaleCalls["site-blog1"])
	assert.Equal(t, db.TenantRunning, f.store.tenants[tenant.ID].Status)
}

func TestCreateRejectsInvalidSlug(t *testing.T) {
	f := newFixture(&StaticSubscription{MaxSites: 10, Replicas: 1})

	for _, slug := range []string{"", "UPPER", "has space", "-leading", "trailing-"} {
		_, err := f.service.Create(context.Background(), CreateRequest{
			UserID: "user-1", Name: "Bad", Slug: slug,
		})
		assert.Error(t, err, "slug %q must be rejected", slug)
	}
	assert.Empty(t, f.dbProv.provisioned)
}
