package tenants

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siteharbor/siteharbor/internal/db"
)

func TestBuildDescriptor(t *testing.T) {
	cfg := testConfig()
	tenant := &db.Tenant{
		Slug:          "blog1",
		Replicas:      2,
		DBName:        "site_blog1",
		DBUser:        "site_blog1",
		DBPassword:    "dbsecret",
		StoragePath:   "/srv/sites/blog1",
		AdminUser:     "admin",
		AdminPassword: "adminsecret",
	}

	desc := BuildDescriptor(tenant, cfg, "app:2.0")

	assert.Equal(t, "site-blog1", desc.Name)
	assert.Equal(t, "app:2.0", desc.Image)
	assert.Equal(t, uint64(2), desc.Replicas)
	assert.Contains(t, desc.Env, "SITE_SLUG=blog1")
	assert.Contains(t, desc.Env, "DB_NAME=site_blog1")
	assert.Contains(t, desc.Env, "DB_PASSWORD=dbsecret")
	assert.Contains(t, desc.Env, "ADMIN_PASSWORD=adminsecret")

	prefix := cfg.Platform.LabelPrefix
	assert.Equal(t, "true", desc.Labels[prefix+".managed"])
	assert.Equal(t, "blog1", desc.Labels[prefix+".tenant"])
	assert.Equal(t, "blog1."+cfg.App.DomainSuffix, desc.Labels[prefix+".route.host"])
	assert.Equal(t, "/blog1", desc.Labels[prefix+".route.path"])

	assert.Equal(t, []string{cfg.Platform.Network}, desc.Networks)
	if assert.Len(t, desc.Mounts, 1) {
		assert.Equal(t, "/srv/sites/blog1", desc.Mounts[0].Source)
		assert.Equal(t, "/var/www/site", desc.Mounts[0].Target)
	}
	assert.Equal(t, "on-failure", desc.RestartPolicy.Condition)
}

func TestManagedLabelFilter(t *testing.T) {
	cfg := testConfig()
	filter := ManagedLabelFilter(cfg)
	assert.Equal(t, map[string]string{cfg.Platform.LabelPrefix + ".managed": "true"}, filter)
}
