package tenants

import (
	"fmt"
	"time"

	"github.com/siteharbor/siteharbor/internal/config"
	"github.com/siteharbor/siteharbor/internal/db"
	"github.com/siteharbor/siteharbor/internal/platform"
)

// ServiceNameForSlug is the platform service name of a tenant's site.
func ServiceNameForSlug(slug string) string {
	return "site-" + slug
}

// BuildDescriptor assembles the declarative service spec for a tenant. It is
// regenerated from the tenant record on every deploy, so a redeploy always
// reflects the current record.
func BuildDescriptor(t *db.Tenant, cfg *config.Config, image string) platform.ServiceDescriptor {
	prefix := cfg.Platform.LabelPrefix

	return platform.ServiceDescriptor{
		Name:     ServiceNameForSlug(t.Slug),
		Image:    image,
		Replicas: uint64(t.Replicas),
		Env: []string{
			"SITE_SLUG=" + t.Slug,
			"DB_HOST=" + cfg.TenantDB.Host,
			"DB_PORT=" + fmt.Sprintf("%d", cfg.TenantDB.Port),
			"DB_NAME=" + t.DBName,
			"DB_USER=" + t.DBUser,
			"DB_PASSWORD=" + t.DBPassword,
			"ADMIN_USER=" + t.AdminUser,
			"ADMIN_PASSWORD=" + t.AdminPassword,
		},
		Labels: map[string]string{
			prefix + ".managed":    "true",
			prefix + ".tenant":     t.Slug,
			prefix + ".route.host": t.Slug + "." + cfg.App.DomainSuffix,
			prefix + ".route.path": "/" + t.Slug,
		},
		Networks: []string{cfg.Platform.Network},
		Mounts: []platform.Mount{
			{Source: t.StoragePath, Target: "/var/www/site", Type: "bind"},
		},
		RestartPolicy: platform.RestartPolicy{
			Condition: "on-failure",
			Delay:     5 * time.Second,
		},
	}
}

// ManagedLabelFilter selects every tenant site service on the platform.
func ManagedLabelFilter(cfg *config.Config) map[string]string {
	return map[string]string{cfg.Platform.LabelPrefix + ".managed": "true"}
}
