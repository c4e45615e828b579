package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sethvargo/go-password/password"
	"go.uber.org/zap"

	"github.com/siteharbor/siteharbor/internal/config"
)

const credentialLength = 24

// DatabaseCredentials identify a provisioned tenant database on the shared
// engine.
type DatabaseCredentials struct {
	Name     string
	User     string
	Password string
	Host     string
	Port     int
}

// DatabaseProvisioner creates and drops per-tenant logical databases.
type DatabaseProvisioner interface {
	Provision(ctx context.Context, slug string) (*DatabaseCredentials, error)
	Drop(ctx context.Context, slug string) error
}

// PostgresProvisioner provisions tenant databases on a shared PostgreSQL
// engine through an admin connection holding CREATEDB/CREATEROLE.
type PostgresProvisioner struct {
	admin  *sqlx.DB
	cfg    config.TenantDBConfig
	logger *zap.Logger
}

func NewPostgresProvisioner(cfg config.TenantDBConfig, logger *zap.Logger) (*PostgresProvisioner, error) {
	admin, err := sqlx.Connect("postgres", cfg.AdminURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to tenant database engine: %w", err)
	}
	return &PostgresProvisioner{admin: admin, cfg: cfg, logger: logger}, nil
}

// DatabaseNameForSlug derives the tenant database and role name from the
// slug. Slugs are already restricted to [a-z0-9-]; dashes are folded to
// underscores to stay a plain identifier.
func DatabaseNameForSlug(slug string) string {
	return "site_" + strings.ReplaceAll(slug, "-", "_")
}

func (p *PostgresProvisioner) Provision(ctx context.Context, slug string) (*DatabaseCredentials, error) {
	name := DatabaseNameForSlug(slug)

	pass, err := password.Generate(credentialLength, 8, 0, false, true)
	if err != nil {
		return nil, fmt.Errorf("generating database password: %w", err)
	}

	createRole := fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s",
		pq.QuoteIdentifier(name), pq.QuoteLiteral(pass))
	if _, err := p.admin.ExecContext(ctx, createRole); err != nil {
		return nil, fmt.Errorf("creating role %s: %w", name, err)
	}

	createDB := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pq.QuoteIdentifier(name), pq.QuoteIdentifier(name))
	if _, err := p.admin.ExecContext(ctx, createDB); err != nil {
		return nil, fmt.Errorf("creating database %s: %w", name, err)
	}

	p.logger.Info("Tenant database provisioned",
		zap.String("slug", slug),
		zap.String("database", name),
	)

	return &DatabaseCredentials{
		Name:     name,
		User:     name,
		Password: pass,
		Host:     p.cfg.Host,
		Port:     p.cfg.Port,
	}, nil
}

func (p *PostgresProvisioner) Drop(ctx context.Context, slug string) error {
	name := DatabaseNameForSlug(slug)

	dropDB := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(name))
	if _, err := p.admin.ExecContext(ctx, dropDB); err != nil {
		return fmt.Errorf("dropping database %s: %w", name, err)
	}

	dropRole := fmt.Sprintf("DROP ROLE IF EXISTS %s", pq.QuoteIdentifier(name))
	if _, err := p.admin.ExecContext(ctx, dropRole); err != nil {
		return fmt.Errorf("dropping role %s: %w", name, err)
	}

	p.logger.Info("Tenant database dropped",
		zap.String("slug", slug),
		zap.String("database", name),
	)
	return nil
}

// GenerateAdminPassword produces the opaque credential handed to the tenant's
// application admin account.
func GenerateAdminPassword() (string, error) {
	return password.Generate(credentialLength, 8, 0, false, true)
}
