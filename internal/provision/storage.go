package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// StorageProvisioner manages the per-tenant persistent file namespace.
type StorageProvisioner interface {
	Provision(ctx context.Context, slug string) (string, error)
	Drop(ctx context.Context, slug string) error
}

// DirStorageProvisioner creates one directory per tenant under a shared root
// (backed by the cluster's shared filesystem mount).
type DirStorageProvisioner struct {
	root   string
	logger *zap.Logger
}

func NewDirStorageProvisioner(root string, logger *zap.Logger) *DirStorageProvisioner {
	return &DirStorageProvisioner{root: root, logger: logger}
}

func (p *DirStorageProvisioner) Provision(_ context.Context, slug string) (string, error) {
	path := filepath.Join(p.root, slug)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("creating storage namespace for %s: %w", slug, err)
	}

	p.logger.Info("Storage namespace provisioned",
		zap.String("slug", slug),
		zap.String("path", path),
	)
	return path, nil
}

// Drop removes the tenant's namespace. A namespace that is already gone is
// not an error.
func (p *DirStorageProvisioner) Drop(_ context.Context, slug string) error {
	path := filepath.Join(p.root, slug)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing storage namespace for %s: %w", slug, err)
	}

	p.logger.Info("Storage namespace removed",
		zap.String("slug", slug),
		zap.String("path", path),
	)
	return nil
}
