package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDatabaseNameForSlug(t *testing.T) {
	tests := []struct {
		slug string
		want string
	}{
		{"blog", "site_blog"},
		{"my-shop", "site_my_shop"},
		{"a-b-c", "site_a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DatabaseNameForSlug(tt.slug))
	}
}

func TestGenerateAdminPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		pw, err := GenerateAdminPassword()
		require.NoError(t, err)
		assert.Len(t, pw, 24)
		for _, r := range pw {
			if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				t.Fatalf("password %q contains non-alphanumeric %q", pw, r)
			}
		}
		assert.False(t, seen[pw], "passwords must not repeat")
		seen[pw] = true
	}
}

func TestDirStorageProvisioner(t *testing.T) {
	root := t.TempDir()
	p := NewDirStorageProvisioner(root, zap.NewNop())

	path, err := p.Provision(context.Background(), "blog")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "blog"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Provisioning again is a no-op, not a conflict.
	_, err = p.Provision(context.Background(), "blog")
	require.NoError(t, err)

	require.NoError(t, p.Drop(context.Background(), "blog"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Dropping a namespace that never existed succeeds.
	require.NoError(t, p.Drop(context.Background(), "never-created"))
}
