package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(root)
	require.NoError(t, err)

	assert.Equal(t, root, layout.Root)
	assert.Equal(t, filepath.Join(root, "raw_data"), layout.RawDataDir)
	assert.Equal(t, filepath.Join(root, "raw_table"), layout.RawTableDir)
	assert.Equal(t, filepath.Join(root, "table"), layout.TableDir)
	assert.Equal(t, filepath.Join(root, "data_path"), layout.DataPathDir)

	_, err = NewLayout("")
	assert.Error(t, err)
}

func TestLayout_EnsureDirectories(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, layout.EnsureDirectories())
	for _, dir := range []string{layout.RawDataDir, layout.RawTableDir, layout.TableDir, layout.CacheDir, layout.DataPathDir, layout.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}

	// idempotent
	require.NoError(t, layout.EnsureDirectories())
	layout.LogPathResolution(slog.Default())
}

func TestLayout_RegistryPath(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(layout.DataPathDir, "registry.yaml"), layout.RegistryPath("registry.yaml"))
	assert.Equal(t, "/etc/registry.yaml", layout.RegistryPath("/etc/registry.yaml"))
}
