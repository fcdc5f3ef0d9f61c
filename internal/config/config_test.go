package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadFrom tests configuration loading with various sources
func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no env vars and no file",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "data", cfg.Storage.Root)
				assert.Equal(t, "2000-01-01", cfg.Storage.EpochFloor)
				assert.Equal(t, 100*time.Millisecond, cfg.Fetch.LaunchInterval)
				assert.Equal(t, 16, cfg.Fetch.MaxConcurrency)
				assert.Equal(t, "none", cfg.Cache.Backend)
				assert.Equal(t, 0.1, cfg.Quality.MaxGapRatio)
				assert.Equal(t, 5.0, cfg.Quality.MaxZScore)
				assert.Equal(t, 0.8, cfg.Quality.MaxDividendRatio)
				assert.Equal(t, "stock_splits", cfg.Quality.SplitItem)
				assert.Equal(t, DefaultPolygonURL, cfg.Providers.Polygon.BaseURL)
				assert.Equal(t, "POLYGON_API_KEY", cfg.Providers.Polygon.KeyEnv)
				assert.Equal(t, "fred", cfg.Providers.FRED.Source)
			},
		},
		{
			name: "environment overrides defaults",
			env: map[string]string{
				"MDW_STORAGE_ROOT":          "/srv/warehouse",
				"MDW_FETCH_LAUNCH_INTERVAL": "250ms",
				"MDW_CACHE_BACKEND":         "memory",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/srv/warehouse", cfg.Storage.Root)
				assert.Equal(t, 250*time.Millisecond, cfg.Fetch.LaunchInterval)
				assert.Equal(t, "memory", cfg.Cache.Backend)
			},
		},
		{
			name: "file overrides defaults",
			file: `
storage:
  root: /var/lib/warehouse
quality:
  max_zscore: 4.5
cache:
  backend: redis
  redis:
    addr: cache:6379
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/var/lib/warehouse", cfg.Storage.Root)
				assert.Equal(t, 4.5, cfg.Quality.MaxZScore)
				assert.Equal(t, "redis", cfg.Cache.Backend)
				assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
				// untouched fields keep their defaults
				assert.Equal(t, 0.1, cfg.Quality.MaxGapRatio)
			},
		},
		{
			name: "explicit env wins over file",
			env:  map[string]string{"MDW_STORAGE_ROOT": "/from/env"},
			file: "storage:\n  root: /from/file\n",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/from/env", cfg.Storage.Root)
			},
		},
		{
			name:    "invalid cache backend",
			env:     map[string]string{"MDW_CACHE_BACKEND": "memcached"},
			wantErr: true,
		},
		{
			name:    "invalid epoch floor",
			file:    "storage:\n  epoch_floor: 01/01/2000\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "storage: [unclosed\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfigFile(t, tt.file)
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestEpochFloorDate(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), cfg.EpochFloorDate())

	cfg.Storage.EpochFloor = "2015-06-30"
	assert.Equal(t, time.Date(2015, 6, 30, 0, 0, 0, 0, time.UTC), cfg.EpochFloorDate())
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate_FileOutputNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""
	assert.Error(t, cfg.validate())
}
