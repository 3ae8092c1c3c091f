package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
mongo:
  uri: mongodb://localhost:27017
  database: photos
redis:
  url: redis://localhost:6379/0
cdn:
  cloud_name: demo
storage:
  transformed_bucket: photos-transformed
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Migration.BatchSize)
	assert.Equal(t, int64(20000), cfg.Migration.MaxRecordsPerDay)
	assert.True(t, cfg.Migration.DryRun)
	assert.Equal(t, 4, cfg.Migration.Concurrency)
	assert.Equal(t, 8, cfg.Migration.MaxActiveJobs)
	assert.Equal(t, time.Duration(0), cfg.Migration.LockTTL)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
	assert.Equal(t, "us-west-2", cfg.Storage.DefaultRegion)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadAllowedCloudsDefaultsToCloudName(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo"}, cfg.CDN.AllowedClouds)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
mongo:
  uri: mongodb://localhost:27017
  database: photos
redis:
  url: redis://localhost:6379/0
cdn:
  cloud_name: demo
storage:
  transformed_bucket: photos-transformed
  bucket_regions:
    photos-legacy: eu-west-1
migration:
  batch_size: 50
  dry_run: false
`), nil)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Migration.BatchSize)
	assert.False(t, cfg.Migration.DryRun)
	assert.Equal(t, "eu-west-1", cfg.Storage.BucketRegions["photos-legacy"])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://other:6379/1")
	t.Setenv("CDN_API_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, minimalYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, "redis://other:6379/1", cfg.Redis.URL)
	assert.Equal(t, "from-env", cfg.CDN.APISecret)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 25, "")
	flags.Bool("dry-run", true, "")
	require.NoError(t, flags.Parse([]string{"--batch-size=10", "--dry-run=false"}))

	cfg, err := Load(writeConfig(t, minimalYAML), flags)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Migration.BatchSize)
	assert.False(t, cfg.Migration.DryRun)
}

func TestLoadUnchangedFlagsKeepFileValues(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("batch-size", 25, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(writeConfig(t, minimalYAML+`
migration:
  batch_size: 99
`), flags)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Migration.BatchSize)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing mongo uri", `
mongo:
  database: photos
redis:
  url: redis://localhost:6379/0
cdn:
  cloud_name: demo
storage:
  transformed_bucket: photos-transformed
`},
		{"missing redis url", `
mongo:
  uri: mongodb://localhost:27017
  database: photos
cdn:
  cloud_name: demo
storage:
  transformed_bucket: photos-transformed
`},
		{"missing cloud name", `
mongo:
  uri: mongodb://localhost:27017
  database: photos
redis:
  url: redis://localhost:6379/0
storage:
  transformed_bucket: photos-transformed
`},
		{"missing transformed bucket", `
mongo:
  uri: mongodb://localhost:27017
  database: photos
redis:
  url: redis://localhost:6379/0
cdn:
  cloud_name: demo
`},
		{"zero batch size", minimalYAML + `
migration:
  batch_size: -1
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml), nil)
			assert.Error(t, err)
		})
	}
}
