package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadWithEnv_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv("", envFrom(map[string]string{"S3_BUCKET": "pkgs"}))
	require.NoError(t, err)

	assert.Equal(t, "pkgs", cfg.Storage.Bucket)
	assert.Equal(t, "", cfg.Server.BasePath)
	assert.Equal(t, 900, cfg.Storage.PresignedURLTTL)
	assert.Equal(t, 15*time.Minute, cfg.Storage.PresignTTL())
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
	assert.Equal(t, DefaultOpsAddress, cfg.Server.OpsAddress)
	assert.Equal(t, DefaultPresignConcurrency, cfg.Storage.PresignConcurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Zero(t, cfg.Reindex.Interval)
	assert.Empty(t, cfg.Storage.Region)
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	cfg, err := LoadWithEnv("", envFrom(map[string]string{
		"S3_BUCKET":            "gs://pkgs",
		"BASE_PATH":            "/simple/",
		"S3_PRESIGNED_URL_TTL": "60",
		"AWS_REGION":           "eu-west-1",
		"REINDEX_INTERVAL":     "5m",
		"LOG_LEVEL":            "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "simple", cfg.Server.BasePath)
	assert.Equal(t, 60, cfg.Storage.PresignedURLTTL)
	assert.Equal(t, "eu-west-1", cfg.Storage.Region)
	assert.Equal(t, 5*time.Minute, cfg.Reindex.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWithEnv_S3RegionWinsOverAWSRegion(t *testing.T) {
	cfg, err := LoadWithEnv("", envFrom(map[string]string{
		"S3_BUCKET":  "pkgs",
		"S3_REGION":  "us-west-2",
		"AWS_REGION": "eu-west-1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Storage.Region)
}

func TestLoadWithEnv_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  base_path: pypi/
storage:
  bucket: from-file
  presigned_url_ttl: 120
logging:
  format: text
`), 0o644))

	cfg, err := LoadWithEnv(path, envFrom(map[string]string{"S3_PRESIGNED_URL_TTL": "30"}))
	require.NoError(t, err)

	assert.Equal(t, "pypi", cfg.Server.BasePath)
	assert.Equal(t, "from-file", cfg.Storage.Bucket)
	assert.Equal(t, 30, cfg.Storage.PresignedURLTTL)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadWithEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing bucket", map[string]string{}},
		{"ttl not integer", map[string]string{"S3_BUCKET": "b", "S3_PRESIGNED_URL_TTL": "soon"}},
		{"ttl negative", map[string]string{"S3_BUCKET": "b", "S3_PRESIGNED_URL_TTL": "-1"}},
		{"ttl too long", map[string]string{"S3_BUCKET": "b", "S3_PRESIGNED_URL_TTL": "604801"}},
		{"bad interval", map[string]string{"S3_BUCKET": "b", "REINDEX_INTERVAL": "often"}},
		{"bad level", map[string]string{"S3_BUCKET": "b", "LOG_LEVEL": "loud"}},
		{"bad format", map[string]string{"S3_BUCKET": "b", "LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithEnv("", envFrom(tt.env))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadWithEnv_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), envFrom(nil))
	require.Error(t, err)
}
