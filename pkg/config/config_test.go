package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Scraper.ChunkSize)
	assert.Equal(t, 10*time.Second, cfg.Scraper.SyncWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.Scraper.SyncPollInterval)
	assert.Equal(t, 10, cfg.Ingest.BatchSize)
	assert.Equal(t, 5, cfg.Ingest.ConcurrentDownloads)
	assert.Equal(t, 3, cfg.Ingest.MaxRetries)
	assert.Equal(t, int64(10*1024*1024), cfg.Ingest.MaxMediaBytes)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
scraper:
  chunk_size: 50
browser:
  headless: false
blob:
  backend: s3
  bucket: media-bucket
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.Scraper.ChunkSize)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "s3", cfg.Blob.Backend)
	// untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Ingest.BatchSize)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("TWIX_CHUNK_DIR", "/custom/chunks")
	t.Setenv("TWIX_CONCURRENT_DOWNLOADS", "9")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/custom/chunks", cfg.Scraper.ChunkDir)
	assert.Equal(t, 9, cfg.Ingest.ConcurrentDownloads)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate(), "postgres without a DSN")

	cfg = DefaultConfig()
	cfg.Blob.Backend = "s3"
	assert.Error(t, cfg.Validate(), "s3 without a bucket")

	cfg = DefaultConfig()
	cfg.Scraper.ChunkSize = 0
	assert.Error(t, cfg.Validate())
}
